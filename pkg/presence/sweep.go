package presence

import (
	"context"
	"log"
	"time"

	"github.com/mahaj/chatwire/pkg/model"
)

// SweepInterval is how often the orphan sweep runs.
const SweepInterval = 30 * time.Minute

// Sweep finds presence records lacking an expiry and assigns one, bounding
// the lifetime of any record that escaped normal cleanup. Returns the number
// of records repaired.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	var repaired int

	iter := s.redis.Scan(ctx, 0, "presence:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		ttl, err := s.redis.TTL(ctx, key).Result()
		if err != nil {
			log.Printf("Sweep: failed to read TTL of %s: %v", key, err)
			continue
		}
		// -1 means the key exists but has no expiry.
		if ttl != -1 {
			continue
		}

		if err := s.redis.Expire(ctx, key, EntryTTL).Err(); err != nil {
			log.Printf("Sweep: failed to set TTL on %s: %v", key, err)
			continue
		}
		repaired++
	}
	if err := iter.Err(); err != nil {
		return repaired, err
	}
	return repaired, nil
}

// RunSweeper runs Sweep on a fixed interval until ctx is canceled. Failures
// are logged and never propagated; the next tick retries.
func (s *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			repaired, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("Presence sweep failed: %v", err)
				continue
			}
			log.Printf("Presence sweep complete, repaired %d records", repaired)
		}
	}
}

// Info lists the current room and presence keys, for the debug surface.
type Info struct {
	Rooms []string `json:"rooms"`
	Users []string `json:"users"`
}

func (s *Store) GetInfo(ctx context.Context) (Info, error) {
	info := Info{Rooms: []string{}, Users: []string{}}

	roomIter := s.redis.Scan(ctx, 0, "room:*:users", 100).Iterator()
	for roomIter.Next(ctx) {
		info.Rooms = append(info.Rooms, roomIter.Val())
	}
	if err := roomIter.Err(); err != nil {
		return info, err
	}

	userIter := s.redis.Scan(ctx, 0, "presence:*", 100).Iterator()
	for userIter.Next(ctx) {
		info.Users = append(info.Users, userIter.Val())
	}
	if err := userIter.Err(); err != nil {
		return info, err
	}

	return info, nil
}

// AllRooms returns every room's valid entries, keyed by room id.
func (s *Store) AllRooms(ctx context.Context) (map[string][]model.OnlineUser, error) {
	result := make(map[string][]model.OnlineUser)

	iter := s.redis.Scan(ctx, 0, "room:*:users", 100).Iterator()
	for iter.Next(ctx) {
		roomID := RoomIDFromKey(iter.Val())
		if roomID == "" {
			continue
		}
		users, err := s.ListEntries(ctx, roomID)
		if err != nil {
			return nil, err
		}
		result[roomID] = users
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
