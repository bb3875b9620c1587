// Package presence is the shared record of which (user, connection) pairs
// are live in which room. It is backed by Redis so every gateway process
// sees the same membership regardless of which process a client is
// attached to.
//
// Layout: one SET per room ("room:{roomId}:users") holding entry keys, and
// one HASH per entry ("presence:{userId}:{connId}") holding the record.
// Entries carry a 24h TTL as a leak-recovery safety net; live connections
// are expected to clean up explicitly on disconnect.
package presence

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatwire/pkg/model"
)

// EntryTTL bounds the lifetime of any record that escapes normal cleanup.
// It must exceed any plausible reconnect window; it is not a liveness check.
const EntryTTL = 24 * time.Hour

type Store struct {
	redis *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{redis: rdb}
}

func roomKey(roomID string) string {
	return "room:" + roomID + ":users"
}

func entryKey(userID, connID string) string {
	return "presence:" + userID + ":" + connID
}

// AddEntry upserts the entry keyed by (user id, conn id), refreshes its TTL,
// and adds it to the room's membership set. The three writes go through one
// transactional pipeline so a set member never points at an absent record.
func (s *Store) AddEntry(ctx context.Context, roomID string, user model.OnlineUser) error {
	ek := entryKey(user.UserID, user.ConnID)

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, ek, map[string]any{
		"user_id":   user.UserID,
		"username":  user.Username,
		"conn_id":   user.ConnID,
		"room_id":   roomID,
		"joined_at": user.JoinedAt.UTC().Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, roomKey(roomID), ek)
	pipe.Expire(ctx, ek, EntryTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: add entry for %s: %w", ek, err)
	}
	return nil
}

// RemoveEntry drops the set membership and deletes the record. When the
// room's membership set becomes empty the set itself is deleted so empty
// per-room keys do not accumulate. A duplicate remove is a harmless no-op.
func (s *Store) RemoveEntry(ctx context.Context, roomID, userID, connID string) error {
	rk := roomKey(roomID)
	ek := entryKey(userID, connID)

	pipe := s.redis.TxPipeline()
	pipe.SRem(ctx, rk, ek)
	pipe.Del(ctx, ek)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: remove entry %s: %w", ek, err)
	}

	size, err := s.redis.SCard(ctx, rk).Result()
	if err != nil {
		return fmt.Errorf("presence: scard %s: %w", rk, err)
	}
	if size == 0 {
		if err := s.redis.Del(ctx, rk).Err(); err != nil {
			return fmt.Errorf("presence: gc empty room set %s: %w", rk, err)
		}
	}
	return nil
}

// ListEntries returns all valid entries for the room. Members whose backing
// record is missing or malformed are excluded from the result and scheduled
// for asynchronous removal; the read itself never blocks on the cleanup.
func (s *Store) ListEntries(ctx context.Context, roomID string) ([]model.OnlineUser, error) {
	rk := roomKey(roomID)

	entryKeys, err := s.redis.SMembers(ctx, rk).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: smembers %s: %w", rk, err)
	}
	if len(entryKeys) == 0 {
		return []model.OnlineUser{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(entryKeys))
	for i, ek := range entryKeys {
		cmds[i] = pipe.HGetAll(ctx, ek)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("presence: hgetall pipeline for %s: %w", rk, err)
	}

	records := make([]map[string]string, len(entryKeys))
	for i, cmd := range cmds {
		if fields, err := cmd.Result(); err == nil {
			records[i] = fields
		}
	}

	users, stale := partitionEntries(entryKeys, records)
	if len(stale) > 0 {
		go s.cleanupStaleMembers(rk, stale)
	}

	return users, nil
}

// partitionEntries splits set members into valid users and stale members.
// A member is stale when its record is missing, empty (the hash expired out
// from under the set), or fails ParseEntry.
func partitionEntries(entryKeys []string, records []map[string]string) ([]model.OnlineUser, []string) {
	users := make([]model.OnlineUser, 0, len(entryKeys))
	var stale []string
	for i, ek := range entryKeys {
		if len(records[i]) == 0 {
			stale = append(stale, ek)
			continue
		}
		user, ok := ParseEntry(records[i])
		if !ok {
			stale = append(stale, ek)
			continue
		}
		users = append(users, user)
	}
	return users, stale
}

// cleanupStaleMembers removes set members whose records were missing or
// malformed. Failures are logged and dropped; the next read retries.
func (s *Store) cleanupStaleMembers(rk string, entryKeys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.redis.TxPipeline()
	for _, ek := range entryKeys {
		pipe.SRem(ctx, rk, ek)
		pipe.Del(ctx, ek)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Failed to clean %d stale presence members of %s: %v", len(entryKeys), rk, err)
		return
	}
	log.Printf("Cleaned %d stale presence members of %s", len(entryKeys), rk)
}

// CountEntries returns the cardinality of the room's membership set without
// reading any entry records.
func (s *Store) CountEntries(ctx context.Context, roomID string) (int64, error) {
	count, err := s.redis.SCard(ctx, roomKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence: scard %s: %w", roomKey(roomID), err)
	}
	return count, nil
}

// HasEntry reports whether the exact (room, user, conn) entry is a member of
// the room set.
func (s *Store) HasEntry(ctx context.Context, roomID, userID, connID string) (bool, error) {
	ok, err := s.redis.SIsMember(ctx, roomKey(roomID), entryKey(userID, connID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence: sismember %s: %w", roomKey(roomID), err)
	}
	return ok, nil
}

// RemovePriorConnections removes every entry the user holds in the room
// except the given connection. Page refreshes reconnect before the old
// connection's disconnect lands; this collapses the duplicates into the
// new connection.
func (s *Store) RemovePriorConnections(ctx context.Context, roomID, userID, keepConnID string) error {
	users, err := s.ListEntries(ctx, roomID)
	if err != nil {
		return err
	}

	for _, u := range users {
		if u.UserID != userID || u.ConnID == keepConnID {
			continue
		}
		if err := s.RemoveEntry(ctx, roomID, u.UserID, u.ConnID); err != nil {
			return err
		}
		log.Printf("Removed prior connection %s of user %s from room %s", u.ConnID, userID, roomID)
	}
	return nil
}

// RemoveFromAllRooms deletes whatever room membership the connection still
// holds, using the record's own room_id field. Defensive cleanup for
// disconnects where current-room tracking and the store drifted.
func (s *Store) RemoveFromAllRooms(ctx context.Context, userID, connID string) ([]string, error) {
	ek := entryKey(userID, connID)

	fields, err := s.redis.HGetAll(ctx, ek).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: hgetall %s: %w", ek, err)
	}

	roomID := fields["room_id"]
	if roomID == "" {
		return nil, nil
	}

	if err := s.RemoveEntry(ctx, roomID, userID, connID); err != nil {
		return nil, err
	}
	return []string{roomID}, nil
}

// ParseEntry converts a raw presence hash into an OnlineUser. The second
// return is false when any required field is missing or malformed.
func ParseEntry(fields map[string]string) (model.OnlineUser, bool) {
	joinedAt, err := time.Parse(time.RFC3339Nano, fields["joined_at"])
	if err != nil {
		return model.OnlineUser{}, false
	}

	user := model.OnlineUser{
		UserID:   fields["user_id"],
		Username: fields["username"],
		ConnID:   fields["conn_id"],
		JoinedAt: joinedAt,
	}
	if !user.Valid() {
		return model.OnlineUser{}, false
	}
	return user, true
}

// RoomIDFromKey extracts the room id from a "room:{id}:users" key. Room ids
// are uuids and never contain colons.
func RoomIDFromKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "room" || parts[2] != "users" {
		return ""
	}
	return parts[1]
}
