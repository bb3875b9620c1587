package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFields() map[string]string {
	return map[string]string{
		"user_id":   "u1",
		"username":  "alice",
		"conn_id":   "c1",
		"room_id":   "r1",
		"joined_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func TestParseEntry(t *testing.T) {
	user, ok := ParseEntry(validFields())
	require.True(t, ok)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "c1", user.ConnID)
	assert.False(t, user.JoinedAt.IsZero())
}

func TestParseEntryRejectsMissingFields(t *testing.T) {
	for _, field := range []string{"user_id", "username", "conn_id", "joined_at"} {
		fields := validFields()
		delete(fields, field)
		_, ok := ParseEntry(fields)
		assert.False(t, ok, "entry without %s must be rejected", field)
	}
}

func TestParseEntryRejectsBadTimestamp(t *testing.T) {
	fields := validFields()
	fields["joined_at"] = "not-a-time"
	_, ok := ParseEntry(fields)
	assert.False(t, ok)
}

func TestParseEntryRejectsEmpty(t *testing.T) {
	_, ok := ParseEntry(map[string]string{})
	assert.False(t, ok)
}

func TestRoomIDFromKey(t *testing.T) {
	assert.Equal(t, "r1", RoomIDFromKey("room:r1:users"))
	assert.Equal(t, "", RoomIDFromKey("presence:u1:c1"))
	assert.Equal(t, "", RoomIDFromKey("room:r1:members"))
	assert.Equal(t, "", RoomIDFromKey(""))
}

func TestPartitionEntriesSelfHeals(t *testing.T) {
	good := validFields()
	malformed := validFields()
	malformed["joined_at"] = "yesterday"

	keys := []string{
		"presence:u1:c1",
		"presence:u2:c2", // record expired, hash read back empty
		"presence:u3:c3",
		"presence:u4:c4", // record missing entirely
	}
	records := []map[string]string{good, {}, malformed, nil}

	users, stale := partitionEntries(keys, records)

	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)

	// The bad members are excluded from the result and handed back for
	// removal from the set.
	assert.Equal(t, []string{"presence:u2:c2", "presence:u3:c3", "presence:u4:c4"}, stale)
}

func TestPartitionEntriesAllValid(t *testing.T) {
	keys := []string{"presence:u1:c1"}
	users, stale := partitionEntries(keys, []map[string]string{validFields()})

	require.Len(t, users, 1)
	assert.Empty(t, stale)
}
