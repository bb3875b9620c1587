package db

import (
	"log"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Println("Connected to ScyllaDB cluster")
	return &Session{Session: session}, nil
}

// InitSchema creates the keyspace and tables if missing. Schema management
// belongs in a migration tool eventually; for now the worker bootstraps it
// on startup.
func InitSchema(hosts []string, keyspace string) (*Session, error) {
	sysSession, err := NewSession(hosts, "system")
	if err != nil {
		return nil, err
	}

	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + keyspace + ` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	sysSession.Close()
	if err != nil {
		return nil, err
	}

	session, err := NewSession(hosts, keyspace)
	if err != nil {
		return nil, err
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			room_id text,
			id bigint,
			user_id text,
			username text,
			content text,
			storage_id text,
			created_at timestamp,
			PRIMARY KEY (room_id, id)
		) WITH CLUSTERING ORDER BY (id DESC)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id text PRIMARY KEY,
			name text,
			creator_id text,
			created_at timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS room_reads (
			user_id text,
			room_id text,
			last_read timestamp,
			PRIMARY KEY (user_id, room_id)
		)`,
	}
	for _, table := range tables {
		if err := session.Query(table).Exec(); err != nil {
			session.Close()
			return nil, err
		}
	}

	return session, nil
}
