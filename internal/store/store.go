// Package store is the content-addressed item store together with the
// feed and channel/filter stores (C3, C4, C5 of the specification). A
// single SQLStore backs both the SQLite and PostgreSQL deployments
// described by the teacher repo's dual-backend Store, using sqlx's
// placeholder rebinding instead of hand-duplicated query text per
// driver.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore is the concrete Store implementation, backed by either
// modernc.org/sqlite or lib/pq depending on driver.
type SQLStore struct {
	db               *sqlx.DB
	driver           string // "sqlite" or "postgres"
	maxFullReadItems int
}

// SetMaxFullReadItems configures the retention limit MarkRead's cleanup
// trigger enforces per (channel, owner), per §4.3's MAX_FULL_READ_ITEMS.
// Call this once after Open; n <= 0 is ignored and the default applies.
func (s *SQLStore) SetMaxFullReadItems(n int) {
	if n > 0 {
		s.maxFullReadItems = n
	}
}

func (s *SQLStore) maxFullReadItemsOrDefault() int {
	if s.maxFullReadItems > 0 {
		return s.maxFullReadItems
	}
	return maxFullReadItemsDefault
}

// Open connects to driver ("sqlite" or "postgres") at dsn and runs
// migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	var driverName string
	switch driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if driver == "sqlite" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: wal mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: foreign keys: %w", err)
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// DatabaseType returns the backend name, mirroring the teacher's
// Store.DatabaseType.
func (s *SQLStore) DatabaseType() string {
	if s.driver == "postgres" {
		return "PostgreSQL"
	}
	return "SQLite"
}

// SupportsHighConcurrency mirrors the teacher's concurrency hint:
// PostgreSQL tolerates many concurrent writers, SQLite's single writer
// lock does not.
func (s *SQLStore) SupportsHighConcurrency() bool {
	return s.driver == "postgres"
}

// rebind converts the store's canonical '?' placeholder query text to
// the bind style of the connected driver.
func (s *SQLStore) rebind(query string) string {
	return s.db.Rebind(query)
}

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	external_id TEXT NOT NULL,
	name TEXT NOT NULL,
	display_order INTEGER NOT NULL DEFAULT 0,
	exclude_types TEXT NOT NULL DEFAULT '[]',
	exclude_regex TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_owner_external ON channels(owner, external_id);

CREATE TABLE IF NOT EXISTS feeds (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	photo TEXT NOT NULL DEFAULT '',
	tier INTEGER NOT NULL DEFAULT 1,
	unmodified INTEGER NOT NULL DEFAULT 0,
	next_fetch_at TIMESTAMP,
	last_fetched_at TIMESTAMP,
	etag TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	last_error TEXT NOT NULL DEFAULT '',
	last_error_at TIMESTAMP,
	consecutive_errors INTEGER NOT NULL DEFAULT 0,
	item_count INTEGER NOT NULL DEFAULT 0,
	websub_hub TEXT NOT NULL DEFAULT '',
	websub_topic TEXT NOT NULL DEFAULT '',
	websub_secret TEXT NOT NULL DEFAULT '',
	websub_lease_seconds INTEGER NOT NULL DEFAULT 0,
	websub_expires_at TIMESTAMP,
	websub_pending INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_feeds_channel_url ON feeds(channel_id, url);
CREATE INDEX IF NOT EXISTS idx_feeds_next_fetch ON feeds(next_fetch_at);
CREATE INDEX IF NOT EXISTS idx_feeds_websub_expires ON feeds(websub_expires_at);

CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	feed_id TEXT REFERENCES feeds(id) ON DELETE CASCADE,
	uid TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	content_text TEXT NOT NULL DEFAULT '',
	content_html TEXT NOT NULL DEFAULT '',
	published TIMESTAMP NOT NULL,
	updated TIMESTAMP,
	author_name TEXT NOT NULL DEFAULT '',
	author_url TEXT NOT NULL DEFAULT '',
	author_photo TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '[]',
	photo TEXT NOT NULL DEFAULT '[]',
	video TEXT NOT NULL DEFAULT '[]',
	audio TEXT NOT NULL DEFAULT '[]',
	like_of TEXT NOT NULL DEFAULT '[]',
	repost_of TEXT NOT NULL DEFAULT '[]',
	bookmark_of TEXT NOT NULL DEFAULT '[]',
	in_reply_to TEXT NOT NULL DEFAULT '[]',
	source_url TEXT NOT NULL DEFAULT '',
	source_feed_url TEXT NOT NULL DEFAULT '',
	read_by TEXT NOT NULL DEFAULT '[]',
	stripped INTEGER NOT NULL DEFAULT 0,
	notif_source TEXT NOT NULL DEFAULT '',
	notif_target TEXT NOT NULL DEFAULT '',
	notif_type TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_channel_uid ON items(channel_id, uid);
CREATE INDEX IF NOT EXISTS idx_items_channel_published ON items(channel_id, published DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_items_feed ON items(feed_id);
CREATE INDEX IF NOT EXISTS idx_items_channel_url ON items(channel_id, url);
CREATE INDEX IF NOT EXISTS idx_items_author_url ON items(author_url);
CREATE INDEX IF NOT EXISTS idx_items_notif ON items(channel_id, notif_source, notif_target);

CREATE TABLE IF NOT EXISTS muted (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	url TEXT NOT NULL,
	channel_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_muted_owner_url ON muted(owner, url);

CREATE TABLE IF NOT EXISTS blocked (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	author_url TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_blocked_owner_author ON blocked(owner, author_url);
`

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// nullTime converts a zero time.Time to SQL NULL, since "no value" is
// distinct from the zero instant throughout the feed/websub lifecycle
// fields.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func timeOrZero(nt sql.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}
