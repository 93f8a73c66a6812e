package store

import (
	"context"
	"database/sql"

	"github.com/sparrowreader/microsub/internal/model"
)

// Mute suppresses future items from url, either globally or scoped to
// one channel (§4.4).
func (s *SQLStore) Mute(ctx context.Context, owner, url, channelID string) error {
	if muted, err := s.IsMuted(ctx, owner, channelID, url); err != nil {
		return err
	} else if muted {
		return nil
	}
	var channel sql.NullString
	if channelID != "" {
		channel = sql.NullString{String: channelID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO muted (id, owner, url, channel_id) VALUES (?, ?, ?, ?)`), newID(), owner, url, channel)
	return err
}

// Unmute removes a mute entry.
func (s *SQLStore) Unmute(ctx context.Context, owner, url, channelID string) error {
	if channelID == "" {
		_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM muted WHERE owner = ? AND url = ? AND channel_id IS NULL`), owner, url)
		return err
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM muted WHERE owner = ? AND url = ? AND channel_id = ?`), owner, url, channelID)
	return err
}

// IsMuted reports whether url is muted for owner, either globally or in
// channelID.
func (s *SQLStore) IsMuted(ctx context.Context, owner, channelID, url string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind(`
		SELECT COUNT(*) FROM muted WHERE owner = ? AND url = ? AND (channel_id IS NULL OR channel_id = ?)
	`), owner, url, channelID)
	return count > 0, err
}

// ListMutes lists owner's mute entries, for display and for OPML-style
// export surfaces.
func (s *SQLStore) ListMutes(ctx context.Context, owner string) ([]model.Mute, error) {
	type row struct {
		ID      string         `db:"id"`
		Owner   string         `db:"owner"`
		URL     string         `db:"url"`
		Channel sql.NullString `db:"channel_id"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.rebind(`SELECT id, owner, url, channel_id FROM muted WHERE owner = ?`), owner); err != nil {
		return nil, err
	}
	out := make([]model.Mute, len(rows))
	for i, r := range rows {
		out[i] = model.Mute{ID: r.ID, Owner: r.Owner, URL: r.URL, Channel: r.Channel.String}
	}
	return out, nil
}

// Block suppresses all items authored by authorURL and propagates a
// delete across owner's existing items (the cascade is driven by
// DeleteItemsByAuthor, invoked by the caller).
func (s *SQLStore) Block(ctx context.Context, owner, authorURL string) error {
	blocked, err := s.IsBlocked(ctx, owner, authorURL)
	if err != nil {
		return err
	}
	if blocked {
		return nil
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO blocked (id, owner, author_url) VALUES (?, ?, ?)`), newID(), owner, authorURL)
	return err
}

// Unblock removes a block entry.
func (s *SQLStore) Unblock(ctx context.Context, owner, authorURL string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM blocked WHERE owner = ? AND author_url = ?`), owner, authorURL)
	return err
}

// IsBlocked reports whether authorURL is blocked for owner.
func (s *SQLStore) IsBlocked(ctx context.Context, owner, authorURL string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind(`SELECT COUNT(*) FROM blocked WHERE owner = ? AND author_url = ?`), owner, authorURL)
	return count > 0, err
}

// ListBlocks lists owner's blocked authors.
func (s *SQLStore) ListBlocks(ctx context.Context, owner string) ([]model.Block, error) {
	type row struct {
		ID        string `db:"id"`
		Owner     string `db:"owner"`
		AuthorURL string `db:"author_url"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.rebind(`SELECT id, owner, author_url FROM blocked WHERE owner = ?`), owner); err != nil {
		return nil, err
	}
	out := make([]model.Block, len(rows))
	for i, r := range rows {
		out[i] = model.Block{ID: r.ID, Owner: r.Owner, AuthorURL: r.AuthorURL}
	}
	return out, nil
}
