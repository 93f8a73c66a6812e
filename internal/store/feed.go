package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/sparrowreader/microsub/internal/errs"
	"github.com/sparrowreader/microsub/internal/model"
)

type feedRow struct {
	ID                string         `db:"id"`
	ChannelID         string         `db:"channel_id"`
	URL               string         `db:"url"`
	Title             string         `db:"title"`
	Photo             string         `db:"photo"`
	Tier              int            `db:"tier"`
	Unmodified        int            `db:"unmodified"`
	NextFetchAt       sql.NullTime   `db:"next_fetch_at"`
	LastFetchedAt     sql.NullTime   `db:"last_fetched_at"`
	ETag              string         `db:"etag"`
	LastModified      string         `db:"last_modified"`
	Status            string         `db:"status"`
	LastError         string         `db:"last_error"`
	LastErrorAt       sql.NullTime   `db:"last_error_at"`
	ConsecutiveErrors int            `db:"consecutive_errors"`
	ItemCount         int            `db:"item_count"`
	WebSubHub         string         `db:"websub_hub"`
	WebSubTopic       string         `db:"websub_topic"`
	WebSubSecret      string         `db:"websub_secret"`
	WebSubLease       int            `db:"websub_lease_seconds"`
	WebSubExpiresAt   sql.NullTime   `db:"websub_expires_at"`
	WebSubPending     bool           `db:"websub_pending"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r feedRow) toModel() model.Feed {
	f := model.Feed{
		ID:                r.ID,
		ChannelID:         r.ChannelID,
		URL:               r.URL,
		Title:             r.Title,
		Photo:             r.Photo,
		Tier:              r.Tier,
		Unmodified:        r.Unmodified,
		NextFetchAt:       timeOrZero(r.NextFetchAt),
		LastFetchedAt:     timeOrZero(r.LastFetchedAt),
		ETag:              r.ETag,
		LastModified:      r.LastModified,
		Status:            model.FeedStatus(r.Status),
		LastError:         r.LastError,
		LastErrorAt:       timeOrZero(r.LastErrorAt),
		ConsecutiveErrors: r.ConsecutiveErrors,
		ItemCount:         r.ItemCount,
		CreatedAt:         r.CreatedAt,
	}
	if r.WebSubHub != "" || r.WebSubTopic != "" {
		f.WebSub = &model.WebSubState{
			Hub:          r.WebSubHub,
			Topic:        r.WebSubTopic,
			Secret:       r.WebSubSecret,
			LeaseSeconds: r.WebSubLease,
			ExpiresAt:    timeOrZero(r.WebSubExpiresAt),
			Pending:      r.WebSubPending,
		}
	}
	return f
}

const feedColumns = `id, channel_id, url, title, photo, tier, unmodified, next_fetch_at, last_fetched_at,
	etag, last_modified, status, last_error, last_error_at, consecutive_errors, item_count,
	websub_hub, websub_topic, websub_secret, websub_lease_seconds, websub_expires_at, websub_pending, created_at`

// CreateFeed creates a subscription in channelID for url, or returns the
// existing one if the (channel, url) pair already exists (idempotent
// follow, §3/§6). isNew reports whether a new record was created.
func (s *SQLStore) CreateFeed(ctx context.Context, channelID, url string) (*model.Feed, bool, error) {
	if existing, err := s.getFeedByURL(ctx, channelID, url); err == nil {
		return existing, false, nil
	}
	now := time.Now()
	row := feedRow{
		ID:          newID(),
		ChannelID:   channelID,
		URL:         url,
		Tier:        1,
		NextFetchAt: sql.NullTime{Time: now, Valid: true},
		Status:      string(model.FeedActive),
		CreatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO feeds (id, channel_id, url, tier, next_fetch_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), row.ID, row.ChannelID, row.URL, row.Tier, row.NextFetchAt, row.Status, row.CreatedAt)
	if err != nil {
		if existing, gerr := s.getFeedByURL(ctx, channelID, url); gerr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	m := row.toModel()
	return &m, true, nil
}

func (s *SQLStore) getFeedByURL(ctx context.Context, channelID, url string) (*model.Feed, error) {
	var row feedRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+feedColumns+` FROM feeds WHERE channel_id = ? AND url = ?`), channelID, url)
	if err != nil {
		return nil, errs.NotFoundf("feed not found")
	}
	m := row.toModel()
	return &m, nil
}

// GetFeed fetches a feed by internal id.
func (s *SQLStore) GetFeed(ctx context.Context, id string) (*model.Feed, error) {
	var row feedRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+feedColumns+` FROM feeds WHERE id = ?`), id)
	if err != nil {
		return nil, errs.NotFoundf("feed %s not found", id)
	}
	m := row.toModel()
	return &m, nil
}

// ListFeedsByChannel lists every subscription in a channel.
func (s *SQLStore) ListFeedsByChannel(ctx context.Context, channelID string) ([]model.Feed, error) {
	var rows []feedRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`SELECT `+feedColumns+` FROM feeds WHERE channel_id = ? ORDER BY created_at ASC`), channelID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Feed, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetFeedsToFetch returns feeds whose nextFetchAt is unset or has
// elapsed, oldest due first, for the scheduler's tick to drain.
func (s *SQLStore) GetFeedsToFetch(ctx context.Context, now time.Time, limit int) ([]model.Feed, error) {
	var rows []feedRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`SELECT `+feedColumns+` FROM feeds WHERE (next_fetch_at IS NULL OR next_fetch_at <= ?) ORDER BY next_fetch_at ASC LIMIT ?`), now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Feed, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// FeedsWithExpiringLease returns feeds whose WebSub lease expires
// before the deadline and are not already mid-renewal, for the lease
// renewal sweep (§4.7).
func (s *SQLStore) FeedsWithExpiringLease(ctx context.Context, deadline time.Time) ([]model.Feed, error) {
	var rows []feedRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT `+feedColumns+` FROM feeds
		WHERE websub_topic != '' AND websub_expires_at IS NOT NULL AND websub_expires_at <= ? AND websub_pending = ?
	`), deadline, false)
	if err != nil {
		return nil, err
	}
	out := make([]model.Feed, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// UpdateFeedAfterFetch persists the result of a Processor pass: tier
// math outputs, new validators, and discovered title/photo (only when
// not already set), per §4.4/§4.5.
func (s *SQLStore) UpdateFeedAfterFetch(ctx context.Context, f *model.Feed) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE feeds SET
			tier = ?, unmodified = ?, next_fetch_at = ?, last_fetched_at = ?,
			etag = ?, last_modified = ?,
			title = CASE WHEN title = '' THEN ? ELSE title END,
			photo = CASE WHEN photo = '' THEN ? ELSE photo END
		WHERE id = ?
	`), f.Tier, f.Unmodified, f.NextFetchAt, f.LastFetchedAt, f.ETag, f.LastModified, f.Title, f.Photo, f.ID)
	return err
}

// UpdateFeedStatus records fetch health: success clears the error
// streak, failure records the message and increments it (§4.4).
func (s *SQLStore) UpdateFeedStatus(ctx context.Context, feedID string, success bool, errMsg string) error {
	if success {
		_, err := s.db.ExecContext(ctx, s.rebind(`
			UPDATE feeds SET status = ?, last_error = '', consecutive_errors = 0 WHERE id = ?
		`), string(model.FeedActive), feedID)
		return err
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE feeds SET status = ?, last_error = ?, last_error_at = ?, consecutive_errors = consecutive_errors + 1 WHERE id = ?
	`), string(model.FeedError), errMsg, time.Now(), feedID)
	return err
}

// IncrementItemCount bumps a feed's running item counter after a
// successful non-duplicate insert.
func (s *SQLStore) IncrementItemCount(ctx context.Context, feedID string, n int) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE feeds SET item_count = item_count + ? WHERE id = ?`), n, feedID)
	return err
}

// UpdateFeedWebSub persists a feed's WebSub subscription state, or
// clears it when ws is nil.
func (s *SQLStore) UpdateFeedWebSub(ctx context.Context, feedID string, ws *model.WebSubState) error {
	if ws == nil {
		_, err := s.db.ExecContext(ctx, s.rebind(`
			UPDATE feeds SET websub_hub = '', websub_topic = '', websub_secret = '', websub_lease_seconds = 0, websub_expires_at = NULL, websub_pending = ?
			WHERE id = ?
		`), false, feedID)
		return err
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE feeds SET websub_hub = ?, websub_topic = ?, websub_secret = ?, websub_lease_seconds = ?, websub_expires_at = ?, websub_pending = ?
		WHERE id = ?
	`), ws.Hub, ws.Topic, ws.Secret, ws.LeaseSeconds, nullTime(ws.ExpiresAt), ws.Pending, feedID)
	return err
}

// DeleteFeed removes a subscription; its items cascade.
func (s *SQLStore) DeleteFeed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM feeds WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("feed %s not found", id)
	}
	return nil
}
