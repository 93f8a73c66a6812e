package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sparrowreader/microsub/internal/errs"
	"github.com/sparrowreader/microsub/internal/model"
)

type channelRow struct {
	ID           string    `db:"id"`
	Owner        string    `db:"owner"`
	ExternalID   string    `db:"external_id"`
	Name         string    `db:"name"`
	Order        int       `db:"display_order"`
	ExcludeTypes string    `db:"exclude_types"`
	ExcludeRegex string    `db:"exclude_regex"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r channelRow) toModel() model.Channel {
	var excl []model.InteractionKind
	_ = json.Unmarshal([]byte(r.ExcludeTypes), &excl)
	return model.Channel{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Owner:      r.Owner,
		Name:       r.Name,
		Order:      r.Order,
		Filter: model.FilterSettings{
			ExcludeTypes: excl,
			ExcludeRegex: r.ExcludeRegex,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CreateChannel creates a new named channel for owner, minting a unique
// short external id with a bounded number of collision retries.
func (s *SQLStore) CreateChannel(ctx context.Context, owner, name string) (*model.Channel, error) {
	order, err := s.nextDisplayOrder(ctx, owner)
	if err != nil {
		return nil, err
	}
	var last error
	for attempt := 0; attempt < 5; attempt++ {
		externalID, err := newExternalID()
		if err != nil {
			return nil, err
		}
		ch, err := s.insertChannel(ctx, owner, externalID, name, order)
		if err == nil {
			return ch, nil
		}
		last = err
	}
	return nil, last
}

// nextDisplayOrder returns the next free display order for owner's
// ordinary channels, excluding the pinned notifications channel (whose
// order sits at model.NotificationsOrder, below every ordinary slot).
func (s *SQLStore) nextDisplayOrder(ctx context.Context, owner string) (int, error) {
	var max int
	err := s.db.GetContext(ctx, &max, s.rebind(`
		SELECT COALESCE(MAX(display_order), -1) FROM channels WHERE owner = ? AND external_id != ?
	`), owner, model.NotificationsExternalID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *SQLStore) insertChannel(ctx context.Context, owner, externalID, name string, order int) (*model.Channel, error) {
	now := time.Now()
	row := channelRow{
		ID:           newID(),
		Owner:        owner,
		ExternalID:   externalID,
		Name:         name,
		Order:        order,
		ExcludeTypes: "[]",
		ExcludeRegex: "",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO channels (id, owner, external_id, name, display_order, exclude_types, exclude_regex, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), row.ID, row.Owner, row.ExternalID, row.Name, row.Order, row.ExcludeTypes, row.ExcludeRegex, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

// EnsureNotificationsChannel returns owner's notifications channel,
// creating it (pinned at order -1, external id "notifications") if it
// does not yet exist. Per §3 this channel is created on demand and
// never destroyed.
func (s *SQLStore) EnsureNotificationsChannel(ctx context.Context, owner string) (*model.Channel, error) {
	existing, err := s.GetChannelByExternalID(ctx, owner, model.NotificationsExternalID)
	if err == nil {
		return existing, nil
	}
	if errs.KindOf(err) != errs.KindNotFound {
		return nil, err
	}
	return s.insertChannel(ctx, owner, model.NotificationsExternalID, "Notifications", model.NotificationsOrder)
}

// GetChannel fetches a channel by internal id.
func (s *SQLStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	var row channelRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT id, owner, external_id, name, display_order, exclude_types, exclude_regex, created_at, updated_at FROM channels WHERE id = ?`), id)
	if err != nil {
		return nil, errs.NotFoundf("channel %s not found", id)
	}
	m := row.toModel()
	return &m, nil
}

// GetChannelByExternalID fetches a channel by its owner-scoped short id.
func (s *SQLStore) GetChannelByExternalID(ctx context.Context, owner, externalID string) (*model.Channel, error) {
	var row channelRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT id, owner, external_id, name, display_order, exclude_types, exclude_regex, created_at, updated_at FROM channels WHERE owner = ? AND external_id = ?`), owner, externalID)
	if err != nil {
		return nil, errs.NotFoundf("channel %q not found", externalID)
	}
	m := row.toModel()
	return &m, nil
}

// ListChannels lists all of owner's channels, notifications first, then
// by display order.
func (s *SQLStore) ListChannels(ctx context.Context, owner string) ([]model.Channel, error) {
	var rows []channelRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`SELECT id, owner, external_id, name, display_order, exclude_types, exclude_regex, created_at, updated_at FROM channels WHERE owner = ? ORDER BY display_order ASC, created_at ASC`), owner)
	if err != nil {
		return nil, err
	}
	out := make([]model.Channel, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// UpdateChannel persists a channel's name, order and filter settings.
func (s *SQLStore) UpdateChannel(ctx context.Context, ch *model.Channel) error {
	excl, err := json.Marshal(ch.Filter.ExcludeTypes)
	if err != nil {
		return err
	}
	ch.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE channels SET name = ?, display_order = ?, exclude_types = ?, exclude_regex = ?, updated_at = ?
		WHERE id = ?
	`), ch.Name, ch.Order, string(excl), ch.Filter.ExcludeRegex, ch.UpdatedAt, ch.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("channel %s not found", ch.ID)
	}
	return nil
}

// DeleteChannel removes a channel; feeds and items cascade via foreign
// keys, matching §3's deletion invariant. The notifications channel may
// be deleted like any other at the Store layer — callers that want to
// enforce "never destroyed" do so at the API layer.
func (s *SQLStore) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM channels WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("channel %s not found", id)
	}
	return nil
}

// ReorderChannels applies a new display order to owner's channels in
// the given sequence, leaving the pinned notifications channel's order
// untouched.
func (s *SQLStore) ReorderChannels(ctx context.Context, owner string, orderedIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE channels SET display_order = ?, updated_at = ? WHERE id = ? AND owner = ? AND external_id != ?`),
			i, time.Now(), id, owner, model.NotificationsExternalID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
