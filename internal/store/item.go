package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sparrowreader/microsub/internal/model"
)

type itemRow struct {
	ID            string         `db:"id"`
	ChannelID     string         `db:"channel_id"`
	FeedID        sql.NullString `db:"feed_id"`
	UID           string         `db:"uid"`
	URL           string         `db:"url"`
	Type          string         `db:"type"`
	Name          string         `db:"name"`
	Summary       string         `db:"summary"`
	ContentText   string         `db:"content_text"`
	ContentHTML   string         `db:"content_html"`
	Published     time.Time      `db:"published"`
	Updated       sql.NullTime   `db:"updated"`
	AuthorName    string         `db:"author_name"`
	AuthorURL     string         `db:"author_url"`
	AuthorPhoto   string         `db:"author_photo"`
	Category      string         `db:"category"`
	Photo         string         `db:"photo"`
	Video         string         `db:"video"`
	Audio         string         `db:"audio"`
	LikeOf        string         `db:"like_of"`
	RepostOf      string         `db:"repost_of"`
	BookmarkOf    string         `db:"bookmark_of"`
	InReplyTo     string         `db:"in_reply_to"`
	SourceURL     string         `db:"source_url"`
	SourceFeedURL string         `db:"source_feed_url"`
	ReadBy        string         `db:"read_by"`
	Stripped      bool           `db:"stripped"`
	NotifSource   string         `db:"notif_source"`
	NotifTarget   string         `db:"notif_target"`
	NotifType     string         `db:"notif_type"`
	CreatedAt     time.Time      `db:"created_at"`
}

func jsonList(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func toJSONList(xs []string) string {
	if len(xs) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(xs)
	return string(data)
}

func (r itemRow) toModel() model.Item {
	it := model.Item{
		ID:         r.ID,
		ChannelID:  r.ChannelID,
		FeedID:     r.FeedID.String,
		UID:        r.UID,
		URL:        r.URL,
		Type:       r.Type,
		Name:       r.Name,
		Summary:    r.Summary,
		Content:    model.Content{Text: r.ContentText, HTML: r.ContentHTML},
		Published:  r.Published,
		Updated:    timeOrZero(r.Updated),
		Category:   jsonList(r.Category),
		Photo:      jsonList(r.Photo),
		Video:      jsonList(r.Video),
		Audio:      jsonList(r.Audio),
		LikeOf:     jsonList(r.LikeOf),
		RepostOf:   jsonList(r.RepostOf),
		BookmarkOf: jsonList(r.BookmarkOf),
		InReplyTo:  jsonList(r.InReplyTo),
		Source:     model.ItemSource{URL: r.SourceURL, FeedURL: r.SourceFeedURL},
		ReadBy:     jsonList(r.ReadBy),
		Stripped:   r.Stripped,
		CreatedAt:  r.CreatedAt,
	}
	if r.AuthorName != "" || r.AuthorURL != "" || r.AuthorPhoto != "" {
		it.Author = &model.Author{Name: r.AuthorName, URL: r.AuthorURL, Photo: r.AuthorPhoto}
	}
	if r.NotifSource != "" || r.NotifTarget != "" {
		it.NotifSource = r.NotifSource
		it.NotifTarget = r.NotifTarget
		it.NotifType = model.NotificationType(r.NotifType)
	}
	return it
}

func fromModel(it *model.Item) itemRow {
	r := itemRow{
		ID:            it.ID,
		ChannelID:     it.ChannelID,
		UID:           it.UID,
		URL:           it.URL,
		Type:          it.Type,
		Name:          it.Name,
		Summary:       it.Summary,
		ContentText:   it.Content.Text,
		ContentHTML:   it.Content.HTML,
		Published:     it.Published,
		Updated:       nullTime(it.Updated),
		Category:      toJSONList(it.Category),
		Photo:         toJSONList(it.Photo),
		Video:         toJSONList(it.Video),
		Audio:         toJSONList(it.Audio),
		LikeOf:        toJSONList(it.LikeOf),
		RepostOf:      toJSONList(it.RepostOf),
		BookmarkOf:    toJSONList(it.BookmarkOf),
		InReplyTo:     toJSONList(it.InReplyTo),
		SourceURL:     it.Source.URL,
		SourceFeedURL: it.Source.FeedURL,
		ReadBy:        toJSONList(it.ReadBy),
		Stripped:      it.Stripped,
		NotifSource:   it.NotifSource,
		NotifTarget:   it.NotifTarget,
		NotifType:     string(it.NotifType),
		CreatedAt:     it.CreatedAt,
	}
	if it.FeedID != "" {
		r.FeedID = sql.NullString{String: it.FeedID, Valid: true}
	}
	if it.Author != nil {
		r.AuthorName, r.AuthorURL, r.AuthorPhoto = it.Author.Name, it.Author.URL, it.Author.Photo
	}
	return r
}

const itemColumns = `id, channel_id, feed_id, uid, url, type, name, summary, content_text, content_html,
	published, updated, author_name, author_url, author_photo, category, photo, video, audio,
	like_of, repost_of, bookmark_of, in_reply_to, source_url, source_feed_url, read_by, stripped,
	notif_source, notif_target, notif_type, created_at`

// AddItem inserts it if (channel, uid) is not already present — including
// as a stripped skeleton — per §4.3's addItem. created reports whether a
// new row was written.
func (s *SQLStore) AddItem(ctx context.Context, it *model.Item) (created bool, err error) {
	if it.ID == "" {
		it.ID = newID()
	}
	if it.Published.IsZero() {
		it.Published = time.Now()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	row := fromModel(it)
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), row.ID, row.ChannelID, row.FeedID, row.UID, row.URL, row.Type, row.Name, row.Summary, row.ContentText, row.ContentHTML,
		row.Published, row.Updated, row.AuthorName, row.AuthorURL, row.AuthorPhoto, row.Category, row.Photo, row.Video, row.Audio,
		row.LikeOf, row.RepostOf, row.BookmarkOf, row.InReplyTo, row.SourceURL, row.SourceFeedURL, row.ReadBy, row.Stripped,
		row.NotifSource, row.NotifTarget, row.NotifType, row.CreatedAt)
	if err != nil {
		if s.isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isUniqueViolation recognizes the (channel, uid) unique index
// violation across both backends without pulling in driver-specific
// error types for every call site.
func (s *SQLStore) isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key value")
}

// TimelineQuery parameterizes getTimeline per §4.3.
type TimelineQuery struct {
	Before   *model.Cursor
	After    *model.Cursor
	Limit    int
	Owner    string
	ShowRead bool
}

// TimelineResult is a single page of a channel's timeline plus opaque
// paging cursors, present only when a further page exists in that
// direction.
type TimelineResult struct {
	Items        []model.Item
	BeforeCursor string
	AfterCursor  string
}

// GetTimeline returns one page of channel's items, newest first, per
// §4.3's cursor semantics: `after` selects strictly older than the
// cursor, `before` selects strictly newer, and `before` queries are run
// ascending internally then reversed so the result is always
// newest-first.
func (s *SQLStore) GetTimeline(ctx context.Context, channelID string, q TimelineQuery) (*TimelineResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE channel_id = ? AND stripped = ?`
	args := []interface{}{channelID, false}

	if !q.ShowRead {
		// readBy is a JSON array; substring match is sufficient since
		// owner ids are opaque tokens that cannot collide as partial
		// matches of each other across rows we care about, and this
		// mirrors the SQLite-compatible fallback used by search.
		query += ` AND read_by NOT LIKE ?`
		args = append(args, "%\""+q.Owner+"\"%")
	}

	ascending := false
	switch {
	case q.After != nil:
		query += ` AND (published < ? OR (published = ? AND id < ?))`
		args = append(args, q.After.T, q.After.T, q.After.I)
	case q.Before != nil:
		query += ` AND (published > ? OR (published = ? AND id > ?))`
		args = append(args, q.Before.T, q.Before.T, q.Before.I)
		ascending = true
	}

	if ascending {
		query += ` ORDER BY published ASC, id ASC`
	} else {
		query += ` ORDER BY published DESC, id DESC`
	}
	query += ` LIMIT ?`
	args = append(args, limit+1)

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	if ascending {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	items := make([]model.Item, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}

	result := &TimelineResult{Items: items}
	if len(items) > 0 {
		newest, oldest := items[0], items[len(items)-1]
		switch {
		case q.Before != nil:
			// hasMore here means there are even newer items beyond this
			// page's newest row; that row is the correct continuation
			// cursor, not the one closest to the original before= cursor.
			if hasMore {
				result.BeforeCursor = EncodeCursor(model.Cursor{T: newest.Published, I: newest.ID})
			}
		case hasMore:
			result.AfterCursor = EncodeCursor(model.Cursor{T: oldest.Published, I: oldest.ID})
		}
	}
	return result, nil
}

// MarkRead adds owner to readBy for every item in channel matched by
// internal id, uid, or url, or every item when entries contains the
// "last-read-entry" sentinel. Triggers per-channel cleanup afterward.
func (s *SQLStore) MarkRead(ctx context.Context, channelID string, entries []string, owner string) (int, error) {
	n, err := s.setReadState(ctx, channelID, entries, owner, true)
	if err != nil {
		return 0, err
	}
	if err := s.CleanupChannelOwner(ctx, channelID, owner, s.maxFullReadItemsOrDefault()); err != nil {
		return n, err
	}
	return n, nil
}

// MarkUnread is the symmetric inverse of MarkRead.
func (s *SQLStore) MarkUnread(ctx context.Context, channelID string, entries []string, owner string) (int, error) {
	return s.setReadState(ctx, channelID, entries, owner, false)
}

const lastReadEntrySentinel = "last-read-entry"

func (s *SQLStore) setReadState(ctx context.Context, channelID string, entries []string, owner string, read bool) (int, error) {
	all := lo.Contains(entries, lastReadEntrySentinel)

	query := `SELECT ` + itemColumns + ` FROM items WHERE channel_id = ?`
	args := []interface{}{channelID}
	if !all {
		placeholders := ""
		for i := range entries {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
		}
		query += ` AND (id IN (` + placeholders + `) OR uid IN (` + placeholders + `) OR url IN (` + placeholders + `))`
		for i := 0; i < 3; i++ {
			for _, e := range entries {
				args = append(args, e)
			}
		}
	}

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range rows {
		readBy := jsonList(r.ReadBy)
		has := lo.Contains(readBy, owner)
		var next []string
		switch {
		case read && !has:
			next = append(readBy, owner)
		case !read && has:
			next = lo.Reject(readBy, func(o string, _ int) bool { return o == owner })
		default:
			continue
		}
		if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE items SET read_by = ? WHERE id = ?`), toJSONList(next), r.ID); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

const maxFullReadItemsDefault = 200

// CleanupChannelOwner enforces the retention invariant for one
// (channel, owner): the newest MAX_FULL_READ_ITEMS read items are kept
// in full; older read items are stripped (if they have a feedId) or
// hard-deleted (if they don't), per §4.3.
func (s *SQLStore) CleanupChannelOwner(ctx context.Context, channelID, owner string, maxFullRead int) error {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT `+itemColumns+` FROM items
		WHERE channel_id = ? AND stripped = ? AND read_by LIKE ?
		ORDER BY published DESC, id DESC
	`), channelID, false, "%\""+owner+"\"%")
	if err != nil {
		return err
	}
	if len(rows) <= maxFullRead {
		return nil
	}
	for _, r := range rows[maxFullRead:] {
		if r.FeedID.Valid && r.FeedID.String != "" {
			if err := s.stripItem(ctx, r.ID); err != nil {
				return err
			}
		} else {
			if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM items WHERE id = ?`), r.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLStore) stripItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE items SET url = '', type = '', name = '', summary = '', content_text = '', content_html = '',
			author_name = '', author_url = '', author_photo = '', category = '[]', photo = '[]', video = '[]', audio = '[]',
			like_of = '[]', repost_of = '[]', bookmark_of = '[]', in_reply_to = '[]', source_url = '', source_feed_url = '',
			stripped = ?
		WHERE id = ?
	`), true, id)
	return err
}

// CleanupAll runs CleanupChannelOwner across every distinct (channel,
// owner) pairing with read items, for a startup or periodic sweep.
func (s *SQLStore) CleanupAll(ctx context.Context, maxFullRead int) error {
	type pair struct {
		ChannelID string `db:"channel_id"`
		Owner     string `db:"owner"`
	}
	var pairs []pair
	err := s.db.SelectContext(ctx, &pairs, `
		SELECT DISTINCT i.channel_id AS channel_id, c.owner AS owner
		FROM items i JOIN channels c ON c.id = i.channel_id
	`)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := s.CleanupChannelOwner(ctx, p.ChannelID, p.Owner, maxFullRead); err != nil {
			return err
		}
	}
	return nil
}

// UnreadCount counts channel's items not read by owner, published
// within the last retentionDays and not stripped, per §4.3.
func (s *SQLStore) UnreadCount(ctx context.Context, channelID, owner string, retentionDays int) (int, error) {
	since := time.Now().AddDate(0, 0, -retentionDays)
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind(`
		SELECT COUNT(*) FROM items
		WHERE channel_id = ? AND stripped = ? AND published >= ? AND read_by NOT LIKE ?
	`), channelID, false, since, "%\""+owner+"\"%")
	return count, err
}

// RemoveItems deletes entries (matched by id/uid/url) from a channel,
// for the Microsub `remove` timeline action.
func (s *SQLStore) RemoveItems(ctx context.Context, channelID string, entries []string) (int, error) {
	removed := 0
	for _, e := range entries {
		res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM items WHERE channel_id = ? AND (id = ? OR uid = ? OR url = ?)`), channelID, e, e, e)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}

// DeleteItemsByAuthor hard-deletes every item authored by authorURL
// across all of owner's channels, for block propagation (§4.3).
func (s *SQLStore) DeleteItemsByAuthor(ctx context.Context, owner, authorURL string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM items WHERE author_url = ? AND channel_id IN (SELECT id FROM channels WHERE owner = ?)
	`), authorURL, owner)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SearchItems performs a weighted scan over name/summary/content/author
// fields (§4.3's fallback weighted substring scan), returning channel's
// matching items ordered by descending score then recency. Used as a
// best-effort fallback on backends (SQLite) without native full-text
// support; on PostgreSQL callers should prefer native tsvector ranking,
// but this scan is backend-agnostic and correct on both.
func (s *SQLStore) SearchItems(ctx context.Context, channelID, query string, limit int) ([]model.Item, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT `+itemColumns+` FROM items
		WHERE channel_id = ? AND stripped = ? AND (
			name LIKE ? OR summary LIKE ? OR content_text LIKE ? OR content_html LIKE ? OR author_name LIKE ?
		)
		ORDER BY published DESC
		LIMIT ?
	`), channelID, false, like(query), like(query), like(query), like(query), like(query), limit*4)
	if err != nil {
		return nil, err
	}

	type scored struct {
		item  model.Item
		score int
	}
	weights := []struct {
		field  func(itemRow) string
		weight int
	}{
		{func(r itemRow) string { return r.Name }, 10},
		{func(r itemRow) string { return r.Summary }, 5},
		{func(r itemRow) string { return r.ContentText }, 3},
		{func(r itemRow) string { return r.ContentHTML }, 2},
		{func(r itemRow) string { return r.AuthorName }, 1},
	}
	out := make([]scored, 0, len(rows))
	for _, r := range rows {
		score := 0
		for _, w := range weights {
			if containsFold(w.field(r), query) {
				score += w.weight
			}
		}
		out = append(out, scored{item: r.toModel(), score: score})
	}
	// Stable insertion sort by score descending; result sets are small
	// (bounded by limit*4 rows fetched above).
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].score > out[j-1].score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	items := make([]model.Item, len(out))
	for i, o := range out {
		items[i] = o.item
	}
	return items, nil
}

func like(q string) string { return "%" + q + "%" }

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// UpsertNotification writes a verified webmention into owner's
// notifications channel, keyed by (source, target): update in place if
// an entry already exists, insert otherwise (§4.8 Persist).
func (s *SQLStore) UpsertNotification(ctx context.Context, channelID string, it *model.Item) (created bool, err error) {
	var existing itemRow
	gerr := s.db.GetContext(ctx, &existing, s.rebind(`
		SELECT `+itemColumns+` FROM items WHERE channel_id = ? AND notif_source = ? AND notif_target = ?
	`), channelID, it.NotifSource, it.NotifTarget)
	if gerr == nil {
		it.ID = existing.ID
		it.UID = existing.UID
		it.CreatedAt = existing.CreatedAt
		row := fromModel(it)
		_, err = s.db.ExecContext(ctx, s.rebind(`
			UPDATE items SET name = ?, summary = ?, content_text = ?, content_html = ?, author_name = ?, author_url = ?,
				author_photo = ?, notif_type = ?, updated = ?
			WHERE id = ?
		`), row.Name, row.Summary, row.ContentText, row.ContentHTML, row.AuthorName, row.AuthorURL, row.AuthorPhoto, row.NotifType, time.Now(), row.ID)
		return false, err
	}
	it.ChannelID = channelID
	created, err = s.AddItem(ctx, it)
	return created, err
}

// DeleteNotification removes a (source, target) webmention entry,
// reflecting a retraction at the source.
func (s *SQLStore) DeleteNotification(ctx context.Context, channelID, source, target string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM items WHERE channel_id = ? AND notif_source = ? AND notif_target = ?`), channelID, source, target)
	return err
}
