package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// ErrDuplicateSource indicates a source that already has a queue item.
var ErrDuplicateSource = errors.New("source already queued")

// NormalizeSource produces the dedup key for a source. Local paths are made
// absolute and case-folded; remote references are trimmed and their scheme and
// host case-folded, leaving path and query intact since those can be
// case-sensitive.
func NormalizeSource(source string, kind SourceKind) string {
	trimmed := strings.TrimSpace(source)
	if kind == SourceRemote {
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Scheme == "" {
			return trimmed
		}
		parsed.Scheme = strings.ToLower(parsed.Scheme)
		parsed.Host = strings.ToLower(parsed.Host)
		return parsed.String()
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		abs = filepath.Clean(trimmed)
	}
	return strings.ToLower(abs)
}

// Enqueue inserts a new pending item at the tail of the queue. Duplicate
// sources are rejected with ErrDuplicateSource.
func (s *Store) Enqueue(ctx context.Context, source string, kind SourceKind, title string) (*Item, error) {
	normalized := NormalizeSource(source, kind)
	if normalized == "" {
		return nil, errors.New("source is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM queue_items WHERE normalized_source = ?", normalized,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check duplicate source: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, source)
	}

	var maxPosition sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(position) FROM queue_items").Scan(&maxPosition); err != nil {
		return nil, fmt.Errorf("next queue position: %w", err)
	}

	now := time.Now().UTC()
	item := &Item{
		Source:     strings.TrimSpace(source),
		SourceKind: kind,
		Title:      strings.TrimSpace(title),
		Status:     StatusPending,
		Position:   maxPosition.Int64 + 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO queue_items
         (source, normalized_source, source_kind, title, status, position, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Source,
		normalized,
		string(item.SourceKind),
		nullableString(item.Title),
		item.Status,
		item.Position,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted id: %w", err)
	}
	item.ID = id

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	return item, nil
}

// ClaimNextPending atomically transitions the lowest-positioned pending item
// to running and returns it. Returns nil when nothing is pending.
func (s *Store) ClaimNextPending(ctx context.Context) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE status = ? ORDER BY position LIMIT 1`, StatusPending)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next pending: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusRunning, now.Format(time.RFC3339Nano), item.ID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("claim item %d: %w", item.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim item %d: %w", item.ID, err)
	}
	if affected == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	item.Status = StatusRunning
	item.UpdatedAt = now
	return item, nil
}

// Remove deletes an item from the queue. Running items cannot be removed.
func (s *Store) Remove(ctx context.Context, id int64) error {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %d not found", id)
	}
	if item.Status == StatusRunning {
		return fmt.Errorf("item %d is running; cancel the run before removing it", id)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", id); err != nil {
		return fmt.Errorf("remove item %d: %w", id, err)
	}
	return nil
}

// Move repositions a pending item to the given one-based index among all
// items, renumbering positions in a single transaction.
func (s *Store) Move(ctx context.Context, id int64, newIndex int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, "SELECT id, status FROM queue_items ORDER BY position")
	if err != nil {
		return fmt.Errorf("load queue order: %w", err)
	}
	type entry struct {
		id     int64
		status Status
	}
	var order []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.status); err != nil {
			rows.Close()
			return err
		}
		order = append(order, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	fromIndex := -1
	for i, e := range order {
		if e.id == id {
			if e.status != StatusPending {
				return fmt.Errorf("item %d is %s; only pending items can be moved", id, e.status)
			}
			fromIndex = i
			break
		}
	}
	if fromIndex == -1 {
		return fmt.Errorf("item %d not found", id)
	}

	if newIndex < 1 {
		newIndex = 1
	}
	if newIndex > len(order) {
		newIndex = len(order)
	}
	target := newIndex - 1

	moved := order[fromIndex]
	order = append(order[:fromIndex], order[fromIndex+1:]...)
	order = append(order[:target], append([]entry{moved}, order[target:]...)...)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, e := range order {
		if _, err := tx.ExecContext(ctx,
			"UPDATE queue_items SET position = ?, updated_at = ? WHERE id = ?",
			int64(i+1), now, e.id); err != nil {
			return fmt.Errorf("renumber item %d: %w", e.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move: %w", err)
	}
	return nil
}

// RetryFailed resets failed items back to pending, keeping their identity and
// queue position. Returns the number of items reset.
func (s *Store) RetryFailed(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`UPDATE queue_items
         SET status = ?, error_message = NULL,
             progress_stage = NULL, progress_percent = 0, progress_message = NULL,
             updated_at = ?
         WHERE status = ?`,
		StatusPending, now, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return int(affected), nil
}

// ResetStuckRunning returns items left in running state by an interrupted
// process back to pending. Called on startup before a new run begins.
func (s *Store) ResetStuckRunning(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, updated_at = ? WHERE status = ?`,
		StatusPending, now, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("reset running items: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset running items: %w", err)
	}
	return int(affected), nil
}

// Clear removes all items regardless of status.
func (s *Store) Clear(ctx context.Context) (int, error) {
	return s.clearWhere(ctx, "", nil)
}

// ClearCompleted removes completed and cancelled items.
func (s *Store) ClearCompleted(ctx context.Context) (int, error) {
	return s.clearWhere(ctx, "status IN (?, ?)", []any{StatusCompleted, StatusCancelled})
}

// ClearFailed removes failed items.
func (s *Store) ClearFailed(ctx context.Context) (int, error) {
	return s.clearWhere(ctx, "status = ?", []any{StatusFailed})
}

func (s *Store) clearWhere(ctx context.Context, where string, args []any) (int, error) {
	query := "DELETE FROM queue_items"
	if where != "" {
		query += " WHERE " + where
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear queue items: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear queue items: %w", err)
	}
	return int(affected), nil
}
