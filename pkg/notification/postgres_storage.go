package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pushkit/pushkit/pkg/device"
)

// PostgresStorage is a pgx-backed implementation of the Storage interface.
// Target entries live in their own table so per-device outcomes can be
// written atomically without rewriting the whole record; everything else is
// jsonb on the notifications row.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a record storage backed by the given pool.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) Create(ctx context.Context, rec *Record) error {
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (
			id, owner_id, content, settings, scheduled_for, status,
			errors, flags, stats, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, '[]', '{}', '{}', $7, $8)`,
		rec.ID, rec.OwnerID, content, settings, rec.ScheduledFor,
		string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification %s: %w", rec.ID, err)
	}

	for _, t := range rec.Targets {
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_targets (
				notification_id, device_id, platform, provider, token,
				status, provider_message_id, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, t.DeviceID, string(t.Platform), string(t.Provider),
			t.Token, string(t.Status), t.ProviderMessageID, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert target %s/%s: %w", rec.ID, t.DeviceID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStorage) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, content, settings, scheduled_for, status,
			errors, flags, stats, created_at, updated_at,
			dispatched_at, completed_at
		FROM notifications WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT device_id, platform, provider, token, status,
			provider_message_id, updated_at
		FROM notification_targets
		WHERE notification_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t                  TargetEntry
			platform, provider string
			status             string
		)
		if err := rows.Scan(&t.DeviceID, &platform, &provider, &t.Token,
			&status, &t.ProviderMessageID, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Platform = device.Platform(platform)
		t.Provider = device.Provider(provider)
		t.Status = TargetStatus(status)
		rec.Targets = append(rec.Targets, t)
	}
	return rec, rows.Err()
}

func (s *PostgresStorage) Update(ctx context.Context, rec *Record) error {
	errsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}
	flags, err := json.Marshal(recordFlags(rec))
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET
			status = $2, errors = $3, flags = $4, stats = $5,
			updated_at = $6, dispatched_at = $7, completed_at = $8
		WHERE id = $1`,
		rec.ID, string(rec.Status), errsJSON, flags, stats,
		rec.UpdatedAt, rec.DispatchedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	for _, t := range rec.Targets {
		if err := s.UpdateTarget(ctx, rec.ID, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStorage) ClaimPending(ctx context.Context, id string, now time.Time) (bool, error) {
	// Conditional update is the claim: only one worker can move the row out
	// of pending.
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2, dispatched_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(StatusSent), now, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to claim notification %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) UpdateTarget(ctx context.Context, id string, target TargetEntry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_targets
		SET status = $3, provider_message_id = $4, updated_at = $5
		WHERE notification_id = $1 AND device_id = $2`,
		id, target.DeviceID, string(target.Status),
		target.ProviderMessageID, target.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update target %s/%s: %w", id, target.DeviceID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTargetNotFound
	}
	return nil
}

func (s *PostgresStorage) ListDue(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	query := `
		SELECT id, owner_id, content, settings, scheduled_for, status,
			errors, flags, stats, created_at, updated_at,
			dispatched_at, completed_at
		FROM notifications
		WHERE status = $1 AND (scheduled_for IS NULL OR scheduled_for <= $2)
		ORDER BY created_at`
	args := []any{string(StatusPending), now}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	return s.listRecords(ctx, query, args...)
}

func (s *PostgresStorage) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Record, error) {
	query := `
		SELECT id, owner_id, content, settings, scheduled_for, status,
			errors, flags, stats, created_at, updated_at,
			dispatched_at, completed_at
		FROM notifications
		WHERE owner_id = $1
		ORDER BY created_at DESC
		OFFSET $2`
	args := []any{ownerID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	return s.listRecords(ctx, query, args...)
}

func (s *PostgresStorage) listRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Targets are loaded per record; due/owner listings are small and
	// bounded by the scheduler batch limit.
	for i := range out {
		full, err := s.Get(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i] = *full
	}
	return out, nil
}

// flags groups the orthogonal read/click/dismiss state into one jsonb
// column.
type flags struct {
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	Clicked     bool       `json:"clicked"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
	Dismissed   bool       `json:"dismissed"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

func recordFlags(rec *Record) flags {
	return flags{
		Read: rec.Read, ReadAt: rec.ReadAt,
		Clicked: rec.Clicked, ClickedAt: rec.ClickedAt,
		Dismissed: rec.Dismissed, DismissedAt: rec.DismissedAt,
	}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec      Record
		status   string
		content  []byte
		settings []byte
		errsJSON []byte
		flagsRaw []byte
		stats    []byte
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &content, &settings,
		&rec.ScheduledFor, &status, &errsJSON, &flagsRaw, &stats,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.DispatchedAt, &rec.CompletedAt); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if err := json.Unmarshal(content, &rec.Content); err != nil {
		return nil, fmt.Errorf("failed to decode content for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(settings, &rec.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings for %s: %w", rec.ID, err)
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &rec.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors for %s: %w", rec.ID, err)
		}
	}
	if len(flagsRaw) > 0 {
		var f flags
		if err := json.Unmarshal(flagsRaw, &f); err != nil {
			return nil, fmt.Errorf("failed to decode flags for %s: %w", rec.ID, err)
		}
		rec.Read, rec.ReadAt = f.Read, f.ReadAt
		rec.Clicked, rec.ClickedAt = f.Clicked, f.ClickedAt
		rec.Dismissed, rec.DismissedAt = f.Dismissed, f.DismissedAt
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &rec.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode stats for %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}
