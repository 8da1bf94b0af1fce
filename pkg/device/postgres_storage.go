package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage is a pgx-backed implementation of the Storage interface.
// Tokens, preferences, capabilities, and metadata are stored as jsonb so the
// whole device row can be replaced atomically by Save, which also gives
// cross-instance writers last-write-wins semantics at row granularity.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a device storage backed by the given pool. The
// schema is provisioned by the goose migrations shipped with this module.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

const deviceColumns = `device_id, owner_id, platform, tokens, preferences,
	capabilities, metadata, is_active, is_verified, interactions,
	last_active_at, created_at, updated_at`

func (s *PostgresStorage) Get(ctx context.Context, deviceID string) (*Device, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

func (s *PostgresStorage) Save(ctx context.Context, d *Device) error {
	if d.DeviceID == "" {
		return ErrInvalidRegistration
	}

	tokens, err := json.Marshal(d.Tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	prefs, err := json.Marshal(d.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	caps, err := json.Marshal(d.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (device_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			platform = EXCLUDED.platform,
			tokens = EXCLUDED.tokens,
			preferences = EXCLUDED.preferences,
			capabilities = EXCLUDED.capabilities,
			metadata = EXCLUDED.metadata,
			is_active = EXCLUDED.is_active,
			is_verified = EXCLUDED.is_verified,
			interactions = EXCLUDED.interactions,
			last_active_at = EXCLUDED.last_active_at,
			updated_at = EXCLUDED.updated_at`,
		d.DeviceID, d.OwnerID, string(d.Platform), tokens, prefs, caps, meta,
		d.IsActive, d.IsVerified, d.Interactions,
		d.LastActiveAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", d.DeviceID, err)
	}
	return nil
}

func (s *PostgresStorage) ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE owner_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices
		SET is_active = false, updated_at = now()
		WHERE is_active AND last_active_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate inactive devices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDevice(row pgx.Row) (*Device, error) {
	var (
		d        Device
		platform string
		tokens   []byte
		prefs    []byte
		caps     []byte
		meta     []byte
	)
	if err := row.Scan(&d.DeviceID, &d.OwnerID, &platform, &tokens, &prefs,
		&caps, &meta, &d.IsActive, &d.IsVerified, &d.Interactions,
		&d.LastActiveAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Platform = Platform(platform)
	if err := json.Unmarshal(tokens, &d.Tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens for device %s: %w", d.DeviceID, err)
	}
	if err := json.Unmarshal(prefs, &d.Preferences); err != nil {
		return nil, fmt.Errorf("failed to decode preferences for device %s: %w", d.DeviceID, err)
	}
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &d.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to decode capabilities for device %s: %w", d.DeviceID, err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for device %s: %w", d.DeviceID, err)
		}
	}
	return &d, nil
}
