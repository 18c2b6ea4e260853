package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// GetSyncStatus returns the persisted status for a sync domain. A domain
// that has never synced reports idle with no timestamps.
func (r *PostgresRepository) GetSyncStatus(ctx context.Context, domain string) (*types.SyncStatus, error) {
	query := `
		SELECT domain, state, last_success_at, last_error_at, error_message
		FROM sync_status
		WHERE domain = $1
	`

	var status types.SyncStatus
	var lastSuccessAt, lastErrorAt *time.Time
	err := r.queryRow(ctx, query, domain).Scan(
		&status.Domain,
		&status.State,
		&lastSuccessAt,
		&lastErrorAt,
		&status.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &types.SyncStatus{Domain: domain, State: types.SyncIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync status: %w", err)
	}

	status.LastSuccessAt = lastSuccessAt
	status.LastErrorAt = lastErrorAt
	return &status, nil
}

// SetSyncStatus upserts the status row for a sync domain.
func (r *PostgresRepository) SetSyncStatus(ctx context.Context, status *types.SyncStatus) error {
	if status == nil || status.Domain == "" {
		return fmt.Errorf("set sync status: domain is required")
	}

	query := `
		INSERT INTO sync_status (domain, state, last_success_at, last_error_at, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain) DO UPDATE SET
			state = EXCLUDED.state,
			last_success_at = EXCLUDED.last_success_at,
			last_error_at = EXCLUDED.last_error_at,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.exec(ctx, query,
		status.Domain,
		string(status.State),
		status.LastSuccessAt,
		status.LastErrorAt,
		status.ErrorMessage,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	return nil
}
