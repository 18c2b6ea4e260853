package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

const assetColumns = `
	asset_id, blockchain, namespace, reference, selector,
	symbol, name, decimals, icon_url, chain_id, source, verified, updated_at
`

// UpsertAsset inserts or replaces an asset keyed by its canonical id.
// Last write wins: concurrent writers for the same key converge to the
// same metadata, so no row locking is needed.
func (r *PostgresRepository) UpsertAsset(ctx context.Context, asset *types.Asset) error {
	if asset == nil || asset.AssetID == "" {
		return fmt.Errorf("upsert asset: asset_id is required")
	}

	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (asset_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			icon_url = EXCLUDED.icon_url,
			chain_id = EXCLUDED.chain_id,
			source = EXCLUDED.source,
			verified = EXCLUDED.verified,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.exec(ctx, query,
		asset.AssetID,
		asset.Blockchain,
		asset.Namespace,
		asset.Reference,
		asset.Selector,
		asset.Symbol,
		asset.Name,
		asset.Decimals,
		asset.IconURL,
		asset.ChainID,
		asset.Source,
		asset.Verified,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

// FindAsset returns the best match for the criteria or ErrNotFound.
func (r *PostgresRepository) FindAsset(ctx context.Context, criteria AssetCriteria) (*types.Asset, error) {
	query, args := buildAssetQuery(criteria, 1)

	row := r.queryRow(ctx, query, args...)
	asset, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find asset: %w", err)
	}
	return asset, nil
}

// FindAssets returns every match for the criteria.
func (r *PostgresRepository) FindAssets(ctx context.Context, criteria AssetCriteria) ([]*types.Asset, error) {
	query, args := buildAssetQuery(criteria, criteria.Limit)

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find assets: %w", err)
	}
	defer rows.Close()

	var assets []*types.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// buildAssetQuery assembles the filtered select. limit <= 0 means no limit.
func buildAssetQuery(criteria AssetCriteria, limit int) (string, []any) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE 1=1`
	var args []any
	argPos := 1

	add := func(clause string, value any) {
		query += fmt.Sprintf(" AND %s = $%d", clause, argPos)
		args = append(args, value)
		argPos++
	}

	if criteria.AssetID != "" {
		add("asset_id", criteria.AssetID)
	}
	if criteria.Blockchain != "" {
		add("blockchain", strings.ToLower(criteria.Blockchain))
	}
	if criteria.Reference != "" {
		add("reference", criteria.Reference)
	}
	if criteria.Symbol != "" {
		query += fmt.Sprintf(" AND upper(symbol) = upper($%d)", argPos)
		args = append(args, criteria.Symbol)
		argPos++
	}
	if criteria.Verified != nil {
		add("verified", *criteria.Verified)
	}

	// Verified rows first so the fast path prefers registry-confirmed
	// metadata over persisted fallbacks.
	query += " ORDER BY verified DESC, updated_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, limit)
	}
	return query, args
}

func scanAsset(row pgx.Row) (*types.Asset, error) {
	var asset types.Asset
	var updatedAt time.Time

	err := row.Scan(
		&asset.AssetID,
		&asset.Blockchain,
		&asset.Namespace,
		&asset.Reference,
		&asset.Selector,
		&asset.Symbol,
		&asset.Name,
		&asset.Decimals,
		&asset.IconURL,
		&asset.ChainID,
		&asset.Source,
		&asset.Verified,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}
