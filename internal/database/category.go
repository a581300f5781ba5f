package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voxcord/lobbyd/internal/models"
)

// CategoryMapping fetches a community's create-room mapping.
func (s *Store) CategoryMapping(ctx context.Context, communityID string) (*models.CategoryMapping, error) {
	var m models.CategoryMapping
	q := `
	SELECT community_id, public_room_id, muted_room_id, locked_room_id,
	       COALESCE(parent_room_id, ''), separate_text
	FROM category_mappings
	WHERE community_id = $1
	`
	err := s.pool.QueryRow(ctx, q, communityID).Scan(
		&m.CommunityID, &m.PublicRoomID, &m.MutedRoomID, &m.LockedRoomID,
		&m.ParentRoomID, &m.SeparateText,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("community %s: %w", communityID, models.ErrNoMapping)
		}
		return nil, fmt.Errorf("query category mapping: %w", err)
	}
	return &m, nil
}

// AllMappings returns every community's mapping, for the sweep's healing
// pass.
func (s *Store) AllMappings(ctx context.Context) ([]models.CategoryMapping, error) {
	q := `
	SELECT community_id, public_room_id, muted_room_id, locked_room_id,
	       COALESCE(parent_room_id, ''), separate_text
	FROM category_mappings
	`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query category mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.CategoryMapping
	for rows.Next() {
		var m models.CategoryMapping
		err := rows.Scan(&m.CommunityID, &m.PublicRoomID, &m.MutedRoomID,
			&m.LockedRoomID, &m.ParentRoomID, &m.SeparateText)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// UpsertCategoryMapping writes a community's mapping, replacing any previous
// row. Used both for initial setup and for healing a mapping whose
// create-room vanished on the platform.
func (s *Store) UpsertCategoryMapping(ctx context.Context, m *models.CategoryMapping) error {
	q := `
	INSERT INTO category_mappings (
		community_id, public_room_id, muted_room_id, locked_room_id,
		parent_room_id, separate_text
	)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	ON CONFLICT (community_id) DO UPDATE SET
		public_room_id = EXCLUDED.public_room_id,
		muted_room_id  = EXCLUDED.muted_room_id,
		locked_room_id = EXCLUDED.locked_room_id,
		parent_room_id = EXCLUDED.parent_room_id,
		separate_text  = EXCLUDED.separate_text
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			m.CommunityID, m.PublicRoomID, m.MutedRoomID, m.LockedRoomID,
			m.ParentRoomID, m.SeparateText)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert category mapping: %w", err)
	}
	return nil
}
