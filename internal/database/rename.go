package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voxcord/lobbyd/internal/models"
)

// RecordRename persists an applied rename. It updates the lobby's stored
// fragment and appends a rename_events row, with one dedup rule applied in
// this single place: no event when the fragment is unchanged, and no event
// for the first-ever name (previous fragment empty). The first name is
// free; history starts with the second.
func (s *Store) RecordRename(ctx context.Context, voiceRoomID, fragment string) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var communityID, ownerID, prev string
		err := tx.QueryRow(ctx, `
			SELECT community_id, owner_id, COALESCE(name_fragment, '')
			FROM lobbies WHERE voice_room_id = $1 FOR UPDATE`,
			voiceRoomID).Scan(&communityID, &ownerID, &prev)
		if err != nil {
			if err == pgx.ErrNoRows {
				return models.ErrLobbyGone
			}
			return fmt.Errorf("read lobby for rename: %w", err)
		}
		if prev == fragment {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE lobbies SET name_fragment = NULLIF($2, '') WHERE voice_room_id = $1`,
			voiceRoomID, fragment)
		if err != nil {
			return fmt.Errorf("update lobby fragment: %w", err)
		}
		if prev == "" {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO rename_events (id, community_id, owner_id, fragment)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), communityID, ownerID, fragment)
		if err != nil {
			return fmt.Errorf("insert rename event: %w", err)
		}
		return nil
	})
}

// RecentRenames returns the owner's most recent rename events, one per
// distinct fragment, newest first, capped at limit. It feeds the dashboard's
// "recent names" quick-pick.
func (s *Store) RecentRenames(ctx context.Context, communityID, ownerID string, limit int) ([]models.RenameEvent, error) {
	q := `
	SELECT id, fragment, created_at FROM (
		SELECT DISTINCT ON (fragment) id, fragment, created_at
		FROM rename_events
		WHERE community_id = $1 AND owner_id = $2
		ORDER BY fragment, created_at DESC
	) recent
	ORDER BY created_at DESC
	LIMIT $3
	`
	rows, err := s.pool.Query(ctx, q, communityID, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent renames: %w", err)
	}
	defer rows.Close()

	var events []models.RenameEvent
	for rows.Next() {
		ev := models.RenameEvent{CommunityID: communityID, OwnerID: ownerID}
		if err := rows.Scan(&ev.ID, &ev.Fragment, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
