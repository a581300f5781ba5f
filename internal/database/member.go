package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voxcord/lobbyd/internal/models"
)

// ErrMemberUnknown is returned when no member row exists yet.
var ErrMemberUnknown = errors.New("member not found")

// EnsureMember lazily creates the community-scoped member row on first
// interaction, refreshing the display name on later calls. Member rows are
// never deleted while dependent rows exist.
func (s *Store) EnsureMember(ctx context.Context, communityID, platformID, displayName string) error {
	q := `
	INSERT INTO members (community_id, platform_id, display_name)
	VALUES ($1, $2, $3)
	ON CONFLICT (community_id, platform_id)
	DO UPDATE SET display_name = EXCLUDED.display_name
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, communityID, platformID, displayName)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure member %s/%s: %w", communityID, platformID, err)
	}
	return nil
}

// Member fetches the community-scoped member row.
func (s *Store) Member(ctx context.Context, communityID, platformID string) (*models.OwningMember, error) {
	var m models.OwningMember
	q := `
	SELECT community_id, platform_id, display_name, created_at
	FROM members
	WHERE community_id = $1 AND platform_id = $2
	`
	err := s.pool.QueryRow(ctx, q, communityID, platformID).Scan(
		&m.CommunityID, &m.PlatformID, &m.DisplayName, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member %s/%s: %w", communityID, platformID, ErrMemberUnknown)
		}
		return nil, fmt.Errorf("query member: %w", err)
	}
	return &m, nil
}
