package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voxcord/lobbyd/internal/models"
)

const uniqueViolation = "23505"

// InsertLobby creates a new lobby row. The unique index on
// (community_id, owner_id) rejects a second active lobby for the same
// member; that case surfaces as models.ErrLobbyExists before any caller
// side effect.
func (s *Store) InsertLobby(ctx context.Context, lob *models.Lobby) error {
	q := `
	INSERT INTO lobbies (
		voice_room_id, text_room_id, panel_message_id,
		community_id, owner_id, policy, user_limit, name_fragment, created_at
	)
	VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9)
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			lob.VoiceRoomID, lob.TextRoomID, lob.PanelMessageID,
			lob.CommunityID, lob.OwnerID, lob.Policy, lob.UserLimit,
			lob.NameFragment, lob.CreatedAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("owner %s: %w", lob.OwnerID, models.ErrLobbyExists)
		}
		return fmt.Errorf("insert lobby: %w", err)
	}
	return nil
}

const lobbyColumns = `
	voice_room_id, COALESCE(text_room_id, ''), COALESCE(panel_message_id, ''),
	community_id, owner_id, policy, user_limit, COALESCE(name_fragment, ''), created_at`

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	err := row.Scan(
		&l.VoiceRoomID, &l.TextRoomID, &l.PanelMessageID,
		&l.CommunityID, &l.OwnerID, &l.Policy, &l.UserLimit,
		&l.NameFragment, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrLobbyGone
		}
		return nil, err
	}
	return &l, nil
}

// LobbyByVoiceRoom fetches the lobby owning a voice room, or
// models.ErrLobbyGone.
func (s *Store) LobbyByVoiceRoom(ctx context.Context, voiceRoomID string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE voice_room_id = $1`
	return scanLobby(s.pool.QueryRow(ctx, q, voiceRoomID))
}

// LobbyByOwner fetches a member's active lobby, or models.ErrLobbyGone.
func (s *Store) LobbyByOwner(ctx context.Context, communityID, ownerID string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE community_id = $1 AND owner_id = $2`
	return scanLobby(s.pool.QueryRow(ctx, q, communityID, ownerID))
}

// LobbyByRoom resolves either a voice room or its text mirror to the lobby.
func (s *Store) LobbyByRoom(ctx context.Context, roomID string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE voice_room_id = $1 OR text_room_id = $1`
	return scanLobby(s.pool.QueryRow(ctx, q, roomID))
}

// LobbyByPanelMessage resolves a control-surface message back to its lobby.
func (s *Store) LobbyByPanelMessage(ctx context.Context, messageID string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE panel_message_id = $1`
	return scanLobby(s.pool.QueryRow(ctx, q, messageID))
}

// AllLobbies returns every persisted lobby, for the reconciliation sweep.
func (s *Store) AllLobbies(ctx context.Context) ([]models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query lobbies: %w", err)
	}
	defer rows.Close()

	var lobbies []models.Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, *l)
	}
	return lobbies, rows.Err()
}

// UpdateOwner moves ownership of a lobby. The unique index rejects handing
// the lobby to a member who already owns another one.
func (s *Store) UpdateOwner(ctx context.Context, voiceRoomID, newOwnerID string) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE lobbies SET owner_id = $2 WHERE voice_room_id = $1`,
			voiceRoomID, newOwnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrLobbyGone
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("owner %s: %w", newOwnerID, models.ErrLobbyExists)
		}
		return err
	}
	return nil
}

// UpdatePolicy persists a policy change.
func (s *Store) UpdatePolicy(ctx context.Context, voiceRoomID string, policy models.Policy) error {
	return s.exec(ctx, `UPDATE lobbies SET policy = $2 WHERE voice_room_id = $1`, voiceRoomID, policy)
}

// UpdateLimit persists a user-cap change.
func (s *Store) UpdateLimit(ctx context.Context, voiceRoomID string, limit int) error {
	return s.exec(ctx, `UPDATE lobbies SET user_limit = $2 WHERE voice_room_id = $1`, voiceRoomID, limit)
}

// UpdateTextRoom records a (re)created text mirror for a lobby.
func (s *Store) UpdateTextRoom(ctx context.Context, voiceRoomID, textRoomID string) error {
	return s.exec(ctx, `UPDATE lobbies SET text_room_id = NULLIF($2, '') WHERE voice_room_id = $1`,
		voiceRoomID, textRoomID)
}

// UpdatePanelMessage records the control-surface message id for a lobby.
func (s *Store) UpdatePanelMessage(ctx context.Context, voiceRoomID, messageID string) error {
	return s.exec(ctx, `UPDATE lobbies SET panel_message_id = NULLIF($2, '') WHERE voice_room_id = $1`,
		voiceRoomID, messageID)
}

// DeleteLobby removes a lobby row. Deleting an already-deleted lobby is a
// no-op, which keeps teardown idempotent.
func (s *Store) DeleteLobby(ctx context.Context, voiceRoomID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lobbies WHERE voice_room_id = $1`, voiceRoomID)
	if err != nil {
		return fmt.Errorf("delete lobby: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q string, args ...interface{}) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrLobbyGone
		}
		return nil
	})
}
