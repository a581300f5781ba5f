package lifecycle

import (
	"context"
	"time"

	"github.com/voxcord/lobbyd/internal/models"
)

// Store is the persistence surface the manager needs. *database.Store
// implements it; tests substitute an in-memory fake.
type Store interface {
	InsertLobby(ctx context.Context, lob *models.Lobby) error
	LobbyByVoiceRoom(ctx context.Context, voiceRoomID string) (*models.Lobby, error)
	LobbyByOwner(ctx context.Context, communityID, ownerID string) (*models.Lobby, error)
	AllLobbies(ctx context.Context) ([]models.Lobby, error)
	UpdateOwner(ctx context.Context, voiceRoomID, newOwnerID string) error
	UpdatePolicy(ctx context.Context, voiceRoomID string, policy models.Policy) error
	UpdateLimit(ctx context.Context, voiceRoomID string, limit int) error
	UpdateTextRoom(ctx context.Context, voiceRoomID, textRoomID string) error
	DeleteLobby(ctx context.Context, voiceRoomID string) error
	EnsureMember(ctx context.Context, communityID, platformID, displayName string) error
	Member(ctx context.Context, communityID, platformID string) (*models.OwningMember, error)
	RecordRename(ctx context.Context, voiceRoomID, fragment string) error
	CategoryMapping(ctx context.Context, communityID string) (*models.CategoryMapping, error)
	AllMappings(ctx context.Context) ([]models.CategoryMapping, error)
	UpsertCategoryMapping(ctx context.Context, m *models.CategoryMapping) error
}

// Publisher is the sync fan-out surface: per-owner snapshot publishing and
// subscription lifecycle. Subscribe is idempotent; re-subscribing a live
// owner is a no-op.
type Publisher interface {
	Publish(ctx context.Context, lob *models.Lobby, nextRenameAt *time.Time) error
	PublishGone(ctx context.Context, communityID, ownerID string)
	Subscribe(ctx context.Context, communityID, ownerID string)
	Unsubscribe(communityID, ownerID string)
}

// Panel is the dashboard controller's self-healing entry point: make sure
// the lobby's control-surface message exists and reflects current state.
type Panel interface {
	Ensure(ctx context.Context, lob *models.Lobby) error
}

// Renamer is the rename throttle surface.
type Renamer interface {
	Request(lobbyID, fragment string) (appliedNow bool, eta time.Duration)
	PendingAt(lobbyID string) (time.Time, bool)
	Cancel(lobbyID string)
}
