package syncfan

import (
	"context"
	"fmt"
	"time"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
	"github.com/voxcord/lobbyd/internal/policy"
)

// BuildSnapshot assembles the full-replace state payload for a lobby from
// platform ground truth. nextRenameAt carries the deferred-rename ETA when
// one is parked in the throttle.
func BuildSnapshot(ctx context.Context, gw platform.Gateway, lob *models.Lobby, nextRenameAt *time.Time) (*models.Snapshot, error) {
	room, err := gw.Room(ctx, lob.VoiceRoomID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: fetch room: %w", err)
	}
	members, err := gw.RoomMembers(ctx, lob.VoiceRoomID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list members: %w", err)
	}
	allowed, err := policy.AllowedSet(ctx, gw, lob.VoiceRoomID)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		CommunityID:  lob.CommunityID,
		OwnerID:      lob.OwnerID,
		RoomID:       lob.VoiceRoomID,
		RoomName:     room.Name,
		Policy:       lob.Policy,
		UserLimit:    lob.UserLimit,
		NextRenameAt: nextRenameAt,
		GeneratedAt:  time.Now().UTC(),
	}

	// Display info is best effort; a failed lookup degrades the payload,
	// not the publish.
	if community, err := gw.Community(ctx, lob.CommunityID); err == nil {
		snap.CommunityName = community.Name
	}

	for _, m := range members {
		if m.ID == lob.OwnerID {
			snap.OwnerName = m.DisplayName
		}
		snap.Members = append(snap.Members, models.SnapshotMember{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Allowed:     allowed[m.ID],
			Kickable:    !m.Bot && m.ID != lob.OwnerID,
		})
	}
	return snap, nil
}
