package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
	"github.com/voxcord/lobbyd/internal/policy"
)

// Apply implements models.CommandSink: the one entry point through which
// the dashboard and remote clients mutate a lobby. The authoritative row is
// re-read first; ErrLobbyGone propagates so the fan-out can tear down the
// stale subscription defensively.
func (m *Manager) Apply(ctx context.Context, communityID, ownerID string, cmd models.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	lob, err := m.Store.LobbyByOwner(ctx, communityID, ownerID)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case models.CommandSetPolicy:
		return m.setPolicy(ctx, lob, cmd.Policy)
	case models.CommandSetLimit:
		return m.setLimit(ctx, lob, cmd.Limit)
	case models.CommandRename:
		return m.requestRename(ctx, lob, cmd.Fragment)
	case models.CommandAddMember:
		return m.addEntity(ctx, lob, cmd.MemberID, cmd.RoleID)
	case models.CommandRemoveMember:
		return m.removeMember(ctx, lob, cmd.MemberID)
	case models.CommandRefresh:
		m.publish(ctx, lob)
		return nil
	}
	return fmt.Errorf("unknown command kind %q", cmd.Kind)
}

func (m *Manager) setPolicy(ctx context.Context, lob *models.Lobby, target models.Policy) error {
	if err := m.Policy.Apply(ctx, lob, target, false); err != nil {
		return err
	}
	if err := m.Store.UpdatePolicy(ctx, lob.VoiceRoomID, target); err != nil {
		if errors.Is(err, models.ErrLobbyGone) {
			return err
		}
		return fmt.Errorf("persist policy: %w", err)
	}
	lob.Policy = target
	m.refreshSurfaces(ctx, lob)
	return nil
}

func (m *Manager) setLimit(ctx context.Context, lob *models.Lobby, limit int) error {
	if err := m.GW.UpdateRoom(ctx, lob.VoiceRoomID, platform.RoomPatch{UserLimit: &limit}); err != nil {
		return fmt.Errorf("set room limit: %w", err)
	}
	if err := m.Store.UpdateLimit(ctx, lob.VoiceRoomID, limit); err != nil {
		return err
	}
	lob.UserLimit = limit
	m.refreshSurfaces(ctx, lob)
	return nil
}

// requestRename runs the fragment through the throttle. An immediate accept
// applies synchronously via ApplyRename; a deferred one only re-publishes
// the snapshot so clients can show the ETA.
func (m *Manager) requestRename(ctx context.Context, lob *models.Lobby, fragment string) error {
	appliedNow, eta := m.Renamer.Request(lob.VoiceRoomID, fragment)
	if !appliedNow {
		m.Log.WithField("room", lob.VoiceRoomID).
			Infof("rename deferred for %s", eta.Round(time.Second))
		m.publish(ctx, lob)
	}
	return nil
}

// ApplyRename is the throttle's apply callback, also invoked for immediate
// accepts. It re-reads the row because a deferred timer may fire long after
// the lobby died.
func (m *Manager) ApplyRename(lobbyID, fragment string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	lob, err := m.Store.LobbyByVoiceRoom(ctx, lobbyID)
	if err != nil {
		// Lobby already gone; the rename has nowhere to land.
		return
	}

	name := models.DeriveRoomName("", fragment)
	if err := m.GW.UpdateRoom(ctx, lob.VoiceRoomID, platform.RoomPatch{Name: &name}); err != nil {
		m.Log.WithField("room", lobbyID).Warnf("apply rename: %v", err)
		return
	}
	if lob.SeparateText() {
		if err := m.GW.UpdateRoom(ctx, lob.TextRoomID, platform.RoomPatch{Name: &name}); err != nil {
			m.Log.WithField("room", lobbyID).Warnf("rename text mirror: %v", err)
		}
	}
	if err := m.Store.RecordRename(ctx, lob.VoiceRoomID, fragment); err != nil && !errors.Is(err, models.ErrLobbyGone) {
		m.Log.WithField("room", lobbyID).Warnf("record rename: %v", err)
	}
	lob.NameFragment = fragment
	m.refreshSurfaces(ctx, lob)
}

// addEntity grants an explicit allow override to a member or role, which
// admits them under any policy.
func (m *Manager) addEntity(ctx context.Context, lob *models.Lobby, memberID, roleID string) error {
	target := platform.MemberTarget(memberID)
	if memberID == "" {
		target = platform.RoleTarget(roleID)
	}
	if err := m.GW.SetOverwrite(ctx, lob.VoiceRoomID, platform.Overwrite{
		Target: target,
		Allow:  policy.BaselineAllow,
	}); err != nil {
		return fmt.Errorf("grant lobby access: %w", err)
	}
	if lob.SeparateText() {
		if err := m.GW.SetOverwrite(ctx, lob.TextRoomID, platform.Overwrite{
			Target: target,
			Allow:  platform.PermViewRoom,
		}); err != nil {
			m.Log.WithField("room", lob.VoiceRoomID).Warnf("grant text access: %v", err)
		}
	}
	m.publish(ctx, lob)
	return nil
}

// removeMember revokes a member's explicit override and disconnects them if
// present. The owner cannot be removed from their own lobby.
func (m *Manager) removeMember(ctx context.Context, lob *models.Lobby, memberID string) error {
	if memberID == lob.OwnerID {
		return ErrNotOwner
	}
	target := platform.MemberTarget(memberID)
	if err := m.GW.ClearOverwrite(ctx, lob.VoiceRoomID, target); err != nil && !platform.IsNotFound(err) {
		return fmt.Errorf("revoke lobby access: %w", err)
	}
	if lob.SeparateText() {
		if err := m.GW.ClearOverwrite(ctx, lob.TextRoomID, target); err != nil && !platform.IsNotFound(err) {
			m.Log.WithField("room", lob.VoiceRoomID).Warnf("revoke text access: %v", err)
		}
	}
	// Disconnect only while they are still in this lobby; a community-wide
	// disconnect would drop them from whatever room they moved on to.
	if members, err := m.GW.RoomMembers(ctx, lob.VoiceRoomID); err == nil &&
		lo.ContainsBy(members, func(mm platform.Member) bool { return mm.ID == memberID }) {
		if err := m.GW.DisconnectMember(ctx, lob.CommunityID, memberID); err != nil && !platform.IsNotFound(err) {
			// Already left; stale state, not a failure.
			m.Log.WithField("member", memberID).Warnf("disconnect removed member: %v", err)
		}
	}
	m.publish(ctx, lob)
	return nil
}

// refreshSurfaces re-renders the control surface and pushes a snapshot
// after a state change.
func (m *Manager) refreshSurfaces(ctx context.Context, lob *models.Lobby) {
	if err := m.Panel.Ensure(ctx, lob); err != nil {
		m.Log.WithField("room", lob.VoiceRoomID).Warnf("control surface refresh: %v", err)
	}
	m.publish(ctx, lob)
}
