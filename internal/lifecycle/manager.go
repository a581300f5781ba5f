// Package lifecycle drives the lobby state machine: creation from
// create-room joins, the periodic reconciliation sweep, ownership transfer,
// teardown, and the capability-typed command surface shared by the dashboard
// and remote clients.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
	"github.com/voxcord/lobbyd/internal/policy"
)

// ErrNotOwner rejects an action by anyone but the lobby owner.
var ErrNotOwner = errors.New("only the lobby owner can do that")

// Manager owns the lobby lifecycle. Handlers never hold a per-lobby lock;
// each one re-reads the authoritative row first and treats ErrLobbyGone as
// an idempotent abort, which tolerates a teardown racing a late command.
type Manager struct {
	Log    *logrus.Logger
	GW     platform.Gateway
	Store  Store
	Policy *policy.Engine

	// Publisher, Panel, and Renamer are wired after construction; they
	// depend on the Manager themselves.
	Publisher Publisher
	Panel     Panel
	Renamer   Renamer

	SweepInterval time.Duration
}

// New builds a Manager. Publisher, Panel, and Renamer must be assigned
// before Run.
func New(gw platform.Gateway, store Store, eng *policy.Engine, sweepInterval time.Duration, log *logrus.Logger) *Manager {
	return &Manager{
		Log:           log,
		GW:            gw,
		Store:         store,
		Policy:        eng,
		SweepInterval: sweepInterval,
	}
}

// Run consumes platform presence events and drives the reconciliation
// sweep until ctx is done. Every event is handled as an independent,
// non-blocking task.
func (m *Manager) Run(ctx context.Context) error {
	events, err := m.GW.PresenceEvents(ctx)
	if err != nil {
		return fmt.Errorf("open presence stream: %w", err)
	}

	ticker := time.NewTicker(m.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("presence stream closed")
			}
			go func(ev platform.PresenceEvent) {
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()
				if err := m.HandlePresence(hctx, ev); err != nil {
					m.Log.WithFields(logrus.Fields{
						"member": ev.MemberID,
						"room":   ev.ToRoomID,
					}).Warnf("presence handling failed: %v", err)
				}
			}(ev)
		case <-ticker.C:
			go m.Sweep(context.WithoutCancel(ctx))
		}
	}
}

// HandlePresence classifies one member movement: entering a create-room
// spawns a lobby, entering a tracked lobby may trigger a join request, and
// the owner leaving their lobby triggers an immediate reconcile.
func (m *Manager) HandlePresence(ctx context.Context, ev platform.PresenceEvent) error {
	if ev.ToRoomID != "" {
		mapping, err := m.Store.CategoryMapping(ctx, ev.CommunityID)
		if err == nil {
			if startPolicy, ok := mapping.PolicyForCreateRoom(ev.ToRoomID); ok {
				return m.createLobby(ctx, ev, mapping, startPolicy)
			}
		} else if !errors.Is(err, models.ErrNoMapping) {
			// A transient store failure here silently swallows a create-room
			// join; leave a trace for the member who got nothing.
			m.Log.WithField("community", ev.CommunityID).Warnf("read category mapping: %v", err)
		}

		if lob, err := m.Store.LobbyByVoiceRoom(ctx, ev.ToRoomID); err == nil {
			if err := m.handleLobbyJoin(ctx, lob, ev.MemberID); err != nil {
				return err
			}
		}
	}

	if ev.FromRoomID != "" && ev.FromRoomID != ev.ToRoomID {
		if lob, err := m.Store.LobbyByVoiceRoom(ctx, ev.FromRoomID); err == nil && lob.OwnerID == ev.MemberID {
			// Owner walked out; don't wait for the next sweep tick.
			m.reconcileLobby(ctx, lob)
		}
	}
	return nil
}

// createLobby runs the Absent -> Active transition for one member.
func (m *Manager) createLobby(ctx context.Context, ev platform.PresenceEvent, mapping *models.CategoryMapping, startPolicy models.Policy) error {
	log := m.Log.WithFields(logrus.Fields{"community": ev.CommunityID, "owner": ev.MemberID})

	// Uniqueness invariant: a member who already owns a lobby is routed back
	// into it instead of getting a second one.
	if existing, err := m.Store.LobbyByOwner(ctx, ev.CommunityID, ev.MemberID); err == nil {
		log.Info("member already owns a lobby, moving them back")
		if err := m.GW.MoveMember(ctx, ev.CommunityID, ev.MemberID, existing.VoiceRoomID); err != nil {
			return fmt.Errorf("move owner to existing lobby: %w", err)
		}
		return nil
	} else if !errors.Is(err, models.ErrLobbyGone) {
		return err
	}

	display := m.displayName(ctx, ev.CommunityID, ev.ToRoomID, ev.MemberID)
	if err := m.Store.EnsureMember(ctx, ev.CommunityID, ev.MemberID, display); err != nil {
		return err
	}

	parentID := mapping.ParentRoomID
	if parentID == "" {
		createRoom, err := m.GW.Room(ctx, ev.ToRoomID)
		if err != nil {
			return fmt.Errorf("resolve create-room parent: %w", err)
		}
		parentID = createRoom.ParentID
	}

	plan, err := policy.ComputeOverrides(startPolicy, startPolicy, mapping.SeparateText)
	if err != nil {
		return err
	}
	name := models.DeriveRoomName(display, "")
	ownerAllow := platform.Overwrite{
		Target: platform.MemberTarget(ev.MemberID),
		Allow:  policy.BaselineAllow,
	}

	voice, err := m.GW.CreateRoom(ctx, ev.CommunityID, platform.CreateRoomRequest{
		Kind:     platform.RoomVoice,
		Name:     name,
		ParentID: parentID,
		Overwrites: []platform.Overwrite{
			{Target: platform.Everyone, Deny: plan.VoiceDeny},
			ownerAllow,
		},
	})
	if err != nil {
		return fmt.Errorf("create voice room: %w", err)
	}

	lob := &models.Lobby{
		VoiceRoomID: voice.ID,
		TextRoomID:  voice.ID, // combined by default
		CommunityID: ev.CommunityID,
		OwnerID:     ev.MemberID,
		Policy:      startPolicy,
		CreatedAt:   time.Now().UTC(),
	}
	if mapping.SeparateText {
		lob.TextRoomID = m.createTextMirror(ctx, lob, name, parentID, plan)
	}

	if err := m.Store.InsertLobby(ctx, lob); err != nil {
		// Lost a race (double presence event, or the member grabbed a lobby
		// through another path). Fail closed: remove what we created.
		if delErr := m.GW.DeleteRoom(ctx, voice.ID); delErr != nil && !platform.IsNotFound(delErr) {
			log.Warnf("cleanup of raced voice room failed: %v", delErr)
		}
		if lob.SeparateText() {
			if delErr := m.GW.DeleteRoom(ctx, lob.TextRoomID); delErr != nil && !platform.IsNotFound(delErr) {
				log.Warnf("cleanup of raced text room failed: %v", delErr)
			}
		}
		return err
	}

	if err := m.GW.MoveMember(ctx, ev.CommunityID, ev.MemberID, voice.ID); err != nil {
		// Member may have disconnected mid-create; the sweep will collect
		// the empty lobby.
		log.Warnf("move creator into lobby: %v", err)
	}

	if err := m.Policy.Apply(ctx, lob, startPolicy, true); err != nil {
		return fmt.Errorf("apply initial policy: %w", err)
	}
	if err := m.Panel.Ensure(ctx, lob); err != nil {
		log.Warnf("control surface setup failed, sweep will heal: %v", err)
	}
	m.Publisher.Subscribe(ctx, ev.CommunityID, ev.MemberID)
	m.publish(ctx, lob)

	log.WithField("room", voice.ID).Info("lobby created")
	return nil
}

// createTextMirror tries to create the standalone text room. On failure the
// lobby stays usable without its mirror and the next sweep retries; the
// returned id falls back to the voice room (combined).
func (m *Manager) createTextMirror(ctx context.Context, lob *models.Lobby, name, parentID string, plan policy.OverridePlan) string {
	text, err := m.GW.CreateRoom(ctx, lob.CommunityID, platform.CreateRoomRequest{
		Kind:     platform.RoomText,
		Name:     name,
		ParentID: parentID,
		Overwrites: []platform.Overwrite{
			{Target: platform.Everyone, Deny: plan.TextDeny},
			{Target: platform.MemberTarget(lob.OwnerID), Allow: platform.PermViewRoom},
		},
	})
	if err != nil {
		m.Log.WithField("room", lob.VoiceRoomID).Warnf("text mirror creation failed: %v", err)
		return lob.VoiceRoomID
	}
	return text.ID
}

// handleLobbyJoin runs the request-to-join flow for a member entering a
// tracked lobby they have no explicit permission in yet.
func (m *Manager) handleLobbyJoin(ctx context.Context, lob *models.Lobby, memberID string) error {
	if memberID == lob.OwnerID || lob.Policy == models.PolicyPublic {
		return nil
	}
	allowed, err := policy.AllowedSet(ctx, m.GW, lob.VoiceRoomID)
	if err != nil {
		return err
	}
	if allowed[memberID] {
		return nil
	}
	members, err := m.GW.RoomMembers(ctx, lob.VoiceRoomID)
	if err != nil {
		return err
	}
	joiner, ok := lo.Find(members, func(mm platform.Member) bool { return mm.ID == memberID })
	if !ok || joiner.Bot {
		return nil
	}

	// One-shot approval prompt in the text mirror, approve button only; the
	// dashboard controller handles the press.
	prompt := platform.ControlPanel{
		Title: fmt.Sprintf("%s asks to join", joiner.DisplayName),
		Buttons: []platform.Button{
			{ID: "approve:" + memberID, Label: "Allow"},
		},
	}
	if _, err := m.GW.PostControl(ctx, lob.TextRoomID, prompt); err != nil {
		return fmt.Errorf("post join prompt: %w", err)
	}

	// Push notification to the owner is best effort, and only when the
	// policy actually keeps the member out; under muted they can already
	// connect on their own.
	if lob.Policy == models.PolicyLocked {
		if err := m.GW.Notify(ctx, lob.OwnerID, "Join request",
			fmt.Sprintf("%s wants to join your lobby.", joiner.DisplayName)); err != nil {
			m.Log.WithField("owner", lob.OwnerID).Warnf("join notification failed: %v", err)
		}
	}
	return nil
}

// Sweep reconciles every persisted lobby against platform ground truth and
// heals community mappings whose create-rooms vanished. Each tick is
// independent; a skipped or failed tick is made up by the next one.
func (m *Manager) Sweep(ctx context.Context) {
	lobbies, err := m.Store.AllLobbies(ctx)
	if err != nil {
		m.Log.Warnf("sweep: list lobbies: %v", err)
		return
	}
	for i := range lobbies {
		m.reconcileLobby(ctx, &lobbies[i])
	}

	mappings, err := m.Store.AllMappings(ctx)
	if err != nil {
		m.Log.Warnf("sweep: list mappings: %v", err)
		return
	}
	for i := range mappings {
		if err := m.healMapping(ctx, &mappings[i]); err != nil {
			m.Log.WithField("community", mappings[i].CommunityID).
				Warnf("sweep: heal mapping: %v", err)
		}
	}
}

// reconcileLobby re-derives one lobby's state from the platform.
func (m *Manager) reconcileLobby(ctx context.Context, lob *models.Lobby) {
	log := m.Log.WithField("room", lob.VoiceRoomID)

	if _, err := m.GW.Room(ctx, lob.VoiceRoomID); err != nil {
		if platform.IsNotFound(err) {
			// Voice room deleted out-of-band: drop the row and any orphaned
			// mirror, go quiet for this lobby.
			m.Teardown(ctx, lob, "voice room vanished")
			return
		}
		log.Warnf("reconcile: fetch room: %v", err)
		return
	}

	members, err := m.GW.RoomMembers(ctx, lob.VoiceRoomID)
	if err != nil {
		log.Warnf("reconcile: list members: %v", err)
		return
	}
	humans := lo.Filter(members, func(mm platform.Member, _ int) bool { return !mm.Bot })

	if len(humans) == 0 {
		m.Teardown(ctx, lob, "lobby empty")
		return
	}

	if !lo.ContainsBy(humans, func(mm platform.Member) bool { return mm.ID == lob.OwnerID }) {
		m.transferOwnership(ctx, lob, humans)
		return
	}

	// Healthy lobby: heal the text mirror, control surface, and remote
	// snapshot if any of them drifted.
	m.healTextMirror(ctx, lob)
	if err := m.Panel.Ensure(ctx, lob); err != nil {
		log.Warnf("reconcile: control surface: %v", err)
	}
	m.Publisher.Subscribe(ctx, lob.CommunityID, lob.OwnerID)
	m.publish(ctx, lob)
}

// healTextMirror retries a failed text-mirror creation. Partial failures
// are retried by the sweep, never rolled back.
func (m *Manager) healTextMirror(ctx context.Context, lob *models.Lobby) {
	if lob.TextRoomID != lob.VoiceRoomID {
		return
	}
	mapping, err := m.Store.CategoryMapping(ctx, lob.CommunityID)
	if err != nil || !mapping.SeparateText {
		return
	}
	room, err := m.GW.Room(ctx, lob.VoiceRoomID)
	if err != nil {
		return
	}
	plan, err := policy.ComputeOverrides(lob.Policy, lob.Policy, true)
	if err != nil {
		return
	}
	textID := m.createTextMirror(ctx, lob, room.Name, room.ParentID, plan)
	if textID == lob.VoiceRoomID {
		return
	}
	if err := m.Store.UpdateTextRoom(ctx, lob.VoiceRoomID, textID); err != nil {
		m.Log.Warnf("heal text mirror: persist: %v", err)
		return
	}
	lob.TextRoomID = textID
}

// transferOwnership hands the lobby to the best-ranked present member, or
// tears it down when nobody qualifies.
func (m *Manager) transferOwnership(ctx context.Context, lob *models.Lobby, present []platform.Member) {
	log := m.Log.WithField("room", lob.VoiceRoomID)

	allowed, err := policy.AllowedSet(ctx, m.GW, lob.VoiceRoomID)
	if err != nil {
		log.Warnf("transfer: read overrides: %v", err)
		return
	}
	oldOwner := lob.OwnerID

	for _, cand := range RankCandidates(present, allowed, lob.Policy) {
		if err := m.Store.EnsureMember(ctx, lob.CommunityID, cand.ID, cand.DisplayName); err != nil {
			log.Warnf("transfer: ensure member %s: %v", cand.ID, err)
			continue
		}
		err := m.Store.UpdateOwner(ctx, lob.VoiceRoomID, cand.ID)
		if errors.Is(err, models.ErrLobbyExists) {
			// Candidate already owns another lobby; try the next one.
			continue
		}
		if errors.Is(err, models.ErrLobbyGone) {
			return
		}
		if err != nil {
			log.Warnf("transfer: update owner: %v", err)
			return
		}

		lob.OwnerID = cand.ID
		if err := m.GW.SetOverwrite(ctx, lob.VoiceRoomID, platform.Overwrite{
			Target: platform.MemberTarget(cand.ID),
			Allow:  policy.BaselineAllow,
		}); err != nil {
			log.Warnf("transfer: grant baseline rights: %v", err)
		}

		m.Publisher.PublishGone(ctx, lob.CommunityID, oldOwner)
		m.Publisher.Unsubscribe(lob.CommunityID, oldOwner)
		m.Publisher.Subscribe(ctx, lob.CommunityID, cand.ID)

		if err := m.Policy.Apply(ctx, lob, lob.Policy, true); err != nil {
			log.Warnf("transfer: re-apply policy: %v", err)
		}
		if _, err := m.GW.PostMessage(ctx, lob.TextRoomID,
			fmt.Sprintf("%s now owns this lobby.", cand.DisplayName)); err != nil {
			log.Warnf("transfer notice failed: %v", err)
		}
		if err := m.Panel.Ensure(ctx, lob); err != nil {
			log.Warnf("transfer: control surface: %v", err)
		}
		m.publish(ctx, lob)

		log.WithFields(logrus.Fields{"from": oldOwner, "to": cand.ID}).Info("ownership transferred")
		return
	}

	m.Teardown(ctx, lob, "no transfer candidate")
}

// Teardown is the terminal transition: remove the rooms, the row, the
// throttle entry, and tell the owner's remote clients the lobby is gone.
// Every step tolerates already-deleted state.
func (m *Manager) Teardown(ctx context.Context, lob *models.Lobby, reason string) {
	log := m.Log.WithFields(logrus.Fields{"room": lob.VoiceRoomID, "reason": reason})

	m.Renamer.Cancel(lob.VoiceRoomID)

	if err := m.GW.DeleteRoom(ctx, lob.VoiceRoomID); err != nil && !platform.IsNotFound(err) {
		log.Warnf("teardown: delete voice room: %v", err)
	}
	if lob.SeparateText() {
		if err := m.GW.DeleteRoom(ctx, lob.TextRoomID); err != nil && !platform.IsNotFound(err) {
			log.Warnf("teardown: delete text room: %v", err)
		}
	}
	if err := m.Store.DeleteLobby(ctx, lob.VoiceRoomID); err != nil {
		log.Warnf("teardown: delete row: %v", err)
	}

	m.Publisher.PublishGone(ctx, lob.CommunityID, lob.OwnerID)
	m.Publisher.Unsubscribe(lob.CommunityID, lob.OwnerID)

	log.Info("lobby torn down")
}

// healMapping recreates vanished create-rooms and updates the mapping row.
func (m *Manager) healMapping(ctx context.Context, mapping *models.CategoryMapping) error {
	changed := false
	heal := func(roomID *string, name string) error {
		if *roomID != "" {
			if _, err := m.GW.Room(ctx, *roomID); err == nil {
				return nil
			} else if !platform.IsNotFound(err) {
				return err
			}
		}
		room, err := m.GW.CreateRoom(ctx, mapping.CommunityID, platform.CreateRoomRequest{
			Kind:     platform.RoomVoice,
			Name:     name,
			ParentID: mapping.ParentRoomID,
		})
		if err != nil {
			return err
		}
		*roomID = room.ID
		changed = true
		return nil
	}

	if err := heal(&mapping.PublicRoomID, "➕ New Lobby"); err != nil {
		return err
	}
	if err := heal(&mapping.MutedRoomID, "➕ New Muted Lobby"); err != nil {
		return err
	}
	if err := heal(&mapping.LockedRoomID, "➕ New Locked Lobby"); err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return m.Store.UpsertCategoryMapping(ctx, mapping)
}

// EnsureMapping creates or heals a community's create-room mapping. Exposed
// for the admin endpoint that onboards a community.
func (m *Manager) EnsureMapping(ctx context.Context, communityID, parentRoomID string, separateText bool) (*models.CategoryMapping, error) {
	mapping, err := m.Store.CategoryMapping(ctx, communityID)
	if err != nil {
		mapping = &models.CategoryMapping{
			CommunityID:  communityID,
			ParentRoomID: parentRoomID,
			SeparateText: separateText,
		}
	} else if parentRoomID != "" {
		mapping.ParentRoomID = parentRoomID
		mapping.SeparateText = separateText
	}
	if err := m.healMapping(ctx, mapping); err != nil {
		return nil, err
	}
	if err := m.Store.UpsertCategoryMapping(ctx, mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// displayName resolves a member's display name from a room's presence list,
// falling back to the stored member row and then to a stable literal when
// the platform lookup fails.
func (m *Manager) displayName(ctx context.Context, communityID, roomID, memberID string) string {
	members, err := m.GW.RoomMembers(ctx, roomID)
	if err == nil {
		if mm, ok := lo.Find(members, func(mm platform.Member) bool { return mm.ID == memberID }); ok {
			return mm.DisplayName
		}
	}
	if member, err := m.Store.Member(ctx, communityID, memberID); err == nil && member.DisplayName != "" {
		return member.DisplayName
	}
	return "Member " + memberID
}

// publish pushes the current snapshot to the owner's remote clients,
// including the deferred-rename ETA when one is parked.
func (m *Manager) publish(ctx context.Context, lob *models.Lobby) {
	var nextRenameAt *time.Time
	if at, ok := m.Renamer.PendingAt(lob.VoiceRoomID); ok {
		nextRenameAt = &at
	}
	if err := m.Publisher.Publish(ctx, lob, nextRenameAt); err != nil {
		m.Log.WithField("room", lob.VoiceRoomID).Warnf("snapshot publish failed: %v", err)
	}
}
