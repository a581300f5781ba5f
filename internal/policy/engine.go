// Package policy maps a lobby's access policy onto the concrete permission
// override set for its voice room and mirrored text room, and executes the
// member-level side effects of policy transitions.
package policy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
)

// OverridePlan is the default-entity deny set a policy implies.
type OverridePlan struct {
	VoiceDeny platform.PermissionSet
	TextDeny  platform.PermissionSet
}

// ComputeOverrides derives the default-entity deny sets for a transition
// from current to target. The text deny only applies when the mirror is a
// separate room; a combined room keeps the voice plan. An unrecognized
// policy is rejected before any platform call can be issued.
func ComputeOverrides(current, target models.Policy, separateText bool) (OverridePlan, error) {
	if !current.Valid() || !target.Valid() {
		return OverridePlan{}, fmt.Errorf("%w: %q -> %q", models.ErrUnknownPolicy, current, target)
	}

	var plan OverridePlan
	switch target {
	case models.PolicyPublic:
		// No deny beyond the platform default.
	case models.PolicyMuted:
		plan.VoiceDeny = platform.PermSpeak
	case models.PolicyLocked:
		plan.VoiceDeny = platform.PermConnect | platform.PermSpeak
		if separateText {
			// Locked hides the mirror from the default entity.
			plan.TextDeny = platform.PermViewRoom
		}
	}
	return plan, nil
}

// BaselineAllow is the explicit per-member allow granted to lobby owners
// and approved members. Members holding it satisfy any policy.
const BaselineAllow = platform.PermConnect | platform.PermSpeak

// Engine applies policies through the platform gateway.
type Engine struct {
	GW  platform.Gateway
	Log *logrus.Logger
}

// Apply computes the override plan for target, writes the default-entity
// overrides, and runs the transition side effects:
//
//   - Public -> Muted: present members without an explicit override are
//     muted in place, not disconnected.
//   - -> Locked: present members without an explicit override are
//     disconnected and privately notified.
//   - Locked -> anything: explicit allow overrides are left untouched, so
//     members already admitted keep their rights.
//
// force re-writes the default-entity overrides even when current == target;
// ownership transfer uses it to heal drifted permissions.
func (e *Engine) Apply(ctx context.Context, lob *models.Lobby, target models.Policy, force bool) error {
	plan, err := ComputeOverrides(lob.Policy, target, lob.SeparateText())
	if err != nil {
		return err
	}
	if lob.Policy == target && !force {
		return nil
	}

	if err := e.GW.SetOverwrite(ctx, lob.VoiceRoomID, platform.Overwrite{
		Target: platform.Everyone,
		Deny:   plan.VoiceDeny,
	}); err != nil {
		return fmt.Errorf("set voice default override: %w", err)
	}
	if lob.SeparateText() {
		if err := e.GW.SetOverwrite(ctx, lob.TextRoomID, platform.Overwrite{
			Target: platform.Everyone,
			Deny:   plan.TextDeny,
		}); err != nil {
			return fmt.Errorf("set text default override: %w", err)
		}
	}

	if lob.Policy != target {
		if err := e.applyTransition(ctx, lob, target); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyTransition(ctx context.Context, lob *models.Lobby, target models.Policy) error {
	switch {
	case lob.Policy == models.PolicyPublic && target == models.PolicyMuted:
		return e.forEachUncovered(ctx, lob, func(m platform.Member) error {
			return e.GW.MuteMember(ctx, lob.CommunityID, m.ID, true)
		})
	case target == models.PolicyLocked:
		return e.forEachUncovered(ctx, lob, func(m platform.Member) error {
			if err := e.GW.DisconnectMember(ctx, lob.CommunityID, m.ID); err != nil {
				return err
			}
			// Best-effort courtesy notice; the disconnect already happened.
			if err := e.GW.Notify(ctx, m.ID, "Lobby locked",
				"The lobby you were in was locked by its owner."); err != nil {
				e.Log.WithField("member", m.ID).Warnf("lock notice failed: %v", err)
			}
			return nil
		})
	}
	// Locked -> Public/Muted and Muted -> Public only relax the default
	// entity; explicit allows are preserved as-is.
	return nil
}

// forEachUncovered invokes fn for every present non-automated member who has
// no explicit allow override on the voice room. A vanished member mid-loop
// is stale state, not an error.
func (e *Engine) forEachUncovered(ctx context.Context, lob *models.Lobby, fn func(platform.Member) error) error {
	allowed, err := AllowedSet(ctx, e.GW, lob.VoiceRoomID)
	if err != nil {
		return err
	}
	members, err := e.GW.RoomMembers(ctx, lob.VoiceRoomID)
	if err != nil {
		return fmt.Errorf("list room members: %w", err)
	}
	for _, m := range members {
		if m.Bot || m.ID == lob.OwnerID || allowed[m.ID] {
			continue
		}
		if err := fn(m); err != nil {
			if platform.IsNotFound(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// AllowedSet returns the ids of members holding an explicit allow override
// with at least connect rights on the room.
func AllowedSet(ctx context.Context, gw platform.Gateway, roomID string) (map[string]bool, error) {
	ows, err := gw.Overwrites(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list overwrites: %w", err)
	}
	allowed := make(map[string]bool)
	for _, ow := range ows {
		if ow.Target.Type == platform.TargetMember && ow.Allow.Has(platform.PermConnect) {
			allowed[ow.Target.ID] = true
		}
	}
	return allowed, nil
}
