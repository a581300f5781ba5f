package policy

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
)

// fakeGateway records the permission and member calls the engine issues.
// Methods the engine never touches fall through to the embedded nil
// interface and panic, which is exactly what a test wants.
type fakeGateway struct {
	platform.Gateway

	overwrites map[string][]platform.Overwrite
	members    map[string][]platform.Member

	setCalls []struct {
		roomID string
		ow     platform.Overwrite
	}
	muted        []string
	disconnected []string
	notified     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		overwrites: make(map[string][]platform.Overwrite),
		members:    make(map[string][]platform.Member),
	}
}

func (g *fakeGateway) SetOverwrite(ctx context.Context, roomID string, ow platform.Overwrite) error {
	g.setCalls = append(g.setCalls, struct {
		roomID string
		ow     platform.Overwrite
	}{roomID, ow})
	return nil
}

func (g *fakeGateway) Overwrites(ctx context.Context, roomID string) ([]platform.Overwrite, error) {
	return g.overwrites[roomID], nil
}

func (g *fakeGateway) RoomMembers(ctx context.Context, roomID string) ([]platform.Member, error) {
	return g.members[roomID], nil
}

func (g *fakeGateway) MuteMember(ctx context.Context, communityID, memberID string, muted bool) error {
	g.muted = append(g.muted, memberID)
	return nil
}

func (g *fakeGateway) DisconnectMember(ctx context.Context, communityID, memberID string) error {
	g.disconnected = append(g.disconnected, memberID)
	return nil
}

func (g *fakeGateway) Notify(ctx context.Context, memberID, title, body string) error {
	g.notified = append(g.notified, memberID)
	return nil
}

func testEngine(gw *fakeGateway) *Engine {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Engine{GW: gw, Log: log}
}

func combinedLobby() *models.Lobby {
	return &models.Lobby{
		VoiceRoomID: "voice-1",
		TextRoomID:  "voice-1",
		CommunityID: "comm-1",
		OwnerID:     "owner",
		Policy:      models.PolicyPublic,
	}
}

func TestComputeOverrides(t *testing.T) {
	plan, err := ComputeOverrides(models.PolicyPublic, models.PolicyMuted, false)
	require.NoError(t, err)
	assert.Equal(t, platform.PermSpeak, plan.VoiceDeny)
	assert.Zero(t, plan.TextDeny)

	plan, err = ComputeOverrides(models.PolicyMuted, models.PolicyLocked, true)
	require.NoError(t, err)
	assert.Equal(t, platform.PermConnect|platform.PermSpeak, plan.VoiceDeny)
	assert.Equal(t, platform.PermViewRoom, plan.TextDeny)

	plan, err = ComputeOverrides(models.PolicyLocked, models.PolicyPublic, true)
	require.NoError(t, err)
	assert.Zero(t, plan.VoiceDeny)
	assert.Zero(t, plan.TextDeny)
}

func TestComputeOverridesRejectsUnknownPolicy(t *testing.T) {
	_, err := ComputeOverrides(models.PolicyPublic, models.Policy("vip"), false)
	require.ErrorIs(t, err, models.ErrUnknownPolicy)

	_, err = ComputeOverrides(models.Policy(""), models.PolicyPublic, false)
	require.ErrorIs(t, err, models.ErrUnknownPolicy)
}

func TestApplyPublicToMutedMutesUncoveredMembers(t *testing.T) {
	gw := newFakeGateway()
	gw.members["voice-1"] = []platform.Member{
		{ID: "owner"},
		{ID: "friend"},
		{ID: "stranger"},
		{ID: "helper", Bot: true},
	}
	gw.overwrites["voice-1"] = []platform.Overwrite{
		{Target: platform.MemberTarget("friend"), Allow: BaselineAllow},
	}

	lob := combinedLobby()
	err := testEngine(gw).Apply(context.Background(), lob, models.PolicyMuted, false)
	require.NoError(t, err)

	// Only the uncovered human is muted in place; nobody is disconnected.
	assert.Equal(t, []string{"stranger"}, gw.muted)
	assert.Empty(t, gw.disconnected)

	require.Len(t, gw.setCalls, 1)
	assert.Equal(t, platform.Everyone, gw.setCalls[0].ow.Target)
	assert.Equal(t, platform.PermSpeak, gw.setCalls[0].ow.Deny)
}

func TestApplyToLockedDisconnectsAndNotifies(t *testing.T) {
	gw := newFakeGateway()
	gw.members["voice-1"] = []platform.Member{
		{ID: "owner"},
		{ID: "friend"},
		{ID: "stranger"},
	}
	gw.overwrites["voice-1"] = []platform.Overwrite{
		{Target: platform.MemberTarget("friend"), Allow: BaselineAllow},
	}

	lob := combinedLobby()
	err := testEngine(gw).Apply(context.Background(), lob, models.PolicyLocked, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"stranger"}, gw.disconnected)
	assert.Equal(t, []string{"stranger"}, gw.notified)
	assert.Empty(t, gw.muted)
}

func TestApplyUnlockLeavesExplicitAllowsAlone(t *testing.T) {
	gw := newFakeGateway()
	gw.members["voice-1"] = []platform.Member{{ID: "owner"}, {ID: "friend"}}
	gw.overwrites["voice-1"] = []platform.Overwrite{
		{Target: platform.MemberTarget("friend"), Allow: BaselineAllow},
	}

	lob := combinedLobby()
	lob.Policy = models.PolicyLocked
	err := testEngine(gw).Apply(context.Background(), lob, models.PolicyPublic, false)
	require.NoError(t, err)

	// The default entity is relaxed; member-level overrides are untouched.
	require.Len(t, gw.setCalls, 1)
	assert.Equal(t, platform.Everyone, gw.setCalls[0].ow.Target)
	assert.Zero(t, gw.setCalls[0].ow.Deny)
	assert.Empty(t, gw.muted)
	assert.Empty(t, gw.disconnected)
}

func TestApplyNoopWithoutForce(t *testing.T) {
	gw := newFakeGateway()
	lob := combinedLobby()

	require.NoError(t, testEngine(gw).Apply(context.Background(), lob, models.PolicyPublic, false))
	assert.Empty(t, gw.setCalls)

	// force re-writes the default entity even without a transition.
	require.NoError(t, testEngine(gw).Apply(context.Background(), lob, models.PolicyPublic, true))
	assert.Len(t, gw.setCalls, 1)
}

func TestApplySeparateMirrorGetsTextDeny(t *testing.T) {
	gw := newFakeGateway()
	gw.members["voice-1"] = []platform.Member{{ID: "owner"}}

	lob := combinedLobby()
	lob.TextRoomID = "text-1"
	err := testEngine(gw).Apply(context.Background(), lob, models.PolicyLocked, false)
	require.NoError(t, err)

	require.Len(t, gw.setCalls, 2)
	assert.Equal(t, "voice-1", gw.setCalls[0].roomID)
	assert.Equal(t, "text-1", gw.setCalls[1].roomID)
	assert.Equal(t, platform.PermViewRoom, gw.setCalls[1].ow.Deny)
}

func TestAllowedSetIgnoresRolesAndViewOnlyGrants(t *testing.T) {
	gw := newFakeGateway()
	gw.overwrites["voice-1"] = []platform.Overwrite{
		{Target: platform.MemberTarget("friend"), Allow: BaselineAllow},
		{Target: platform.MemberTarget("watcher"), Allow: platform.PermViewRoom},
		{Target: platform.RoleTarget("mods"), Allow: BaselineAllow},
		{Target: platform.Everyone, Deny: platform.PermSpeak},
	}

	allowed, err := AllowedSet(context.Background(), gw, "voice-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"friend": true}, allowed)
}
