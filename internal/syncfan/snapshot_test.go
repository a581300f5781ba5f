package syncfan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
	"github.com/voxcord/lobbyd/internal/policy"
)

type fakeGateway struct {
	platform.Gateway

	room       *platform.Room
	members    []platform.Member
	overwrites []platform.Overwrite
}

func (g *fakeGateway) Room(ctx context.Context, roomID string) (*platform.Room, error) {
	if g.room == nil {
		return nil, platform.ErrNotFound
	}
	return g.room, nil
}

func (g *fakeGateway) RoomMembers(ctx context.Context, roomID string) ([]platform.Member, error) {
	return g.members, nil
}

func (g *fakeGateway) Overwrites(ctx context.Context, roomID string) ([]platform.Overwrite, error) {
	return g.overwrites, nil
}

func (g *fakeGateway) Community(ctx context.Context, communityID string) (*platform.Community, error) {
	return &platform.Community{ID: communityID, Name: "Voice Hangout"}, nil
}

func TestBuildSnapshot(t *testing.T) {
	gw := &fakeGateway{
		room: &platform.Room{ID: "lobby-1", Name: "Ranked Grind"},
		members: []platform.Member{
			{ID: "alice", DisplayName: "Alice"},
			{ID: "bob", DisplayName: "Bob"},
			{ID: "helper", DisplayName: "Helper", Bot: true},
		},
		overwrites: []platform.Overwrite{
			{Target: platform.MemberTarget("bob"), Allow: policy.BaselineAllow},
		},
	}
	lob := &models.Lobby{
		VoiceRoomID: "lobby-1",
		TextRoomID:  "lobby-1",
		CommunityID: "comm-1",
		OwnerID:     "alice",
		Policy:      models.PolicyMuted,
		UserLimit:   5,
	}
	eta := time.Now().Add(3 * time.Minute)

	snap, err := BuildSnapshot(context.Background(), gw, lob, &eta)
	require.NoError(t, err)

	assert.Equal(t, "Ranked Grind", snap.RoomName)
	assert.Equal(t, "Voice Hangout", snap.CommunityName)
	assert.Equal(t, "alice", snap.OwnerID)
	assert.Equal(t, "Alice", snap.OwnerName)
	assert.Equal(t, models.PolicyMuted, snap.Policy)
	assert.Equal(t, 5, snap.UserLimit)
	require.NotNil(t, snap.NextRenameAt)
	assert.Equal(t, eta, *snap.NextRenameAt)
	assert.False(t, snap.Gone)

	require.Len(t, snap.Members, 3)
	byID := make(map[string]models.SnapshotMember)
	for _, m := range snap.Members {
		byID[m.ID] = m
	}
	assert.False(t, byID["alice"].Allowed)
	assert.False(t, byID["alice"].Kickable, "the owner is never kickable")
	assert.True(t, byID["bob"].Allowed)
	assert.True(t, byID["bob"].Kickable)
	assert.False(t, byID["helper"].Kickable, "automated members are not kickable")
}

func TestBuildSnapshotFailsWhenRoomGone(t *testing.T) {
	gw := &fakeGateway{}
	lob := &models.Lobby{VoiceRoomID: "lobby-1", CommunityID: "comm-1", OwnerID: "alice"}

	_, err := BuildSnapshot(context.Background(), gw, lob, nil)
	require.Error(t, err)
	assert.True(t, platform.IsNotFound(err))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "lobby.sync.comm-1.alice", SyncTopic("comm-1", "alice"))
	assert.Equal(t, "lobby.cmd.comm-1.alice", CommandTopic("comm-1", "alice"))
}
