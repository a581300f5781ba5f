package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"public", "muted", "locked"} {
		pol, err := ParsePolicy(s)
		require.NoError(t, err)
		assert.Equal(t, Policy(s), pol)
		assert.True(t, pol.Valid())
	}

	_, err := ParsePolicy("vip")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
	assert.False(t, Policy("").Valid())
}

func TestDeriveRoomName(t *testing.T) {
	assert.Equal(t, "Alice's Lobby", DeriveRoomName("Alice", ""))
	assert.Equal(t, "Ranked Grind", DeriveRoomName("Alice", "Ranked Grind"))
}

func TestSeparateText(t *testing.T) {
	lob := &Lobby{VoiceRoomID: "v1", TextRoomID: "v1"}
	assert.False(t, lob.SeparateText(), "combined room is not a separate mirror")

	lob.TextRoomID = "t1"
	assert.True(t, lob.SeparateText())

	lob.TextRoomID = ""
	assert.False(t, lob.SeparateText(), "mirror may not exist yet")
}

func TestPolicyForCreateRoom(t *testing.T) {
	m := &CategoryMapping{
		PublicRoomID: "r-pub",
		MutedRoomID:  "r-mut",
		LockedRoomID: "r-loc",
	}

	pol, ok := m.PolicyForCreateRoom("r-mut")
	require.True(t, ok)
	assert.Equal(t, PolicyMuted, pol)

	_, ok = m.PolicyForCreateRoom("r-unrelated")
	assert.False(t, ok)
}

func TestCommandValidate(t *testing.T) {
	valid := []Command{
		{Kind: CommandSetPolicy, Policy: PolicyLocked},
		{Kind: CommandSetLimit, Limit: 0},
		{Kind: CommandSetLimit, Limit: 99},
		{Kind: CommandRename, Fragment: "Chill Corner"},
		{Kind: CommandAddMember, MemberID: "bob"},
		{Kind: CommandAddMember, RoleID: "regulars"},
		{Kind: CommandRemoveMember, MemberID: "bob"},
		{Kind: CommandRefresh},
	}
	for _, cmd := range valid {
		assert.NoError(t, cmd.Validate(), "kind %s", cmd.Kind)
	}

	invalid := []Command{
		{Kind: CommandSetPolicy, Policy: "vip"},
		{Kind: CommandSetLimit, Limit: -1},
		{Kind: CommandSetLimit, Limit: 100},
		{Kind: CommandRename},
		{Kind: CommandAddMember},
		{Kind: CommandRemoveMember},
		{Kind: "open_sesame"},
	}
	for _, cmd := range invalid {
		assert.Error(t, cmd.Validate(), "kind %s", cmd.Kind)
	}
}
