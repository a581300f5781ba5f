package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
)

func ids(members []platform.Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.ID
	}
	return out
}

func TestRankCandidatesPrefersAllowedUnderRestrictivePolicy(t *testing.T) {
	present := []platform.Member{
		{ID: "b-admin", RoleRank: 50},
		{ID: "a-guest", RoleRank: 0},
	}
	allowed := map[string]bool{"a-guest": true}

	ranked := RankCandidates(present, allowed, models.PolicyLocked)

	// The explicitly allowed member outranks the higher role under Locked.
	assert.Equal(t, []string{"a-guest", "b-admin"}, ids(ranked))
}

func TestRankCandidatesUsesRoleRankWhenPolicyIsPublic(t *testing.T) {
	present := []platform.Member{
		{ID: "a-guest", RoleRank: 0},
		{ID: "b-admin", RoleRank: 50},
	}

	ranked := RankCandidates(present, nil, models.PolicyPublic)

	// Under Public everyone is eligible, so role rank decides.
	assert.Equal(t, []string{"b-admin", "a-guest"}, ids(ranked))
}

func TestRankCandidatesTieBreaksOnLowestID(t *testing.T) {
	present := []platform.Member{
		{ID: "charlie", RoleRank: 10},
		{ID: "alice", RoleRank: 10},
		{ID: "bob", RoleRank: 10},
	}

	ranked := RankCandidates(present, nil, models.PolicyPublic)
	assert.Equal(t, []string{"alice", "bob", "charlie"}, ids(ranked))
}

func TestRankCandidatesExcludesBots(t *testing.T) {
	present := []platform.Member{
		{ID: "helper", Bot: true, RoleRank: 99},
		{ID: "alice"},
	}

	ranked := RankCandidates(present, nil, models.PolicyPublic)
	assert.Equal(t, []string{"alice"}, ids(ranked))
}
