package lifecycle

import (
	"sort"

	"github.com/samber/lo"

	"github.com/voxcord/lobbyd/internal/models"
	"github.com/voxcord/lobbyd/internal/platform"
)

// RankCandidates orders the present members as ownership-transfer
// candidates. One ranking pass covers both the policy-eligible preference
// and the fallback: members already satisfying the policy (explicitly
// allowed, or the policy is Public) sort first, then by highest role rank,
// then lowest member id for a deterministic tie-break. Automated accounts
// are never candidates.
func RankCandidates(present []platform.Member, allowed map[string]bool, pol models.Policy) []platform.Member {
	candidates := lo.Filter(present, func(m platform.Member, _ int) bool {
		return !m.Bot
	})

	eligible := func(m platform.Member) bool {
		return pol == models.PolicyPublic || allowed[m.ID]
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ae, be := eligible(a), eligible(b); ae != be {
			return ae
		}
		if a.RoleRank != b.RoleRank {
			return a.RoleRank > b.RoleRank
		}
		return a.ID < b.ID
	})
	return candidates
}
