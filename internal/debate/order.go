package debate

import (
	"sort"

	"macp/internal/types"
)

// speakingOrder resolves the turn order for one round.
//
// Round-robin mode rotates the starting speaker by one position per round, so
// across N rounds with P participants every participant opens ceil(N/P) or
// floor(N/P) rounds. Priority mode orders by descending reputation snapshot,
// recomputed each round, with participant id ascending as the deterministic
// tie-break. Rounds are 1-based.
func speakingOrder(mode string, round int, participants []types.AgentHandle, reputations map[string]float64) []types.AgentHandle {
	out := make([]types.AgentHandle, len(participants))

	if mode == "priority" {
		copy(out, participants)
		sort.SliceStable(out, func(i, j int) bool {
			ri, rj := reputations[out[i].ID()], reputations[out[j].ID()]
			if ri != rj {
				return ri > rj
			}
			return out[i].ID() < out[j].ID()
		})
		return out
	}

	start := (round - 1) % len(participants)
	for i := range participants {
		out[i] = participants[(start+i)%len(participants)]
	}
	return out
}
