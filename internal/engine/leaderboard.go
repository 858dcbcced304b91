package engine

import "sort"

// Leaderboard returns the cached per-session cumulative ranking. It is
// recomputed synchronously on every mutation that can change it, so reads
// are O(1). This is NOT the durable per-game ranking served by the mirror;
// the two answer different questions and are deliberately separate.
func (s *Session) Leaderboard() []LeaderboardEntry {
	if s.leaderboard == nil {
		return []LeaderboardEntry{}
	}
	return s.leaderboard
}

func (s *Session) recomputeLeaderboard() {
	players := s.playersByJoinOrder()
	// Stable sort on total only, so equal totals keep join order.
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].TotalScore > players[j].TotalScore
	})
	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		scores := make([]int, len(p.RoundScores))
		copy(scores, p.RoundScores)
		last := 0
		if len(scores) > 0 {
			last = scores[len(scores)-1]
		}
		entries[i] = LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       p.ID,
			DisplayName:    p.DisplayName,
			TotalScore:     p.TotalScore,
			RoundScores:    scores,
			LastRoundScore: last,
		}
	}
	s.leaderboard = entries
}

func (s *Session) playersByJoinOrder() []*Player {
	players := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].joinSeq < players[j].joinSeq
	})
	return players
}
