package engine

import "time"

// GameForRound selects the mini-game for a 1-based round number. Despite the
// "rotation" being described casually as random, selection is deterministic
// round-robin: rotation[(number-1) mod len(rotation)].
func GameForRound(rotation []string, number int) string {
	if len(rotation) == 0 || number < 1 {
		return ""
	}
	return rotation[(number-1)%len(rotation)]
}

// AdvanceRound moves the session to its next round. When the new round number
// exceeds MaxRounds the session transitions to completed instead (terminal,
// exactly once) and the returned done flag is true.
func (s *Session) AdvanceRound(now time.Time) (*Round, bool, error) {
	switch s.Status {
	case StatusCompleted:
		return nil, false, ErrSessionCompleted
	case StatusWaiting:
		return nil, false, ErrSessionNotActive
	}
	s.CurrentRound++
	if s.CurrentRound > s.Settings.MaxRounds {
		s.Status = StatusCompleted
		s.CompletedAt = now
		s.recomputeLeaderboard() // final standings, frozen from here on
		return nil, true, nil
	}
	r := &Round{
		ID:        newRoundID(),
		Number:    s.CurrentRound,
		Game:      GameForRound(s.Settings.GameRotation, s.CurrentRound),
		Status:    RoundActive,
		Entrants:  map[string]bool{},
		Scores:    map[string]int{},
		States:    map[string]PlayerRoundState{},
		StartedAt: now,
	}
	for id, p := range s.Players {
		r.Entrants[id] = true
		r.States[id] = PlayerRoundState{State: PlayerPlaying}
		p.State = PlayerPlaying
	}
	s.Rounds = append(s.Rounds, r)
	return r, false, nil
}

// SubmitScore folds a player's result into the active round and their
// cumulative total. A resubmission for the same round replaces the earlier
// score (total adjusted by the delta) rather than adding twice. Returns
// whether this submission completed the round.
func (s *Session) SubmitScore(playerID string, score int, now time.Time) (bool, error) {
	p, ok := s.Players[playerID]
	if !ok {
		return false, ErrPlayerNotFound
	}
	r := s.ActiveRound()
	if r == nil {
		return false, ErrNoActiveRound
	}
	prev, resubmit := r.Scores[playerID]
	r.Scores[playerID] = score
	st := r.States[playerID]
	st.Score = score
	st.State = PlayerFinished
	r.States[playerID] = st
	p.State = PlayerFinished
	if resubmit {
		p.TotalScore += score - prev
		if i, ok := p.scoreIndex[r.Number]; ok {
			p.RoundScores[i] = score
		}
	} else {
		p.TotalScore += score
		p.scoreIndex[r.Number] = len(p.RoundScores)
		p.RoundScores = append(p.RoundScores, score)
	}
	s.recomputeLeaderboard()
	if roundComplete(r) {
		r.Status = RoundCompleted
		r.EndedAt = now
		return true, nil
	}
	return false, nil
}

// roundComplete gates on the entrant set captured at round start: players who
// join mid-round have no entry and never block completion.
func roundComplete(r *Round) bool {
	if r.Status != RoundActive {
		return false
	}
	for id := range r.Entrants {
		if r.States[id].State != PlayerFinished {
			return false
		}
	}
	return true
}

// UpdatePosition overwrites the player's live position and, when a round is
// active, mirrors it into that round's per-player state. Positions are
// transient and never persisted.
func (s *Session) UpdatePosition(playerID string, x, y float64, now time.Time) error {
	if s.Status != StatusActive {
		return ErrSessionNotActive
	}
	p, ok := s.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	pos := Position{X: x, Y: y, UpdatedAt: now}
	p.Position = pos
	if r := s.ActiveRound(); r != nil {
		st := r.States[playerID]
		st.Position = pos
		r.States[playerID] = st
	}
	return nil
}

// Ghosts returns the current ghost view in join order, so two calls with no
// intervening mutation produce identical output.
func (s *Session) Ghosts() []GhostSnapshot {
	ghosts := make([]GhostSnapshot, 0, len(s.Players))
	for _, p := range s.playersByJoinOrder() {
		if p.Position.UpdatedAt.IsZero() {
			continue
		}
		ghosts = append(ghosts, GhostSnapshot{
			PlayerID:   p.ID,
			X:          p.Position.X,
			Y:          p.Position.Y,
			ObservedAt: p.Position.UpdatedAt,
		})
	}
	return ghosts
}

// EvictStaleGhosts clears positions not refreshed within ttl, so silently
// disconnected players stop appearing as ghosts. Returns the evicted ids.
func (s *Session) EvictStaleGhosts(now time.Time, ttl time.Duration) []string {
	var evicted []string
	for id, p := range s.Players {
		if p.Position.UpdatedAt.IsZero() {
			continue
		}
		if now.Sub(p.Position.UpdatedAt) > ttl {
			p.Position = Position{}
			evicted = append(evicted, id)
		}
	}
	return evicted
}
