package engine

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, settings Settings) *Session {
	t.Helper()
	s, err := NewSession("room-1", settings, t0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func startWithPlayers(t *testing.T, settings Settings, players ...string) *Session {
	t.Helper()
	s := newTestSession(t, settings)
	for _, id := range players {
		if _, err := s.AddPlayer(id, "name-"+id, t0); err != nil {
			t.Fatalf("AddPlayer(%s): %v", id, err)
		}
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := s.AdvanceRound(t0); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}
	return s
}

func TestGameForRound_RoundRobin(t *testing.T) {
	rotation := []string{"runner", "dodge", "climb"}
	cases := []struct {
		number int
		want   string
	}{
		{1, "runner"},
		{2, "dodge"},
		{3, "climb"},
		{4, "runner"},
		{7, "runner"},
		{9, "climb"},
		{100, "runner"},
	}
	for _, tc := range cases {
		if got := GameForRound(rotation, tc.number); got != tc.want {
			t.Errorf("round %d: want %q, got %q", tc.number, tc.want, got)
		}
	}
}

func TestNewSession_RejectsEmptyRotation(t *testing.T) {
	_, err := NewSession("room-1", Settings{MaxRounds: 3}, t0)
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("want ErrInvalidSettings, got %v", err)
	}
}

func TestNewSession_AppliesDefaults(t *testing.T) {
	s := newTestSession(t, Settings{GameRotation: []string{"runner"}})
	if s.Settings.MaxRounds != 10 {
		t.Errorf("want default MaxRounds 10, got %d", s.Settings.MaxRounds)
	}
	if s.Settings.AutoAdvanceDelay != 3*time.Second {
		t.Errorf("want default delay 3s, got %v", s.Settings.AutoAdvanceDelay)
	}
	if s.Status != StatusWaiting || s.CurrentRound != 0 {
		t.Errorf("fresh session should be waiting at round 0, got %s/%d", s.Status, s.CurrentRound)
	}
}

func TestAddPlayer_AfterStartRejected(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a")
	if _, err := s.AddPlayer("late", "Late", t0); !errors.Is(err, ErrSessionAlreadyStarted) {
		t.Fatalf("want ErrSessionAlreadyStarted, got %v", err)
	}
}

func TestStart_Failures(t *testing.T) {
	s := newTestSession(t, DefaultSettings())
	if err := s.Start(); !errors.Is(err, ErrNoPlayers) {
		t.Fatalf("empty session: want ErrNoPlayers, got %v", err)
	}
	if _, err := s.AddPlayer("a", "A", t0); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	// Double start is an explicit failure, not a silent no-op.
	if err := s.Start(); !errors.Is(err, ErrSessionAlreadyStarted) {
		t.Fatalf("double start: want ErrSessionAlreadyStarted, got %v", err)
	}
}

func TestSubmitScore_CompletionGate(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a", "b")

	done, err := s.SubmitScore("a", 100, t0)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("round should not complete with one of two entrants finished")
	}
	done, err = s.SubmitScore("b", 200, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("round should complete once every entrant finished")
	}
	if r := s.Rounds[0]; r.Status != RoundCompleted || r.EndedAt.IsZero() {
		t.Fatalf("round not marked completed: %+v", r)
	}
}

func TestSubmitScore_NoActiveRound(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a")
	if _, err := s.SubmitScore("a", 10, t0); err != nil {
		t.Fatal(err)
	}
	// Round completed; nothing active until the scheduler advances.
	if _, err := s.SubmitScore("a", 20, t0); !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("want ErrNoActiveRound, got %v", err)
	}
	if _, err := s.SubmitScore("ghost", 10, t0); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("want ErrPlayerNotFound, got %v", err)
	}
}

func TestSubmitScore_ResubmissionReplacesNotAdds(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a", "b")

	if _, err := s.SubmitScore("a", 100, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SubmitScore("a", 40, t0); err != nil {
		t.Fatal(err)
	}
	p := s.Players["a"]
	if p.TotalScore != 40 {
		t.Fatalf("resubmission must replace, not add: want total 40, got %d", p.TotalScore)
	}
	if len(p.RoundScores) != 1 || p.RoundScores[0] != 40 {
		t.Fatalf("want RoundScores [40], got %v", p.RoundScores)
	}
	if s.Rounds[0].Scores["a"] != 40 {
		t.Fatalf("round score not replaced: %v", s.Rounds[0].Scores)
	}
}

func TestLeaderboard_OrderingAndTies(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a", "b", "c")

	mustSubmit := func(id string, score int) {
		t.Helper()
		if _, err := s.SubmitScore(id, score, t0); err != nil {
			t.Fatal(err)
		}
	}
	mustSubmit("b", 200)
	mustSubmit("a", 100)
	mustSubmit("c", 200)

	lb := s.Leaderboard()
	if len(lb) != 3 {
		t.Fatalf("want 3 entries, got %d", len(lb))
	}
	for i := 0; i+1 < len(lb); i++ {
		if lb[i].TotalScore < lb[i+1].TotalScore {
			t.Fatalf("leaderboard not descending: %+v", lb)
		}
	}
	// b and c tie on 200; b joined first so b ranks higher.
	if lb[0].PlayerID != "b" || lb[1].PlayerID != "c" || lb[2].PlayerID != "a" {
		t.Fatalf("want order b,c,a got %s,%s,%s", lb[0].PlayerID, lb[1].PlayerID, lb[2].PlayerID)
	}
	if lb[0].Rank != 1 || lb[2].Rank != 3 {
		t.Fatalf("ranks not 1-based ascending: %+v", lb)
	}
}

func TestAdvanceRound_TerminatesExactlyOnce(t *testing.T) {
	s := startWithPlayers(t, Settings{MaxRounds: 2, GameRotation: []string{"runner", "dodge"}}, "a")

	if _, err := s.SubmitScore("a", 1, t0); err != nil {
		t.Fatal(err)
	}
	r2, done, err := s.AdvanceRound(t0)
	if err != nil || done {
		t.Fatalf("advance to round 2: done=%v err=%v", done, err)
	}
	if r2.Number != 2 || r2.Game != "dodge" {
		t.Fatalf("round 2 should play dodge, got %+v", r2)
	}
	if _, err := s.SubmitScore("a", 1, t0); err != nil {
		t.Fatal(err)
	}
	_, done, err = s.AdvanceRound(t0)
	if err != nil || !done {
		t.Fatalf("advance past MaxRounds: done=%v err=%v", done, err)
	}
	if s.Status != StatusCompleted || s.CompletedAt.IsZero() {
		t.Fatalf("session should be completed, got %s", s.Status)
	}
	if _, _, err := s.AdvanceRound(t0); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("further advance must fail, got %v", err)
	}
	if len(s.Rounds) != 2 {
		t.Fatalf("no rounds may be created after completion, got %d", len(s.Rounds))
	}
}

func TestRemovePlayer_CompletesRound(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a", "b")
	if _, err := s.SubmitScore("a", 50, t0); err != nil {
		t.Fatal(err)
	}
	done, err := s.RemovePlayer("b", t0)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("removing the last unfinished entrant should complete the round")
	}
	if len(s.Leaderboard()) != 1 {
		t.Fatalf("removed player still on live leaderboard: %+v", s.Leaderboard())
	}
}

func TestUpdatePosition_MirrorsIntoRound(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a")
	now := t0.Add(time.Second)
	if err := s.UpdatePosition("a", 3.5, -1.25, now); err != nil {
		t.Fatal(err)
	}
	p := s.Players["a"]
	if p.Position.X != 3.5 || p.Position.Y != -1.25 || !p.Position.UpdatedAt.Equal(now) {
		t.Fatalf("player position not updated: %+v", p.Position)
	}
	st := s.Rounds[0].States["a"]
	if st.Position.X != 3.5 || st.Position.Y != -1.25 {
		t.Fatalf("round state position not mirrored: %+v", st)
	}
}

func TestUpdatePosition_RequiresActiveSession(t *testing.T) {
	s := newTestSession(t, DefaultSettings())
	if _, err := s.AddPlayer("a", "A", t0); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdatePosition("a", 1, 1, t0); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("want ErrSessionNotActive, got %v", err)
	}
}

func TestGhosts_EvictionAndOrder(t *testing.T) {
	s := startWithPlayers(t, DefaultSettings(), "a", "b")
	if err := s.UpdatePosition("b", 2, 2, t0); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdatePosition("a", 1, 1, t0.Add(20*time.Second)); err != nil {
		t.Fatal(err)
	}

	ghosts := s.Ghosts()
	if len(ghosts) != 2 {
		t.Fatalf("want 2 ghosts, got %d", len(ghosts))
	}
	// Join order, not update order.
	if ghosts[0].PlayerID != "a" || ghosts[1].PlayerID != "b" {
		t.Fatalf("ghosts not in join order: %+v", ghosts)
	}

	evicted := s.EvictStaleGhosts(t0.Add(25*time.Second), 10*time.Second)
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("want b evicted, got %v", evicted)
	}
	ghosts = s.Ghosts()
	if len(ghosts) != 1 || ghosts[0].PlayerID != "a" {
		t.Fatalf("stale ghost still present: %+v", ghosts)
	}
}

func TestMidRoundJoinDoesNotBlockCompletion(t *testing.T) {
	// Players cannot join an active session through AddPlayer, but the gate
	// must hold even if the entrant set and player set diverge (e.g. a future
	// late-join path). Simulate by seeding a player directly.
	s := startWithPlayers(t, DefaultSettings(), "a")
	s.Players["late"] = &Player{ID: "late", State: PlayerIdle, RoundScores: []int{}, scoreIndex: map[int]int{}}

	done, err := s.SubmitScore("a", 10, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("mid-round joiner must not block completion")
	}
}
