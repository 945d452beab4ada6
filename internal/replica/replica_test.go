package replica

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/world"
)

type fixedDice int

func (d fixedDice) IntRange(lo, hi int) int { return int(d) }

func flatField(t *testing.T, radius int, elev float64) *world.Field {
	t.Helper()
	var cells []world.Cell
	for q := -radius; q <= radius; q++ {
		for r := -radius; r <= radius; r++ {
			c := world.HexCoord{Q: q, R: r}
			if c.DistOrigin() <= radius {
				cells = append(cells, world.NewCell(c, world.TerrainGrass, elev))
			}
		}
	}
	f, err := world.NewField(radius, 3, cells)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func player(id string, q, r, health int) engine.Player {
	return engine.Player{ID: engine.PlayerID(id), Name: id, Pos: world.HexCoord{Q: q, R: r}, Health: health, Alive: health > 0}
}

// duel sets a shooter at the centre and a target where a 0/45 shot lands.
func duel(t *testing.T, targetHealth int) *Host {
	t.Helper()
	f := flatField(t, 10, 4)
	state := engine.GameState{
		Round:       1,
		CurrentDist: 10,
		Players:     []engine.Player{player("a", 0, 0, 3), player("b", 8, 0, targetHealth)},
	}
	return NewHost("m1", engine.NewResolver(f, fixedDice(100)), state)
}

type memRecorder struct {
	mu     sync.Mutex
	rounds []int
}

func (m *memRecorder) RecordRound(_ context.Context, res RoundResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, res.Round)
	return nil
}

func TestSubscribeSendsTerrainFirst(t *testing.T) {
	h := duel(t, 3)
	ch, cancel := h.Subscribe(4)
	defer cancel()

	msg := <-ch
	if msg.Type != TypeTerrainSnapshot || msg.TerrainSnapshot == nil {
		t.Fatalf("first message = %s", msg.Type)
	}
	if got := len(msg.TerrainSnapshot.Cells); got != h.Field().HexCount() {
		t.Errorf("snapshot cells = %d, want %d", got, h.Field().HexCount())
	}
	if len(msg.TerrainSnapshot.State.Players) != 2 {
		t.Errorf("snapshot state missing players")
	}
}

func TestResolveRoundPublishes(t *testing.T) {
	h := duel(t, 3)
	rec := &memRecorder{}
	h.SetRecorder(rec)
	ch, cancel := h.Subscribe(4)
	defer cancel()
	<-ch

	h.OpenRound()
	if h.Phase() != engine.PhaseAwaitingActions {
		t.Errorf("phase = %s", h.Phase())
	}
	if err := h.Submit("a", engine.FireAt(0, 45)); err != nil {
		t.Fatal(err)
	}
	res, over := h.ResolveRound(context.Background())
	if over {
		t.Fatal("match ended after one hit")
	}
	if res.Round != 1 || res.State.Round != 2 {
		t.Errorf("round %d, next %d", res.Round, res.State.Round)
	}

	msg := <-ch
	if msg.Type != TypeRoundResult {
		t.Fatalf("got %s, want roundResult", msg.Type)
	}
	b, _ := msg.RoundResult.State.Player("b")
	if b.Health != 2 {
		t.Errorf("published b health = %d, want 2", b.Health)
	}
	if got := h.State(); got.Round != 2 {
		t.Errorf("host state round = %d", got.Round)
	}
	if len(rec.rounds) != 1 || rec.rounds[0] != 1 {
		t.Errorf("recorded rounds = %v", rec.rounds)
	}

	if err := h.Submit("a", engine.FireAt(0, 45)); !errors.Is(err, engine.ErrWindowClosed) {
		t.Errorf("submit between rounds = %v", err)
	}
}

func TestMatchOverClosesSubscribers(t *testing.T) {
	h := duel(t, 1)
	ch, _ := h.Subscribe(4)
	<-ch

	h.OpenRound()
	h.Submit("a", engine.FireAt(0, 45))
	if _, over := h.ResolveRound(context.Background()); !over {
		t.Fatal("match should be over")
	}

	var types []MessageType
	for msg := range ch {
		types = append(types, msg.Type)
		if msg.Type == TypeMatchOver && msg.MatchOver.WinnerID != "a" {
			t.Errorf("winner = %q", msg.MatchOver.WinnerID)
		}
	}
	if len(types) != 2 || types[0] != TypeRoundResult || types[1] != TypeMatchOver {
		t.Errorf("messages = %v", types)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done not closed")
	}
	if err := h.Submit("a", engine.FireAt(0, 0)); !errors.Is(err, ErrMatchOver) {
		t.Errorf("submit after match over = %v", err)
	}

	late, _ := h.Subscribe(1)
	var n int
	for range late {
		n++
	}
	if n != 2 {
		t.Errorf("late subscriber got %d messages, want snapshot and matchOver", n)
	}
}

func TestSlowSubscriberNeverBlocksHost(t *testing.T) {
	h := duel(t, 3)
	ch, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			h.OpenRound()
			h.ResolveRound(context.Background())
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("host blocked on a full subscriber queue")
	}
	// The last slot stays free for MatchOver.
	if len(ch) != cap(ch)-1 {
		t.Errorf("queue holds %d of %d", len(ch), cap(ch))
	}
}

func TestMatchOverReachesFullQueue(t *testing.T) {
	h := duel(t, 2)
	ch, _ := h.Subscribe(1)

	for round := 1; round <= 2; round++ {
		h.OpenRound()
		h.Submit("a", engine.FireAt(0, 45))
		if _, over := h.ResolveRound(context.Background()); over != (round == 2) {
			t.Fatalf("round %d: over = %v", round, over)
		}
	}

	var got []MessageType
	var last Message
	for msg := range ch {
		got = append(got, msg.Type)
		last = msg
	}
	want := []MessageType{TypeTerrainSnapshot, TypeRoundResult, TypeMatchOver}
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages = %v, want %v", got, want)
		}
	}
	if last.MatchOver.WinnerID != "a" || last.MatchOver.FinalState.Round != 3 {
		t.Errorf("final = winner %q round %d", last.MatchOver.WinnerID, last.MatchOver.FinalState.Round)
	}
}

func TestAbortReachesFullQueue(t *testing.T) {
	h := duel(t, 3)
	ch, _ := h.Subscribe(1)
	for i := 0; i < 3; i++ {
		h.OpenRound()
		h.ResolveRound(context.Background())
	}
	h.Abort()

	var last Message
	for msg := range ch {
		last = msg
	}
	if last.Type != TypeMatchOver || !last.MatchOver.Aborted {
		t.Errorf("last message = %s", last.Type)
	}
}

// A subscriber joining mid-match sees a snapshot and then every later round
// in order, with no gap between the snapshot state and the first result.
func TestSubscribeDuringRounds(t *testing.T) {
	h := duel(t, 3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			h.OpenRound()
			h.ResolveRound(context.Background())
		}
	}()

	for i := 0; i < 20; i++ {
		ch, cancel := h.Subscribe(64)
		snap := <-ch
		next := snap.TerrainSnapshot.State.Round
		for len(ch) > 0 {
			msg := <-ch
			if msg.Type != TypeRoundResult {
				continue
			}
			if msg.RoundResult.Round != next {
				t.Fatalf("snapshot at round %d, then result for round %d", snap.TerrainSnapshot.State.Round, msg.RoundResult.Round)
			}
			next++
		}
		cancel()
	}
	<-done
}

func TestRunAbortOnCancel(t *testing.T) {
	h := duel(t, 3)
	ch, _ := h.Subscribe(4)
	<-ch

	ctx, cancel := context.WithCancel(context.Background())
	clock := &engine.RoundClock{Window: time.Hour}
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx, clock) }()

	for h.Phase() != engine.PhaseAwaitingActions {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
	msg, ok := <-ch
	if !ok || msg.Type != TypeMatchOver || !msg.MatchOver.Aborted || msg.MatchOver.WinnerID != "" {
		t.Errorf("abort message = %+v", msg)
	}
}

func TestRunToCompletion(t *testing.T) {
	h := duel(t, 1)
	clock := &engine.RoundClock{Window: time.Hour, EarlyClose: true}
	go func() {
		for h.Phase() != engine.PhaseAwaitingActions {
			time.Sleep(time.Millisecond)
		}
		h.Submit("a", engine.FireAt(0, 45))
		h.Submit("b", engine.FireAt(180, 0))
	}()
	if err := h.Run(context.Background(), clock); err != nil {
		t.Fatal(err)
	}
	if s := h.State(); !s.Over || s.WinnerID != "a" {
		t.Errorf("over=%v winner=%q", s.Over, s.WinnerID)
	}
}

func TestReplayUsesEventHit(t *testing.T) {
	h := duel(t, 3)
	r := NewReplica()
	r.Timing = Timing{}
	if _, err := r.Apply(terrainMessage(h.Snapshot())); err != nil {
		t.Fatal(err)
	}

	// The recorded hit names b at a point the local path would never reach.
	far := world.Vec3{X: -3, Y: 4, Z: 7}
	prev := h.State()
	next := prev.Clone()
	next.Round = 2
	next.Players[1].Health = 2
	next.Players[0].Pos = world.HexCoord{Q: 1, R: 0}
	res := RoundResult{
		Round: 1,
		State: next,
		Events: []engine.Event{{
			Type: engine.EventFire,
			Fire: &engine.FireEvent{
				ShooterID: "a",
				Origin:    world.Vec3{Y: 4.26},
				HAngle:    90,
				VAngle:    10,
				Hit:       &engine.Hit{TargetID: "b", Cell: world.HexCoord{Q: 8}, Point: far},
			},
		}},
	}

	pb, err := r.Apply(roundMessage(res))
	if err != nil {
		t.Fatal(err)
	}
	want := []StepKind{StepMove, StepTurn, StepRecoil, StepFlight, StepShake, StepHealth}
	if len(pb.Steps) != len(want) {
		t.Fatalf("steps = %d, want %d", len(pb.Steps), len(want))
	}
	for i, k := range want {
		if pb.Steps[i].Kind != k {
			t.Errorf("step %d = %s, want %s", i, pb.Steps[i].Kind, k)
		}
	}
	flight := pb.Steps[3].Path
	if flight[0] != (world.Vec3{Y: 4.26}) || flight[len(flight)-1] != far {
		t.Errorf("flight runs %+v to %+v", flight[0], flight[len(flight)-1])
	}
	if pb.Steps[4].PlayerID != "b" || pb.Steps[5].PlayerID != "b" || pb.Steps[5].Health != 2 {
		t.Errorf("impact steps = %+v %+v", pb.Steps[4], pb.Steps[5])
	}
	if r.State.Round != 2 {
		t.Errorf("replica state round = %d", r.State.Round)
	}

	var seen []StepKind
	pb.Play(context.Background(), func(s Step) { seen = append(seen, s.Kind) })
	<-pb.Done()
	if pb.Err() != nil || len(seen) != len(want) {
		t.Errorf("playback ran %v, err %v", seen, pb.Err())
	}
}

func TestReplayNotices(t *testing.T) {
	r := NewReplica()
	r.Timing = Timing{}
	f := flatField(t, 3, 4)
	r.Apply(terrainMessage(TerrainSnapshot{Radius: 3, Cells: f.Cells(), State: engine.GameState{
		Players: []engine.Player{player("a", 0, 0, 1), player("b", 3, 0, 3)},
	}}))

	next := engine.GameState{Round: 2, Players: []engine.Player{player("a", 0, 0, 0), player("b", 3, 0, 2)}}
	pb, err := r.Apply(roundMessage(RoundResult{Round: 1, State: next, Events: []engine.Event{
		{Type: engine.EventLandMine, PlayerID: "a"},
		{Type: engine.EventStorm, PlayerID: "b"},
		{Type: engine.EventDeath, PlayerID: "a"},
	}}))
	if err != nil {
		t.Fatal(err)
	}
	want := []StepKind{StepNotice, StepHealth, StepNotice, StepHealth, StepDeath}
	for i, k := range want {
		if i >= len(pb.Steps) || pb.Steps[i].Kind != k {
			t.Fatalf("steps = %+v, want kinds %v", pb.Steps, want)
		}
	}
	if pb.Steps[1].Health != 0 || pb.Steps[3].Health != 2 {
		t.Errorf("health steps %d/%d", pb.Steps[1].Health, pb.Steps[3].Health)
	}
	if pb.Steps[4].Text != "a was defeated" {
		t.Errorf("death text = %q", pb.Steps[4].Text)
	}
}

func TestPlaybackCancel(t *testing.T) {
	pb := &Playback{Steps: []Step{{Kind: StepTurn, Duration: time.Hour}, {Kind: StepRecoil}}}
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	pb.Play(ctx, func(Step) { n++ })
	cancel()
	<-pb.Done()
	if !errors.Is(pb.Err(), context.Canceled) || n != 1 {
		t.Errorf("err %v after %d steps", pb.Err(), n)
	}
}

func TestReplicaRejects(t *testing.T) {
	r := NewReplica()
	if _, err := r.Apply(roundMessage(RoundResult{})); !errors.Is(err, ErrNoTerrain) {
		t.Errorf("round before terrain = %v", err)
	}
	if _, err := r.Apply(Message{Type: TypeRoundResult}); !errors.Is(err, ErrBadMessage) {
		t.Errorf("empty envelope = %v", err)
	}
	if _, err := r.Apply(Submit("a", engine.FireAt(0, 0))); !errors.Is(err, ErrBadMessage) {
		t.Errorf("inbound message applied = %v", err)
	}
	bad := TerrainSnapshot{Cells: []world.Cell{{Q: 1, R: 1, S: 1}}}
	if _, err := r.Apply(terrainMessage(bad)); err == nil {
		t.Error("invalid cell accepted")
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"submit", Submit("a", engine.FireAt(0, 0)), true},
		{"over", overMessage(MatchOver{}), true},
		{"mismatch", Message{Type: TypeMatchOver, RoundResult: &RoundResult{}}, false},
		{"two payloads", Message{Type: TypeMatchOver, MatchOver: &MatchOver{}, RoundResult: &RoundResult{}}, false},
		{"unknown", Message{Type: "hello", MatchOver: &MatchOver{}}, false},
	}
	for _, tt := range tests {
		if err := tt.msg.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v", tt.name, err)
		}
	}
}
