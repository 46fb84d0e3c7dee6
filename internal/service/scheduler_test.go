package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"guessrounds/internal/game"
	"guessrounds/internal/models"
)

func newScheduler(repo *stubRepo, variants ...game.Variant) *Scheduler {
	if len(variants) == 0 {
		variants = []game.Variant{pick10()}
	}
	return &Scheduler{
		Repo:       repo,
		Settlement: &SettlementService{Repo: repo, DrawOutcome: fixedDraw(1)},
		Variants:   variants,
	}
}

func TestEnsureUpcomingRoundCreatesWhenNonePending(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	now := stubNow()

	round, created, err := s.EnsureUpcomingRound(context.Background(), now, pick10())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if !created || round == nil {
		t.Fatalf("expected a new round to be created")
	}
	if round.Status != models.RoundStatusWaiting {
		t.Fatalf("status = %s, want waiting", round.Status)
	}
	if got := round.StartTime.Sub(now); got != 10*time.Second {
		t.Fatalf("start delay = %s, want 10s", got)
	}
	if got := round.EndTime.Sub(round.StartTime); got != 60*time.Second {
		t.Fatalf("duration = %s, want 60s", got)
	}
	if repo.pointers["pick10"] == nil || repo.pointers["pick10"].RoundID != round.ID {
		t.Fatalf("pointer not advanced to the new round")
	}
}

func TestEnsureUpcomingRoundKeepsHealthyPendingRound(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	now := stubNow()

	first, created, err := s.EnsureUpcomingRound(context.Background(), now, pick10())
	if err != nil || !created {
		t.Fatalf("first ensure: created=%v err=%v", created, err)
	}
	second, created, err := s.EnsureUpcomingRound(context.Background(), now, pick10())
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if created {
		t.Fatalf("must not create while the pending round has time left")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing pending round back")
	}
	if len(repo.rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(repo.rounds))
	}
}

func TestEnsureUpcomingRoundCreatesInsideCreationLead(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	now := stubNow()

	first, _, err := s.EnsureUpcomingRound(context.Background(), now, pick10())
	if err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}
	// Jump to 10 seconds before the current round ends, inside the 15s lead.
	later := first.EndTime.Add(-10 * time.Second)
	next, created, err := s.EnsureUpcomingRound(context.Background(), later, pick10())
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if !created {
		t.Fatalf("expected a replacement round inside the creation lead")
	}
	if next.ID == first.ID {
		t.Fatalf("expected a fresh round id")
	}
	if len(repo.rounds) != 2 {
		t.Fatalf("rounds = %d, want 2 (old one still finishing)", len(repo.rounds))
	}
}

func TestEnsureUpcomingRoundConcurrentCreatesOnce(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	now := stubNow()

	const callers = 8
	var wg sync.WaitGroup
	createdCount := 0
	var mu sync.Mutex
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.EnsureUpcomingRound(context.Background(), now, pick10())
			if err != nil {
				t.Errorf("ensure failed: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Fatalf("created = %d, want exactly 1", createdCount)
	}
	if len(repo.rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(repo.rounds))
	}
}

func TestActivateDueWaitingRoundsIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	now := stubNow()
	repo.rounds["round-1"] = &models.Round{
		ID:        "round-1",
		Variant:   "pick10",
		Status:    models.RoundStatusWaiting,
		StartTime: now.Add(-time.Second),
		EndTime:   now.Add(59 * time.Second),
	}

	activated, err := s.ActivateDueWaitingRounds(context.Background(), now, pick10())
	if err != nil || activated != 1 {
		t.Fatalf("first pass: activated=%d err=%v", activated, err)
	}
	if repo.rounds["round-1"].Status != models.RoundStatusActive {
		t.Fatalf("round not activated")
	}

	activated, err = s.ActivateDueWaitingRounds(context.Background(), now, pick10())
	if err != nil || activated != 0 {
		t.Fatalf("second pass must be a no-op: activated=%d err=%v", activated, err)
	}
}

func TestActivateSkipsFutureRounds(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	now := stubNow()
	repo.rounds["round-1"] = &models.Round{
		ID:        "round-1",
		Variant:   "pick10",
		Status:    models.RoundStatusWaiting,
		StartTime: now.Add(5 * time.Second),
		EndTime:   now.Add(65 * time.Second),
	}

	activated, err := s.ActivateDueWaitingRounds(context.Background(), now, pick10())
	if err != nil || activated != 0 {
		t.Fatalf("future round must not activate: activated=%d err=%v", activated, err)
	}
}

func TestAdvanceExpiredActiveRoundsDrainsBacklog(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	// Three rounds past their end time, as after an outage.
	seedActiveRound(repo, "round-1", "pick10", 3*time.Minute)
	seedActiveRound(repo, "round-2", "pick10", 2*time.Minute)
	seedActiveRound(repo, "round-3", "pick10", time.Minute)

	processed, err := s.AdvanceExpiredActiveRounds(context.Background(), stubNow(), pick10())
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if processed != 3 {
		t.Fatalf("processed = %d, want 3", processed)
	}
	for id, r := range repo.rounds {
		if r.Status != models.RoundStatusCompleted {
			t.Fatalf("round %s status = %s, want completed", id, r.Status)
		}
	}
}

func TestRunFullLifecycle(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo)
	now := stubNow()

	// Tick 1: nothing exists, a waiting round appears.
	stats := s.Run(context.Background(), now)
	if !stats.CreatedNewRound {
		t.Fatalf("tick 1 should create a round")
	}
	if stats.CurrentStatus != models.RoundStatusWaiting {
		t.Fatalf("tick 1 current status = %s, want waiting", stats.CurrentStatus)
	}
	roundID := stats.CurrentRoundID

	// Tick 2: past the start delay, the round activates.
	stats = s.Run(context.Background(), now.Add(11*time.Second))
	if stats.ActivatedRounds != 1 {
		t.Fatalf("tick 2 activated = %d, want 1", stats.ActivatedRounds)
	}

	// Tick 3: past the end time, the round settles and a successor exists.
	stats = s.Run(context.Background(), now.Add(72*time.Second))
	if stats.ProcessedRounds != 1 {
		t.Fatalf("tick 3 processed = %d, want 1", stats.ProcessedRounds)
	}
	if repo.rounds[roundID].Status != models.RoundStatusCompleted {
		t.Fatalf("first round not completed")
	}
	if !stats.CreatedNewRound {
		t.Fatalf("tick 3 should have created the next round")
	}
}

func TestRunCoversAllVariants(t *testing.T) {
	repo := newStubRepo()
	s := newScheduler(repo, game.Defaults()...)

	stats := s.Run(context.Background(), stubNow())
	if len(stats.Variants) != 2 {
		t.Fatalf("variant stats = %d, want 2", len(stats.Variants))
	}
	byVariant := map[string]bool{}
	for _, r := range repo.rounds {
		byVariant[r.Variant] = true
	}
	if !byVariant["pick10"] || !byVariant["duel"] {
		t.Fatalf("expected one round per variant, got %v", byVariant)
	}
}
