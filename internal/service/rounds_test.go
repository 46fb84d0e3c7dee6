package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"guessrounds/internal/game"
	"guessrounds/internal/models"
)

func newRoundsService(repo *stubRepo) *RoundsService {
	return &RoundsService{Repo: repo, Variants: game.Defaults()}
}

func TestJoinRound(t *testing.T) {
	repo := newStubRepo()
	svc := newRoundsService(repo)
	repo.rounds["round-1"] = &models.Round{
		ID:        "round-1",
		Variant:   "pick10",
		Status:    models.RoundStatusWaiting,
		StartTime: stubNow().Add(5 * time.Second),
		EndTime:   stubNow().Add(65 * time.Second),
	}

	entry, err := svc.Join(context.Background(), "round-1", "wallet-1", 7, "stake-1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if entry.ID == "" || entry.RoundID != "round-1" || entry.SelectedValue != 7 {
		t.Fatalf("entry = %+v", entry)
	}
	stored := repo.entries[entry.ID]
	if stored == nil || stored.ParticipantAddress != "wallet-1" {
		t.Fatalf("entry not persisted")
	}
}

func TestJoinRejections(t *testing.T) {
	repo := newStubRepo()
	svc := newRoundsService(repo)
	repo.rounds["open"] = &models.Round{
		ID:      "open",
		Variant: "pick10",
		Status:  models.RoundStatusActive,
		EndTime: stubNow().Add(30 * time.Second),
	}
	repo.rounds["done"] = &models.Round{
		ID:      "done",
		Variant: "pick10",
		Status:  models.RoundStatusCompleted,
	}
	if _, err := svc.Join(context.Background(), "open", "wallet-1", 3, "stake-1"); err != nil {
		t.Fatalf("seed join failed: %v", err)
	}

	cases := []struct {
		name    string
		roundID string
		wallet  string
		value   int
		stake   string
		want    error
	}{
		{"unknown round", "missing", "wallet-2", 3, "stake", ErrRoundNotFound},
		{"completed round", "done", "wallet-2", 3, "stake", ErrRoundClosed},
		{"value out of range", "open", "wallet-2", 11, "stake", ErrValueOutOfRange},
		{"duplicate wallet", "open", "wallet-1", 5, "stake", ErrDuplicateEntry},
		{"missing wallet", "open", "", 3, "stake", ErrAddressRequired},
		{"missing stake ref", "open", "wallet-2", 3, "", ErrStakeRefRequired},
	}
	for _, tc := range cases {
		_, err := svc.Join(context.Background(), tc.roundID, tc.wallet, tc.value, tc.stake)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCurrentRound(t *testing.T) {
	repo := newStubRepo()
	svc := newRoundsService(repo)

	got, err := svc.CurrentRound(context.Background(), "pick10")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil when nothing is pending")
	}

	repo.rounds["round-1"] = &models.Round{
		ID:      "round-1",
		Variant: "pick10",
		Status:  models.RoundStatusActive,
		EndTime: stubNow().Add(30 * time.Second),
	}
	got, err = svc.CurrentRound(context.Background(), "pick10")
	if err != nil || got == nil || got.ID != "round-1" {
		t.Fatalf("current = %v, err = %v", got, err)
	}

	if _, err := svc.CurrentRound(context.Background(), "nonsense"); !errors.Is(err, ErrVariantUnknown) {
		t.Fatalf("err = %v, want unknown variant", err)
	}
}

func TestRoundEntries(t *testing.T) {
	repo := newStubRepo()
	svc := newRoundsService(repo)
	repo.rounds["round-1"] = &models.Round{
		ID:      "round-1",
		Variant: "pick10",
		Status:  models.RoundStatusCompleted,
	}
	seedRoundEntry(repo, "round-1", 1, 3)
	seedRoundEntry(repo, "round-1", 2, 8)

	round, entries, err := svc.RoundEntries(context.Background(), "round-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if round.ID != "round-1" || len(entries) != 2 {
		t.Fatalf("round=%v entries=%d", round, len(entries))
	}

	if _, _, err := svc.RoundEntries(context.Background(), "missing"); !errors.Is(err, ErrRoundNotFound) {
		t.Fatalf("err = %v, want round not found", err)
	}
}
