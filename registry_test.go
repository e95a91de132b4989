package gatekeeper

import (
	"errors"
	"sync"
	"testing"
)

func pendingEntry(chatID, userID int64) *VerificationEntry {
	return &VerificationEntry{
		ChatID:   chatID,
		UserID:   userID,
		UserName: "someone",
	}
}

func TestCreate_Duplicate(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Create(pendingEntry(1, 2)); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	err := registry.Create(pendingEntry(1, 2))
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry, got %v", err)
	}

	// Same user in another chat is a distinct verification.
	if err := registry.Create(pendingEntry(3, 2)); err != nil {
		t.Errorf("Create in different chat failed: %v", err)
	}
	if registry.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", registry.Len())
	}
}

func TestGet_NotFound(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get(1, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkOutcome_TerminalGuard(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Create(pendingEntry(1, 2)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := registry.MarkOutcome(1, 2, OutcomePassed); err != nil {
		t.Fatalf("first MarkOutcome failed: %v", err)
	}

	err := registry.MarkOutcome(1, 2, OutcomeTimedOut)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("expected ErrAlreadyTerminal, got %v", err)
	}

	entry, err := registry.Get(1, 2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Outcome != OutcomePassed {
		t.Errorf("outcome changed after terminal, got %s", entry.Outcome)
	}
}

func TestMarkOutcome_NotFound(t *testing.T) {
	registry := NewRegistry()

	err := registry.MarkOutcome(1, 2, OutcomePassed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkOutcome_SingleWinner(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Create(pendingEntry(1, 2)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	outcomes := []Outcome{
		OutcomePassed, OutcomeFailed, OutcomeTimedOut,
		OutcomeOverriddenPass, OutcomeOverriddenKick,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, outcome := range outcomes {
		wg.Add(1)
		go func(o Outcome) {
			defer wg.Done()
			if err := registry.MarkOutcome(1, 2, o); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(outcome)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Create(pendingEntry(1, 2)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	registry.Remove(1, 2)
	registry.Remove(1, 2)

	if registry.Len() != 0 {
		t.Errorf("expected empty registry, got %d entries", registry.Len())
	}
	if err := registry.Create(pendingEntry(1, 2)); err != nil {
		t.Errorf("Create after Remove failed: %v", err)
	}
}
