package gatekeeper

import (
	"fmt"
	"sync"
)

// entryKey identifies one verification: a (chat, member) pair
type entryKey struct {
	ChatID int64
	UserID int64
}

// Registry is the state store for in-flight verifications, one entry per
// (chat, member) pair. The mutex guards only the map and the outcome
// check-and-set; it is never held across moderation calls, so work on
// distinct keys never blocks.
type Registry struct {
	mu      sync.RWMutex
	entries map[entryKey]*VerificationEntry
}

// NewRegistry creates an empty verification registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[entryKey]*VerificationEntry),
	}
}

// Create stores a new pending entry. It fails with ErrDuplicateEntry if one
// already exists for the key.
func (r *Registry) Create(entry *VerificationEntry) error {
	key := entryKey{ChatID: entry.ChatID, UserID: entry.UserID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("chat %d user %d: %w", entry.ChatID, entry.UserID, ErrDuplicateEntry)
	}
	entry.Outcome = OutcomePending
	r.entries[key] = entry
	return nil
}

// Get returns the entry for the key, or ErrNotFound
func (r *Registry) Get(chatID, userID int64) (*VerificationEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[entryKey{ChatID: chatID, UserID: userID}]
	if !ok {
		return nil, fmt.Errorf("chat %d user %d: %w", chatID, userID, ErrNotFound)
	}
	return entry, nil
}

// MarkOutcome transitions the entry from pending to a terminal outcome.
// The check and the set happen atomically, so when an answer, a timeout
// and an override race, exactly one wins; the losers get
// ErrAlreadyTerminal and must not act.
func (r *Registry) MarkOutcome(chatID, userID int64, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[entryKey{ChatID: chatID, UserID: userID}]
	if !ok {
		return fmt.Errorf("chat %d user %d: %w", chatID, userID, ErrNotFound)
	}
	if entry.Outcome.Terminal() {
		return fmt.Errorf("chat %d user %d already %s: %w", chatID, userID, entry.Outcome, ErrAlreadyTerminal)
	}
	entry.Outcome = outcome
	return nil
}

// Remove deletes the entry for the key. Removing a missing entry is a no-op.
func (r *Registry) Remove(chatID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, entryKey{ChatID: chatID, UserID: userID})
}

// Len returns the number of in-flight verifications
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
