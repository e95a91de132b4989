package gatekeeper

import (
	"fmt"
	"strings"
	"sync"
)

// Bank is the concurrent view over the challenge list of a config document.
// The engine takes read snapshots; the editor mutates and saves through.
type Bank struct {
	mu         sync.RWMutex
	path       string
	cfg        *Config
	challenges []Challenge
}

// NewBank creates a bank over an already-loaded config document
func NewBank(cfg *Config, path string) *Bank {
	return &Bank{
		path:       path,
		cfg:        cfg,
		challenges: append([]Challenge(nil), cfg.Challenges...),
	}
}

// Snapshot returns a copy of the current challenge list. Presentations are
// derived from a snapshot so concurrent edits cannot shift indexes under an
// in-flight verification.
func (b *Bank) Snapshot() []Challenge {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Challenge(nil), b.challenges...)
}

// Len returns the number of challenges
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.challenges)
}

// Get returns the challenge at index
func (b *Bank) Get(index int) (Challenge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.challenges) {
		return Challenge{}, fmt.Errorf("challenge %d: %w", index, ErrNotFound)
	}
	return b.challenges[index], nil
}

// Add appends a challenge. A challenge whose question already exists in the
// bank is rejected.
func (b *Bank) Add(ch Challenge) error {
	if err := ch.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.challenges {
		if strings.EqualFold(strings.TrimSpace(existing.Question), strings.TrimSpace(ch.Question)) {
			return fmt.Errorf("question %q: %w", ch.Question, ErrDuplicateEntry)
		}
	}
	b.challenges = append(b.challenges, ch)
	return nil
}

// Update replaces the challenge at index
func (b *Bank) Update(index int, ch Challenge) error {
	if err := ch.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.challenges) {
		return fmt.Errorf("challenge %d: %w", index, ErrNotFound)
	}
	b.challenges[index] = ch
	return nil
}

// Delete removes the challenge at index
func (b *Bank) Delete(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.challenges) {
		return fmt.Errorf("challenge %d: %w", index, ErrNotFound)
	}
	b.challenges = append(b.challenges[:index], b.challenges[index+1:]...)
	return nil
}

// Save writes the full config document, including the current challenge
// list, back to its file
func (b *Bank) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cfg.Challenges = append([]Challenge(nil), b.challenges...)
	if err := SaveConfig(b.path, b.cfg); err != nil {
		return fmt.Errorf("failed to save bank: %w", err)
	}
	return nil
}

// Reload re-reads the config file and swaps in its challenge list. The
// previous list stays in effect if the file fails to load.
func (b *Bank) Reload() (int, error) {
	cfg, err := LoadConfig(b.path)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cfg.Challenges = cfg.Challenges
	b.challenges = append([]Challenge(nil), cfg.Challenges...)
	return len(b.challenges), nil
}
