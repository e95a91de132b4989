package gatekeeper

import "errors"

var (
	// ErrEmptyBank means no challenges are configured; a joiner cannot be
	// challenged and the engine falls back to the configured policy
	ErrEmptyBank = errors.New("challenge bank is empty")

	// ErrDuplicateEntry means a verification already exists for the
	// (chat, member) key
	ErrDuplicateEntry = errors.New("verification entry already exists")

	// ErrNotFound means no verification entry (or option token) matched
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTerminal means the entry was already decided; the caller
	// lost the race and must not apply any further moderation action
	ErrAlreadyTerminal = errors.New("verification already terminal")
)
