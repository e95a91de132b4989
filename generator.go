package gatekeeper

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// Generator picks challenges and produces randomized, labeled option sets
type Generator struct {
	// pick and shuffle are swappable for deterministic tests
	pick    func(n int) int
	shuffle func(n int, swap func(i, j int))
}

// NewGenerator creates a generator backed by math/rand
func NewGenerator() *Generator {
	return &Generator{
		pick:    rand.Intn,
		shuffle: rand.Shuffle,
	}
}

// Present picks a uniform-random challenge from the bank snapshot and
// returns it with the wrong answers and the correct answer shuffled into a
// single option list. Every option carries a fresh opaque token; the token
// of the correct option is recorded on the result.
func (g *Generator) Present(challenges []Challenge) (*PresentedChallenge, error) {
	if len(challenges) == 0 {
		return nil, ErrEmptyBank
	}

	index := g.pick(len(challenges))
	challenge := challenges[index]

	options := make([]Option, 0, len(challenge.Wrong)+1)
	for _, wrong := range challenge.Wrong {
		options = append(options, Option{Label: wrong, Token: newToken()})
	}
	correct := Option{Label: challenge.Answer, Token: newToken()}
	options = append(options, correct)

	g.shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return &PresentedChallenge{
		Index:        index,
		Question:     challenge.Question,
		Options:      options,
		CorrectToken: correct.Token,
	}, nil
}

// Resolve checks an answer token against the presentation snapshot. It is
// pure: the result depends only on the snapshot and the token, so a bank
// edit after presentation cannot change the verdict. The returned label is
// the display text of the chosen option.
func (pc *PresentedChallenge) Resolve(token string) (bool, string, error) {
	for _, option := range pc.Options {
		if option.Token == token {
			return option.Token == pc.CorrectToken, option.Label, nil
		}
	}
	return false, "", fmt.Errorf("token %q not in presentation: %w", token, ErrNotFound)
}

// CorrectLabel returns the display text of the correct option
func (pc *PresentedChallenge) CorrectLabel() string {
	for _, option := range pc.Options {
		if option.Token == pc.CorrectToken {
			return option.Label
		}
	}
	return ""
}

func newToken() string {
	return uuid.NewString()
}
