package gatekeeper

import "time"

// Challenge is a single verification question with one correct answer and
// several wrong ones
type Challenge struct {
	Question string   `yaml:"question" json:"question"`
	Answer   string   `yaml:"answer" json:"answer"`
	Wrong    []string `yaml:"wrong" json:"wrong"`
}

// Option is one selectable answer in a presented challenge. Token is the
// opaque value carried through the callback; it never reveals whether the
// option is correct.
type Option struct {
	Label string
	Token string
}

// PresentedChallenge is the snapshot taken when a member is challenged:
// the question, the shuffled options, and the token of the correct one.
// Answers resolve against this snapshot, never against the live bank.
type PresentedChallenge struct {
	Index        int // position in the bank at presentation time, kept for display and audit
	Question     string
	Options      []Option
	CorrectToken string
}

// Outcome is the state of a verification entry
type Outcome string

const (
	OutcomePending        Outcome = "pending"
	OutcomePassed         Outcome = "passed"
	OutcomeFailed         Outcome = "failed"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeOverriddenPass Outcome = "overridden_pass"
	OutcomeOverriddenKick Outcome = "overridden_kick"
)

// Terminal reports whether the outcome ends the verification
func (o Outcome) Terminal() bool {
	return o != OutcomePending
}

// Job kinds scheduled for a verification entry
const (
	JobKick          = "kick"
	JobCleanJoin     = "clean_join"
	JobCleanQuestion = "clean_question"
	JobReload        = "reload"
)

// JobPayload is the immutable snapshot delivered to a fired job. It carries
// everything the handler needs, so a fired job never reads mutable config.
type JobPayload struct {
	Kind      string
	ChatID    int64
	UserID    int64
	MessageID int
}

// VerificationEntry tracks one in-flight join challenge for a
// (chat, member) pair
type VerificationEntry struct {
	ChatID          int64
	UserID          int64
	UserName        string
	Presented       *PresentedChallenge
	JoinMessageID   int
	PromptMessageID int
	Jobs            []string // scheduler job ids owned by this entry
	Outcome         Outcome
	CreatedAt       time.Time
}

// Inbound events, decoded once at the transport boundary.

// JoinEvent is a new member appearing in the guarded chat
type JoinEvent struct {
	ChatID        int64
	UserID        int64
	UserName      string
	IsBot         bool
	JoinMessageID int
}

// AnswerEvent is a challenge button press
type AnswerEvent struct {
	ChatID          int64
	ResponderID     int64
	ResponderName   string
	TargetUserID    int64
	Token           string
	PromptMessageID int
	CallbackID      string
}

// AdminEvent is an admin override button press
type AdminEvent struct {
	ChatID          int64
	ResponderID     int64
	ResponderName   string
	TargetUserID    int64
	Pass            bool
	PromptMessageID int
	CallbackID      string
}
