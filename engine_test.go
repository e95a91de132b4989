package gatekeeper

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeChat records every moderation and messaging call
type fakeChat struct {
	mu          sync.Mutex
	restricts   int
	unrestricts int
	kicks       int
	deletes     []int
	sent        []string
	edits       []string
	polls       []sentPoll
	acks        []string
	admins      map[int64]bool

	restrictErr error
	sendErr     error
	kickRefused bool

	nextMessageID int
}

type sentPoll struct {
	question string
	options  []string
	correct  int
}

func newFakeChat() *fakeChat {
	return &fakeChat{admins: make(map[int64]bool)}
}

func (f *fakeChat) Restrict(chatID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restrictErr != nil {
		return false, f.restrictErr
	}
	f.restricts++
	return true, nil
}

func (f *fakeChat) Unrestrict(chatID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unrestricts++
	return true, nil
}

func (f *fakeChat) RemoveMember(chatID, userID int64, until time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kickRefused {
		return false, nil
	}
	f.kicks++
	return true, nil
}

func (f *fakeChat) DeleteMessage(chatID int64, messageID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, messageID)
	return true, nil
}

func (f *fakeChat) Send(chatID int64, text string, opts SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sent = append(f.sent, text)
	f.nextMessageID++
	return f.nextMessageID, nil
}

func (f *fakeChat) Edit(chatID int64, messageID int, text string, opts SendOptions) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return true, nil
}

func (f *fakeChat) IsAdmin(chatID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[userID], nil
}

func (f *fakeChat) AdminNames(chatID int64) ([]string, error) {
	return []string{"admin"}, nil
}

func (f *fakeChat) SendPoll(chatID int64, question string, options []string, correct int, openSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, sentPoll{question: question, options: options, correct: correct})
	return nil
}

func (f *fakeChat) AnswerCallback(callbackID, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, text)
	return nil
}

func (f *fakeChat) counts() (restricts, unrestricts, kicks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restricts, f.unrestricts, f.kicks
}

const (
	testChat  int64 = -100123
	testUser  int64 = 42
	testAdmin int64 = 7
)

func testEngine(t *testing.T, fake *fakeChat, challenges ...Challenge) *Engine {
	t.Helper()
	bank, _ := testBank(t, challenges...)
	engine := NewEngine(bank.cfg, bank, fake, nil)
	engine.gen = fixedGenerator(0)
	return engine
}

func join(engine *Engine) {
	engine.HandleJoin(JoinEvent{
		ChatID:        testChat,
		UserID:        testUser,
		UserName:      "newcomer",
		JoinMessageID: 1000,
	})
}

// correctToken digs the winning token out of the in-flight entry
func correctToken(t *testing.T, engine *Engine) string {
	t.Helper()
	entry, err := engine.registry.Get(testChat, testUser)
	if err != nil {
		t.Fatalf("no in-flight entry: %v", err)
	}
	return entry.Presented.CorrectToken
}

func wrongToken(t *testing.T, engine *Engine) string {
	t.Helper()
	entry, err := engine.registry.Get(testChat, testUser)
	if err != nil {
		t.Fatalf("no in-flight entry: %v", err)
	}
	for _, option := range entry.Presented.Options {
		if option.Token != entry.Presented.CorrectToken {
			return option.Token
		}
	}
	t.Fatal("presentation has no wrong option")
	return ""
}

func answer(engine *Engine, responder int64, token string) {
	engine.HandleAnswer(AnswerEvent{
		ChatID:       testChat,
		ResponderID:  responder,
		TargetUserID: testUser,
		Token:        token,
		CallbackID:   "cb",
	})
}

func sampleChallenge() Challenge {
	return Challenge{Question: "What color is the sky?", Answer: "Blue", Wrong: []string{"Green", "Red"}}
}

func TestHandleJoin_ChallengesMember(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)

	restricts, _, kicks := fake.counts()
	if restricts != 1 {
		t.Errorf("expected 1 restrict, got %d", restricts)
	}
	if kicks != 0 {
		t.Errorf("expected no kicks, got %d", kicks)
	}
	if len(fake.sent) != 1 || !strings.Contains(fake.sent[0], "What color is the sky?") {
		t.Errorf("prompt missing question: %v", fake.sent)
	}
	if engine.InFlight() != 1 {
		t.Errorf("expected 1 in-flight verification, got %d", engine.InFlight())
	}
	if pending := engine.PendingJobs(); len(pending) != 3 {
		t.Errorf("expected 3 armed jobs, got %v", pending)
	}
}

func TestHandleJoin_SkipsBots(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	engine.HandleJoin(JoinEvent{ChatID: testChat, UserID: testUser, IsBot: true})

	restricts, _, _ := fake.counts()
	if restricts != 0 || engine.InFlight() != 0 {
		t.Errorf("bot was challenged: restricts=%d inflight=%d", restricts, engine.InFlight())
	}
}

func TestHandleJoin_SkipsAdmins(t *testing.T) {
	fake := newFakeChat()
	fake.admins[testUser] = true
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)

	restricts, _, _ := fake.counts()
	if restricts != 0 || engine.InFlight() != 0 {
		t.Errorf("admin was challenged: restricts=%d inflight=%d", restricts, engine.InFlight())
	}
}

func TestHandleJoin_EmptyBankAllows(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake)
	engine.cfg.AllowUnchallenged = true

	join(engine)

	restricts, _, kicks := fake.counts()
	if restricts != 0 || kicks != 0 {
		t.Errorf("empty bank acted on member: restricts=%d kicks=%d", restricts, kicks)
	}
	if engine.InFlight() != 0 {
		t.Errorf("expected no verification, got %d", engine.InFlight())
	}
}

func TestHandleJoin_EmptyBankRejects(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake)
	engine.cfg.AllowUnchallenged = false

	join(engine)

	restricts, _, kicks := fake.counts()
	if restricts != 0 {
		t.Errorf("member restricted before rejection: %d", restricts)
	}
	if kicks != 1 {
		t.Errorf("expected 1 kick, got %d", kicks)
	}
}

func TestHandleJoin_SendFailureRestores(t *testing.T) {
	fake := newFakeChat()
	fake.sendErr = errors.New("network down")
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)

	_, unrestricts, _ := fake.counts()
	if unrestricts != 1 {
		t.Errorf("expected member restored after send failure, got %d unrestricts", unrestricts)
	}
	if engine.InFlight() != 0 {
		t.Errorf("expected no verification after send failure, got %d", engine.InFlight())
	}
	if len(engine.PendingJobs()) != 0 {
		t.Errorf("timers armed despite send failure: %v", engine.PendingJobs())
	}
}

func TestHandleJoin_RestrictFailureStillChallenges(t *testing.T) {
	fake := newFakeChat()
	fake.restrictErr = errors.New("no permission")
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)

	if engine.InFlight() != 1 {
		t.Errorf("expected verification despite restrict failure, got %d", engine.InFlight())
	}
	if len(fake.sent) != 1 {
		t.Errorf("expected prompt despite restrict failure, got %v", fake.sent)
	}
}

func TestHandleJoin_RejoinReplacesPending(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	firstPrompt := 1 // first Send id
	join(engine)

	if engine.InFlight() != 1 {
		t.Errorf("expected 1 in-flight verification after rejoin, got %d", engine.InFlight())
	}
	if len(fake.sent) != 2 {
		t.Errorf("expected 2 prompts, got %d", len(fake.sent))
	}
	found := false
	for _, id := range fake.deletes {
		if id == firstPrompt {
			found = true
		}
	}
	if !found {
		t.Errorf("stale prompt %d not deleted, deletes=%v", firstPrompt, fake.deletes)
	}
	if pending := engine.PendingJobs(); len(pending) != 3 {
		t.Errorf("expected 3 armed jobs after rejoin, got %v", pending)
	}
}

func TestHandleAnswer_Correct(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	answer(engine, testUser, correctToken(t, engine))

	_, unrestricts, kicks := fake.counts()
	if unrestricts != 1 {
		t.Errorf("expected 1 unrestrict, got %d", unrestricts)
	}
	if kicks != 0 {
		t.Errorf("expected no kicks, got %d", kicks)
	}
	if engine.InFlight() != 0 {
		t.Errorf("expected verification finished, got %d in flight", engine.InFlight())
	}
	// The removal and join-cleanup timers are disarmed; the prompt cleanup
	// stays so the decided prompt still disappears later.
	pending := engine.PendingJobs()
	if len(pending) != 1 || !strings.HasSuffix(pending[0], JobCleanQuestion) {
		t.Errorf("unexpected pending jobs after pass: %v", pending)
	}
	if len(fake.edits) != 1 || !strings.Contains(fake.edits[0], "passed") {
		t.Errorf("prompt not updated with pass message: %v", fake.edits)
	}
}

func TestHandleAnswer_Wrong(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	answer(engine, testUser, wrongToken(t, engine))

	_, unrestricts, kicks := fake.counts()
	if kicks != 1 {
		t.Errorf("expected 1 kick, got %d", kicks)
	}
	if unrestricts != 0 {
		t.Errorf("expected no unrestricts, got %d", unrestricts)
	}
	if engine.InFlight() != 0 {
		t.Errorf("expected verification finished, got %d in flight", engine.InFlight())
	}
}

func TestHandleAnswer_KickRefusedReportsDegraded(t *testing.T) {
	fake := newFakeChat()
	fake.kickRefused = true
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	answer(engine, testUser, wrongToken(t, engine))

	if len(fake.edits) != 1 || !strings.Contains(fake.edits[0], "lack permission") {
		t.Errorf("expected degraded kick notice, got %v", fake.edits)
	}
	if engine.InFlight() != 0 {
		t.Errorf("expected verification finished, got %d in flight", engine.InFlight())
	}
}

func TestHandleAnswer_WrongResponderIgnored(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	token := correctToken(t, engine)
	answer(engine, testUser+1, token)

	_, unrestricts, kicks := fake.counts()
	if unrestricts != 0 || kicks != 0 {
		t.Errorf("bystander press acted: unrestricts=%d kicks=%d", unrestricts, kicks)
	}
	if engine.InFlight() != 1 {
		t.Errorf("verification ended by bystander, in flight=%d", engine.InFlight())
	}
	if len(fake.acks) != 1 {
		t.Errorf("expected a rejection ack, got %v", fake.acks)
	}

	// The member can still answer afterwards.
	answer(engine, testUser, token)
	if engine.InFlight() != 0 {
		t.Errorf("member answer after bystander press did not finish, in flight=%d", engine.InFlight())
	}
}

func TestHandleAnswer_AfterTimeoutLosesRace(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	token := correctToken(t, engine)

	// The timeout decides first.
	if err := engine.registry.MarkOutcome(testChat, testUser, OutcomeTimedOut); err != nil {
		t.Fatalf("MarkOutcome failed: %v", err)
	}

	answer(engine, testUser, token)

	_, unrestricts, _ := fake.counts()
	if unrestricts != 0 {
		t.Errorf("losing answer still restored the member: %d unrestricts", unrestricts)
	}
}

func TestHandleAdmin_Pass(t *testing.T) {
	fake := newFakeChat()
	fake.admins[testAdmin] = true
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	engine.HandleAdmin(AdminEvent{
		ChatID: testChat, ResponderID: testAdmin, ResponderName: "mod",
		TargetUserID: testUser, Pass: true, CallbackID: "cb",
	})

	_, unrestricts, kicks := fake.counts()
	if unrestricts != 1 || kicks != 0 {
		t.Errorf("expected approve: unrestricts=%d kicks=%d", unrestricts, kicks)
	}
	if engine.InFlight() != 0 {
		t.Errorf("expected verification finished, got %d", engine.InFlight())
	}

	// A late answer changes nothing.
	answer(engine, testUser, "stale-token")
	_, unrestricts, kicks = fake.counts()
	if unrestricts != 1 || kicks != 0 {
		t.Errorf("late answer acted after override: unrestricts=%d kicks=%d", unrestricts, kicks)
	}
}

func TestHandleAdmin_Kick(t *testing.T) {
	fake := newFakeChat()
	fake.admins[testAdmin] = true
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	engine.HandleAdmin(AdminEvent{
		ChatID: testChat, ResponderID: testAdmin, ResponderName: "mod",
		TargetUserID: testUser, Pass: false, CallbackID: "cb",
	})

	_, unrestricts, kicks := fake.counts()
	if kicks != 1 || unrestricts != 0 {
		t.Errorf("expected removal: kicks=%d unrestricts=%d", kicks, unrestricts)
	}
}

func TestHandleAdmin_NonAdminIgnored(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	engine.HandleAdmin(AdminEvent{
		ChatID: testChat, ResponderID: testUser + 1,
		TargetUserID: testUser, Pass: true, CallbackID: "cb",
	})

	_, unrestricts, kicks := fake.counts()
	if unrestricts != 0 || kicks != 0 {
		t.Errorf("non-admin override acted: unrestricts=%d kicks=%d", unrestricts, kicks)
	}
	if engine.InFlight() != 1 {
		t.Errorf("verification ended by non-admin, in flight=%d", engine.InFlight())
	}
}

func TestHandleAdmin_SuperAdminBypassesChatCheck(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())
	engine.cfg.SuperAdmin = testAdmin

	join(engine)
	engine.HandleAdmin(AdminEvent{
		ChatID: testChat, ResponderID: testAdmin, ResponderName: "owner",
		TargetUserID: testUser, Pass: true, CallbackID: "cb",
	})

	if engine.InFlight() != 0 {
		t.Errorf("super admin override ignored, in flight=%d", engine.InFlight())
	}
}

func TestKickJob_RemovesPendingMember(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	engine.handleJob(JobPayload{Kind: JobKick, ChatID: testChat, UserID: testUser})

	_, _, kicks := fake.counts()
	if kicks != 1 {
		t.Errorf("expected 1 kick on timeout, got %d", kicks)
	}
	if engine.InFlight() != 0 {
		t.Errorf("expected verification finished, got %d", engine.InFlight())
	}

	// Firing again finds nothing and removes nobody.
	engine.handleJob(JobPayload{Kind: JobKick, ChatID: testChat, UserID: testUser})
	_, _, kicks = fake.counts()
	if kicks != 1 {
		t.Errorf("second timeout fired a second kick: %d", kicks)
	}
}

func TestKickJob_AfterPassDoesNothing(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	answer(engine, testUser, correctToken(t, engine))
	engine.handleJob(JobPayload{Kind: JobKick, ChatID: testChat, UserID: testUser})

	_, _, kicks := fake.counts()
	if kicks != 0 {
		t.Errorf("timeout kicked a passed member: %d", kicks)
	}
}

func TestCleanJob_DeletesMessage(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	engine.handleJob(JobPayload{Kind: JobCleanJoin, ChatID: testChat, MessageID: 555})

	if len(fake.deletes) != 1 || fake.deletes[0] != 555 {
		t.Errorf("expected message 555 deleted, got %v", fake.deletes)
	}
}

func TestHandleQuiz_PostsPoll(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	if err := engine.HandleQuiz(testChat); err != nil {
		t.Fatalf("HandleQuiz failed: %v", err)
	}
	if len(fake.polls) != 1 {
		t.Fatalf("expected 1 poll, got %d", len(fake.polls))
	}

	poll := fake.polls[0]
	if poll.question != "What color is the sky?" {
		t.Errorf("unexpected poll question %q", poll.question)
	}
	if len(poll.options) != 3 {
		t.Errorf("expected 3 poll options, got %v", poll.options)
	}
	if poll.options[poll.correct] != "Blue" {
		t.Errorf("poll marks %q correct, want Blue", poll.options[poll.correct])
	}
}

func TestHandleQuiz_EmptyBank(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake)

	if err := engine.HandleQuiz(testChat); !errors.Is(err, ErrEmptyBank) {
		t.Errorf("expected ErrEmptyBank, got %v", err)
	}
}

func TestRequestReload_DefersWhileJobsPending(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	join(engine)
	reply := engine.RequestReload()

	if reply != engine.cfg.Messages.Pending {
		t.Errorf("expected deferral reply, got %q", reply)
	}
	found := false
	for _, id := range engine.PendingJobs() {
		if id == JobReload {
			found = true
		}
	}
	if !found {
		t.Errorf("reload job not armed: %v", engine.PendingJobs())
	}
	engine.sched.Cancel(JobReload)
}

func TestRequestReload_Immediate(t *testing.T) {
	fake := newFakeChat()
	engine := testEngine(t, fake, sampleChallenge())

	reply := engine.RequestReload()
	if !strings.Contains(reply, "1") {
		t.Errorf("expected reload count in reply, got %q", reply)
	}
}
