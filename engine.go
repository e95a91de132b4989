package gatekeeper

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Engine runs the member verification lifecycle:
// restrict → present → {pass, fail, timeout, admin override} → cleanup.
// Inbound events and fired timers may arrive concurrently; the registry's
// MarkOutcome decides every race, and the losing side performs no
// moderation action.
type Engine struct {
	cfg      *Config
	bank     *Bank
	chat     ChatService
	gen      *Generator
	registry *Registry
	sched    *Scheduler
	actions  *Actions
	audit    *AuditDB // optional; nil disables the audit trail
}

// NewEngine wires the generator, registry, scheduler and moderation façade
// around a chat service
func NewEngine(cfg *Config, bank *Bank, chat ChatService, audit *AuditDB) *Engine {
	e := &Engine{
		cfg:      cfg,
		bank:     bank,
		chat:     chat,
		gen:      NewGenerator(),
		registry: NewRegistry(),
		actions:  NewActions(chat, cfg.BanTime()),
		audit:    audit,
	}
	e.sched = NewScheduler(e.handleJob)
	return e
}

// jobID builds the scheduler key for one job of one verification
func jobID(chatID, userID int64, kind string) string {
	return fmt.Sprintf("%d|%d|%s", chatID, userID, kind)
}

// HandleJoin challenges a newly joined member: restrict, present a
// challenge, and arm the removal and cleanup timers. Bots and admins are
// never challenged. An empty bank falls back to the configured policy
// without ever restricting the joiner.
func (e *Engine) HandleJoin(ev JoinEvent) {
	if ev.IsBot {
		return
	}
	if e.isAdmin(ev.ChatID, ev.UserID) {
		return
	}

	presented, err := e.gen.Present(e.bank.Snapshot())
	if err != nil {
		if errors.Is(err, ErrEmptyBank) {
			if e.cfg.AllowUnchallenged {
				logWarn("New member: bank empty, letting user %d through at group %d", ev.UserID, ev.ChatID)
			} else {
				logWarn("New member: bank empty, rejecting user %d at group %d", ev.UserID, ev.ChatID)
				e.actions.Kick(ev.ChatID, ev.UserID)
			}
			return
		}
		logWarn("New member: failed to present challenge for user %d at group %d: %v", ev.UserID, ev.ChatID, err)
		return
	}

	e.actions.Restrict(ev.ChatID, ev.UserID)

	buttons := make([][]Button, 0, len(presented.Options)+1)
	for _, option := range presented.Options {
		buttons = append(buttons, []Button{{
			Label: option.Label,
			Data:  fmt.Sprintf("challenge|%d|%s", ev.UserID, option.Token),
		}})
	}
	buttons = append(buttons, []Button{
		{Label: e.cfg.Messages.PassBtn, Data: fmt.Sprintf("admin|pass|%d", ev.UserID)},
		{Label: e.cfg.Messages.KickBtn, Data: fmt.Sprintf("admin|kick|%d", ev.UserID)},
	})

	text := Expand(e.cfg.Messages.Greet, map[string]string{
		"question": presented.Question,
		"time":     strconv.Itoa(e.cfg.GraceSeconds),
	})
	promptID, err := e.chat.Send(ev.ChatID, text, SendOptions{Buttons: buttons})
	if err != nil {
		// Fail open: without a prompt there is no verification to run,
		// and the member must not stay restricted.
		logWarn("New member: failed to send challenge to group %d: %v", ev.ChatID, err)
		e.actions.Restore(ev.ChatID, ev.UserID)
		return
	}

	entry := &VerificationEntry{
		ChatID:          ev.ChatID,
		UserID:          ev.UserID,
		UserName:        ev.UserName,
		Presented:       presented,
		JoinMessageID:   ev.JoinMessageID,
		PromptMessageID: promptID,
		Jobs: []string{
			jobID(ev.ChatID, ev.UserID, JobKick),
			jobID(ev.ChatID, ev.UserID, JobCleanJoin),
			jobID(ev.ChatID, ev.UserID, JobCleanQuestion),
		},
		CreatedAt: time.Now(),
	}

	if err := e.registry.Create(entry); err != nil {
		// The member rejoined while a verification was pending: the old
		// one is superseded. Its timers share ids with the new ones, so
		// rescheduling below replaces them; only the stale prompt needs
		// deleting now.
		if old, gerr := e.registry.Get(ev.ChatID, ev.UserID); gerr == nil {
			logWarn("New member: replacing pending verification for user %d at group %d", ev.UserID, ev.ChatID)
			e.actions.Clean(ev.ChatID, old.PromptMessageID)
			e.registry.Remove(ev.ChatID, ev.UserID)
		}
		if err := e.registry.Create(entry); err != nil {
			logWarn("New member: failed to register verification for user %d at group %d: %v", ev.UserID, ev.ChatID, err)
			e.actions.Clean(ev.ChatID, promptID)
			e.actions.Restore(ev.ChatID, ev.UserID)
			return
		}
	}

	fireAt := time.Now().Add(e.cfg.Grace())
	e.sched.Schedule(jobID(ev.ChatID, ev.UserID, JobKick), fireAt,
		JobPayload{Kind: JobKick, ChatID: ev.ChatID, UserID: ev.UserID})
	e.sched.Schedule(jobID(ev.ChatID, ev.UserID, JobCleanJoin), fireAt,
		JobPayload{Kind: JobCleanJoin, ChatID: ev.ChatID, UserID: ev.UserID, MessageID: ev.JoinMessageID})
	e.sched.Schedule(jobID(ev.ChatID, ev.UserID, JobCleanQuestion), fireAt,
		JobPayload{Kind: JobCleanQuestion, ChatID: ev.ChatID, UserID: ev.UserID, MessageID: promptID})

	logInfo("New member: challenged user %d at group %d with question %d", ev.UserID, ev.ChatID, presented.Index)
}

// HandleAnswer resolves a challenge button press. Only the challenged
// member may answer; anyone else gets a non-terminal acknowledgment and
// nothing changes.
func (e *Engine) HandleAnswer(ev AnswerEvent) {
	entry, err := e.registry.Get(ev.ChatID, ev.TargetUserID)
	if err != nil {
		e.answerCallback(ev.CallbackID, e.cfg.Messages.Other, true)
		return
	}
	if ev.ResponderID != entry.UserID {
		e.answerCallback(ev.CallbackID, e.cfg.Messages.Other, true)
		return
	}

	correct, label, err := entry.Presented.Resolve(ev.Token)
	if err != nil {
		logWarn("Answer: unresolvable token from user %d at group %d: %v", ev.ResponderID, ev.ChatID, err)
		e.answerCallback(ev.CallbackID, e.cfg.Messages.Other, true)
		return
	}

	if correct {
		if err := e.registry.MarkOutcome(entry.ChatID, entry.UserID, OutcomePassed); err != nil {
			logWarn("Answer: user %d at group %d lost the race: %v", entry.UserID, entry.ChatID, err)
			return
		}
		e.answerCallback(ev.CallbackID, e.cfg.Messages.Success, false)
		e.actions.Restore(entry.ChatID, entry.UserID)
		e.sched.Cancel(jobID(entry.ChatID, entry.UserID, JobKick))
		e.sched.Cancel(jobID(entry.ChatID, entry.UserID, JobCleanJoin))
		e.editPrompt(entry, e.cfg.Messages.Pass, map[string]string{
			"user":     entry.UserName,
			"question": entry.Presented.Question,
			"ans":      label,
		})
		e.finish(entry, OutcomePassed, "answer")
		return
	}

	if err := e.registry.MarkOutcome(entry.ChatID, entry.UserID, OutcomeFailed); err != nil {
		logWarn("Answer: user %d at group %d lost the race: %v", entry.UserID, entry.ChatID, err)
		return
	}
	e.answerCallback(ev.CallbackID, Expand(e.cfg.Messages.Retry, map[string]string{
		"time": strconv.Itoa(e.cfg.BanSeconds),
	}), true)

	removed := e.actions.Kick(entry.ChatID, entry.UserID)
	// The removal timer is redundant once the failure is decided.
	e.sched.Cancel(jobID(entry.ChatID, entry.UserID, JobKick))

	template := e.cfg.Messages.Kick
	if !removed {
		template = e.cfg.Messages.NotKick
	}
	e.editPrompt(entry, template, map[string]string{
		"user":     entry.UserName,
		"question": entry.Presented.Question,
		"ans":      label,
		"correct":  entry.Presented.CorrectLabel(),
	})
	e.finish(entry, OutcomeFailed, "answer")
}

// HandleAdmin applies an administrator override. Non-admin presses are
// acknowledged and ignored.
func (e *Engine) HandleAdmin(ev AdminEvent) {
	if !e.isAdmin(ev.ChatID, ev.ResponderID) {
		e.answerCallback(ev.CallbackID, e.cfg.Messages.Other, true)
		return
	}

	entry, err := e.registry.Get(ev.ChatID, ev.TargetUserID)
	if err != nil {
		e.answerCallback(ev.CallbackID, e.cfg.Messages.Other, true)
		return
	}

	outcome := OutcomeOverriddenKick
	ack := e.cfg.Messages.KickBtn
	template := e.cfg.Messages.AdminKick
	if ev.Pass {
		outcome = OutcomeOverriddenPass
		ack = e.cfg.Messages.PassBtn
		template = e.cfg.Messages.AdminPass
	}

	if err := e.registry.MarkOutcome(entry.ChatID, entry.UserID, outcome); err != nil {
		logWarn("Admin: override for user %d at group %d lost the race: %v", entry.UserID, entry.ChatID, err)
		return
	}
	e.answerCallback(ev.CallbackID, ack, false)

	if ev.Pass {
		e.actions.Restore(entry.ChatID, entry.UserID)
		e.sched.Cancel(jobID(entry.ChatID, entry.UserID, JobKick))
		e.sched.Cancel(jobID(entry.ChatID, entry.UserID, JobCleanJoin))
	} else {
		e.actions.Kick(entry.ChatID, entry.UserID)
		e.sched.Cancel(jobID(entry.ChatID, entry.UserID, JobKick))
	}

	e.editPrompt(entry, template, map[string]string{
		"admin": ev.ResponderName,
		"user":  entry.UserName,
	})
	e.finish(entry, outcome, ev.ResponderName)
}

// HandleQuiz posts a one-off quiz poll from the bank
func (e *Engine) HandleQuiz(chatID int64) error {
	presented, err := e.gen.Present(e.bank.Snapshot())
	if err != nil {
		return err
	}

	labels := make([]string, len(presented.Options))
	correct := 0
	for i, option := range presented.Options {
		labels[i] = option.Label
		if option.Token == presented.CorrectToken {
			correct = i
		}
	}
	return e.chat.SendPoll(chatID, presented.Question, labels, correct, e.cfg.QuizSeconds)
}

// RequestReload reloads the challenge bank from disk, or defers the reload
// by one grace period while any job is still pending so an in-flight
// verification never observes the bank shifting under it. The returned
// text is the reply for whoever asked.
func (e *Engine) RequestReload() string {
	if pending := e.sched.Pending(); len(pending) > 0 {
		e.sched.Schedule(JobReload, time.Now().Add(e.cfg.Grace()), JobPayload{Kind: JobReload})
		logInfo("Job reload: waiting for %v", pending)
		return e.cfg.Messages.Pending
	}

	n, err := e.bank.Reload()
	if err != nil {
		logWarn("Job reload: %v", err)
		return Expand(e.cfg.Messages.Corrupt, map[string]string{"text": err.Error()})
	}
	logInfo("Job reload: reloaded %d challenges", n)
	return Expand(e.cfg.Messages.Reloaded, map[string]string{"num": strconv.Itoa(n)})
}

// StartMessage builds the /start reply and logs the pending jobs
func (e *Engine) StartMessage(chatID, userID int64) string {
	logInfo("Current jobs: %v", e.sched.Pending())
	return Expand(e.cfg.Messages.Start, map[string]string{
		"chat": strconv.FormatInt(chatID, 10),
		"user": strconv.FormatInt(userID, 10),
	})
}

// PendingJobs lists the armed scheduler jobs (diagnostic)
func (e *Engine) PendingJobs() []string {
	return e.sched.Pending()
}

// InFlight returns the number of verifications still pending
func (e *Engine) InFlight() int {
	return e.registry.Len()
}

// handleJob dispatches a fired timer. The kick handler re-checks the entry
// state through MarkOutcome: if the member answered (or an admin acted)
// between firing and handling, the timeout loses the race and removes
// nobody.
func (e *Engine) handleJob(payload JobPayload) {
	switch payload.Kind {
	case JobKick:
		entry, err := e.registry.Get(payload.ChatID, payload.UserID)
		if err != nil {
			VerboseLog("Job kick: no entry for user %d at group %d", payload.UserID, payload.ChatID)
			return
		}
		if err := e.registry.MarkOutcome(payload.ChatID, payload.UserID, OutcomeTimedOut); err != nil {
			logWarn("Job kick: user %d at group %d already decided: %v", payload.UserID, payload.ChatID, err)
			return
		}
		e.actions.Kick(payload.ChatID, payload.UserID)
		e.finish(entry, OutcomeTimedOut, "timeout")

	case JobCleanJoin, JobCleanQuestion:
		e.actions.Clean(payload.ChatID, payload.MessageID)

	case JobReload:
		e.RequestReload()

	default:
		logWarn("Job %s: unknown kind", payload.Kind)
	}
}

// finish removes the decided entry and records it in the audit trail.
// Audit failures are logged and never affect the verification.
func (e *Engine) finish(entry *VerificationEntry, outcome Outcome, decidedBy string) {
	e.registry.Remove(entry.ChatID, entry.UserID)
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(&AuditRecord{
		ChatID:    entry.ChatID,
		UserID:    entry.UserID,
		UserName:  entry.UserName,
		Question:  entry.Presented.Question,
		Outcome:   string(outcome),
		DecidedBy: decidedBy,
		CreatedAt: entry.CreatedAt,
		DecidedAt: time.Now(),
	}); err != nil {
		logWarn("Audit: failed to record verification for user %d at group %d: %v", entry.UserID, entry.ChatID, err)
	}
}

// isAdmin reports whether the user may override verifications
func (e *Engine) isAdmin(chatID, userID int64) bool {
	if e.cfg.SuperAdmin != 0 && userID == e.cfg.SuperAdmin {
		return true
	}
	ok, err := e.chat.IsAdmin(chatID, userID)
	if err != nil {
		logWarn("Admin check: failed for user %d at group %d: %v", userID, chatID, err)
		return false
	}
	return ok
}

func (e *Engine) answerCallback(callbackID, text string, alert bool) {
	if callbackID == "" {
		return
	}
	if err := e.chat.AnswerCallback(callbackID, text, alert); err != nil {
		logWarn("Callback: failed to answer %s: %v", callbackID, err)
	}
}

func (e *Engine) editPrompt(entry *VerificationEntry, template string, vars map[string]string) {
	text := Expand(template, vars)
	if ok, err := e.chat.Edit(entry.ChatID, entry.PromptMessageID, text, SendOptions{}); err != nil || !ok {
		logWarn("Edit: failed to update prompt %d at group %d: %v", entry.PromptMessageID, entry.ChatID, err)
	}
}
