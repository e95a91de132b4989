package gatekeeper

import "time"

// Actions is the moderation façade over the ChatService. Every call logs
// its boolean outcome; a transport error and an API refusal are the same
// failure and surface as false.
type Actions struct {
	chat    ChatService
	banTime time.Duration
}

// NewActions creates the moderation façade
func NewActions(chat ChatService, banTime time.Duration) *Actions {
	return &Actions{chat: chat, banTime: banTime}
}

// Restrict revokes a member's right to send messages
func (a *Actions) Restrict(chatID, userID int64) bool {
	ok, err := a.chat.Restrict(chatID, userID)
	return a.report("restrict", chatID, userID, ok, err)
}

// Restore gives a member back full send permissions
func (a *Actions) Restore(chatID, userID int64) bool {
	ok, err := a.chat.Unrestrict(chatID, userID)
	return a.report("restore", chatID, userID, ok, err)
}

// Kick removes a member for the configured ban time
func (a *Actions) Kick(chatID, userID int64) bool {
	ok, err := a.chat.RemoveMember(chatID, userID, a.banTime)
	return a.report("kick", chatID, userID, ok, err)
}

// Clean deletes a message. Deleting an already-deleted message reports
// failure from the transport and is harmless.
func (a *Actions) Clean(chatID int64, messageID int) bool {
	ok, err := a.chat.DeleteMessage(chatID, messageID)
	if err != nil {
		logWarn("Job clean: failed to delete message %d at group %d: %v", messageID, chatID, err)
		return false
	}
	if !ok {
		logWarn("Job clean: no permission to delete message %d at group %d", messageID, chatID)
		return false
	}
	logInfo("Job clean: deleted message %d at group %d", messageID, chatID)
	return true
}

func (a *Actions) report(action string, chatID, userID int64, ok bool, err error) bool {
	if err != nil {
		logWarn("Job %s: failed for user %d at group %d: %v", action, userID, chatID, err)
		return false
	}
	if !ok {
		logWarn("Job %s: no permission for user %d at group %d", action, userID, chatID)
		return false
	}
	logInfo("Job %s: succeeded for user %d at group %d", action, userID, chatID)
	return true
}
