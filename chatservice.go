package gatekeeper

import "time"

// Button is one inline keyboard button: a label and the opaque callback
// data it sends back
type Button struct {
	Label string
	Data  string
}

// SendOptions carries the presentation extras of a message
type SendOptions struct {
	Buttons [][]Button
}

// ChatService is the external messaging transport the engine acts through.
// Moderation methods return (false, nil) when the API refused the action
// and (false, err) on transport failure; the engine treats both the same
// and never assumes success.
type ChatService interface {
	Restrict(chatID, userID int64) (bool, error)
	Unrestrict(chatID, userID int64) (bool, error)
	RemoveMember(chatID, userID int64, until time.Duration) (bool, error)
	DeleteMessage(chatID int64, messageID int) (bool, error)
	Send(chatID int64, text string, opts SendOptions) (int, error)
	Edit(chatID int64, messageID int, text string, opts SendOptions) (bool, error)
	IsAdmin(chatID, userID int64) (bool, error)
	AdminNames(chatID int64) ([]string, error)
	SendPoll(chatID int64, question string, options []string, correct int, openSeconds int) error
	AnswerCallback(callbackID, text string, alert bool) error
}
