package gatekeeper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramService implements ChatService over the Telegram Bot API
type TelegramService struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramService wraps a connected bot
func NewTelegramService(bot *tgbotapi.BotAPI) *TelegramService {
	return &TelegramService{bot: bot}
}

// fullPermissions restores everything a regular member may do
var fullPermissions = tgbotapi.ChatPermissions{
	CanSendMessages:       true,
	CanSendMediaMessages:  true,
	CanSendPolls:          true,
	CanSendOtherMessages:  true,
	CanAddWebPagePreviews: true,
	CanChangeInfo:         true,
	CanInviteUsers:        true,
	CanPinMessages:        true,
}

// Restrict revokes a member's send permission
func (t *TelegramService) Restrict(chatID, userID int64) (bool, error) {
	resp, err := t.bot.Request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions:      &tgbotapi.ChatPermissions{CanSendMessages: false},
	})
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Unrestrict restores full member permissions
func (t *TelegramService) Unrestrict(chatID, userID int64) (bool, error) {
	perms := fullPermissions
	resp, err := t.bot.Request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions:      &perms,
	})
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// RemoveMember bans a member until now+until, after which they may rejoin
func (t *TelegramService) RemoveMember(chatID, userID int64, until time.Duration) (bool, error) {
	resp, err := t.bot.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        time.Now().Add(until).Unix(),
	})
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// DeleteMessage deletes a message
func (t *TelegramService) DeleteMessage(chatID int64, messageID int) (bool, error) {
	resp, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Send posts a message, optionally with an inline keyboard, and returns
// the new message id
func (t *TelegramService) Send(chatID int64, text string, opts SendOptions) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(opts.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(opts.Buttons)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

// Edit rewrites a message's text, dropping any keyboard unless new buttons
// are given
func (t *TelegramService) Edit(chatID int64, messageID int, text string, opts SendOptions) (bool, error) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if len(opts.Buttons) > 0 {
		markup := keyboard(opts.Buttons)
		edit.ReplyMarkup = &markup
	}
	resp, err := t.bot.Request(edit)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// IsAdmin reports whether the user administers the chat
func (t *TelegramService) IsAdmin(chatID, userID int64) (bool, error) {
	admins, err := t.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return false, err
	}
	for _, admin := range admins {
		if admin.User != nil && admin.User.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// AdminNames returns the display names of the chat's administrators
func (t *TelegramService) AdminNames(chatID int64) ([]string, error) {
	admins, err := t.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(admins))
	for _, admin := range admins {
		if admin.User != nil {
			names = append(names, DisplayName(admin.User))
		}
	}
	return names, nil
}

// SendPoll posts a quiz-type poll
func (t *TelegramService) SendPoll(chatID int64, question string, options []string, correct int, openSeconds int) error {
	poll := tgbotapi.NewPoll(chatID, question, options...)
	poll.Type = "quiz"
	poll.CorrectOptionID = int64(correct)
	poll.IsAnonymous = false
	poll.OpenPeriod = openSeconds
	if _, err := t.bot.Send(poll); err != nil {
		return fmt.Errorf("failed to send poll: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press
func (t *TelegramService) AnswerCallback(callbackID, text string, alert bool) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	callback.ShowAlert = alert
	if _, err := t.bot.Request(callback); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

func keyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	keyboardRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		keyboardRows = append(keyboardRows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboardRows...)
}

// DisplayName picks a human-readable name for a user
func DisplayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return name
}

// JoinEvents extracts one event per non-bot member announced by a join
// message
func JoinEvents(msg *tgbotapi.Message) []JoinEvent {
	if msg == nil || len(msg.NewChatMembers) == 0 {
		return nil
	}
	events := make([]JoinEvent, 0, len(msg.NewChatMembers))
	for i := range msg.NewChatMembers {
		user := &msg.NewChatMembers[i]
		events = append(events, JoinEvent{
			ChatID:        msg.Chat.ID,
			UserID:        user.ID,
			UserName:      DisplayName(user),
			IsBot:         user.IsBot,
			JoinMessageID: msg.MessageID,
		})
	}
	return events
}

// DecodeCallback parses a callback query into its tagged event. Payloads
// are "challenge|<target>|<token>" and "admin|pass/kick|<target>".
func DecodeCallback(cq *tgbotapi.CallbackQuery) (interface{}, error) {
	if cq == nil || cq.Message == nil {
		return nil, fmt.Errorf("callback without message: %w", ErrNotFound)
	}
	parts := strings.Split(cq.Data, "|")
	VerboseLog("Parse callback: %v", parts)

	switch {
	case len(parts) == 3 && parts[0] == "challenge":
		target, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad challenge target %q: %w", parts[1], err)
		}
		return AnswerEvent{
			ChatID:          cq.Message.Chat.ID,
			ResponderID:     cq.From.ID,
			ResponderName:   DisplayName(cq.From),
			TargetUserID:    target,
			Token:           parts[2],
			PromptMessageID: cq.Message.MessageID,
			CallbackID:      cq.ID,
		}, nil

	case len(parts) == 3 && parts[0] == "admin":
		target, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad admin target %q: %w", parts[2], err)
		}
		return AdminEvent{
			ChatID:          cq.Message.Chat.ID,
			ResponderID:     cq.From.ID,
			ResponderName:   DisplayName(cq.From),
			TargetUserID:    target,
			Pass:            parts[1] == "pass",
			PromptMessageID: cq.Message.MessageID,
			CallbackID:      cq.ID,
		}, nil
	}

	return nil, fmt.Errorf("unrecognized callback %q", cq.Data)
}
