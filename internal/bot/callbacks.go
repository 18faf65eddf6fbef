package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gigboard/internal/model"
	"gigboard/internal/view"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	b.ack(cb.ID, "")

	data, err := parseCallback(cb.Data)
	if err != nil {
		b.log.Debug("ignore callback", "data", cb.Data, "error", err)
		return
	}

	b.log.Info("callback",
		"verb", data.Verb,
		"arg", data.Arg,
		"mode", data.Mode,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	if data.Verb == "noop" {
		return
	}
	s, err := b.session(ctx, chatID, data.Mode)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}

	switch data.Verb {
	case "page":
		n, err := strconv.Atoi(data.Arg)
		if err != nil {
			return
		}
		s.hold()
		s.view.GoToPage(n)
		s.release()
		b.editPage(s, msgID)
	case "tab":
		t, err := view.ParseTab(data.Arg)
		if err != nil {
			return
		}
		s.hold()
		s.view.SelectTab(ctx, t)
		s.release()
		b.editPage(s, msgID)
	case "publish", "unpublish":
		id, err := strconv.ParseInt(data.Arg, 10, 64)
		if err != nil {
			return
		}
		s.hold()
		_, err = s.view.Act(ctx, id, model.Action(data.Verb))
		s.release()
		if err != nil {
			b.reply(chatID, errorText(err))
		}
		b.editPage(s, msgID)
	case "confirm":
		id, err := strconv.ParseInt(data.Arg, 10, 64)
		if err != nil {
			return
		}
		l, ok := s.view.Store().Get(id)
		if !ok {
			b.reply(chatID, fmt.Sprintf("Gig #%d not found.", id))
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Delete #%d \"%s\"? This cannot be undone.", id, l.Title))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				button("Yes, delete", callback{Mode: data.Mode, Verb: "delete", Arg: data.Arg}),
				button("Cancel", callback{Mode: data.Mode, Verb: "cancel", Arg: data.Arg}),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send delete confirmation", "error", err)
		}
	case "delete":
		id, err := strconv.ParseInt(data.Arg, 10, 64)
		if err != nil {
			return
		}
		s.hold()
		_, err = s.view.Act(ctx, id, model.ActionDelete)
		s.release()
		text := actionDone(id, model.ActionDelete)
		if err != nil {
			text = errorText(err)
		}
		b.editText(chatID, msgID, text)
		b.refreshPage(s)
	case "cancel":
		b.editText(chatID, msgID, "Cancelled.")
	}
}

// editText replaces a plain message, dropping its buttons.
func (b *Bot) editText(chatID int64, msgID int, text string) {
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, msgID, text)); err != nil {
		b.log.Error("edit message", "chat_id", chatID, "error", err)
	}
}

// refreshPage redraws the session's last page message, if any.
func (b *Bot) refreshPage(s *session) {
	s.mu.Lock()
	msgID := s.msgID
	s.mu.Unlock()
	if msgID != 0 {
		b.editPage(s, msgID)
	}
}
