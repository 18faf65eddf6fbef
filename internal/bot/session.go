package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gigboard/internal/gateway"
	"gigboard/internal/model"
	"gigboard/internal/store"
	"gigboard/internal/view"
)

// mode selects which listing set a session shows.
type mode string

const (
	modePublic mode = "gigs"
	modeMine   mode = "mine"
)

func parseMode(s string) (mode, bool) {
	switch mode(s) {
	case modePublic, modeMine:
		return mode(s), true
	}
	return "", false
}

func (m mode) title() string {
	if m == modeMine {
		return "My gigs"
	}
	return "Gigs"
}

const errNoOwner = usageError("Your gigs are not available: OWNER_ID is not configured.")

// maxNotify caps the new-listing messages sent after one refresh.
const maxNotify = 5

// chat is the state of one Telegram chat.
type chat struct {
	mu       sync.Mutex
	active   mode
	sessions map[mode]*session
	watching *session
}

// session is one listing view shown in one chat. The page message is
// edited in place when the view changes outside of a command.
type session struct {
	chatID int64
	mode   mode
	view   *view.View
	remove func()

	mu      sync.Mutex
	msgID   int
	last    string
	holding int
}

func (s *session) hold() {
	s.mu.Lock()
	s.holding++
	s.mu.Unlock()
}

func (s *session) release() {
	s.mu.Lock()
	s.holding--
	s.mu.Unlock()
}

func (b *Bot) chat(chatID int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[chatID]
	if !ok {
		c = &chat{active: modePublic, sessions: make(map[mode]*session)}
		b.chats[chatID] = c
	}
	return c
}

func (b *Bot) scope(m mode) (store.Scope, error) {
	switch m {
	case modeMine:
		if b.cfg.OwnerID == 0 {
			return store.Scope{}, errNoOwner
		}
		return store.Scope{
			Name:      "mine",
			OwnerID:   b.cfg.OwnerID,
			Include:   []string{"applications"},
			FetchSize: b.cfg.FetchSize,
			MaxPages:  b.cfg.MaxPages,
		}, nil
	default:
		return store.Scope{
			Name:           "public",
			FetchSize:      b.cfg.FetchSize,
			MaxPages:       b.cfg.MaxPages,
			IncludePending: b.cfg.IncludePending,
		}, nil
	}
}

// session returns the chat's view for m, creating and loading it on first
// use, and makes it the chat's active view.
func (b *Bot) session(ctx context.Context, chatID int64, m mode) (*session, error) {
	c := b.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[m]; ok {
		c.active = m
		return s, nil
	}

	scope, err := b.scope(m)
	if err != nil {
		return nil, err
	}
	st := store.New(b.deps.Backend, scope, b.deps.Snapshots, b.log.With("chat_id", chatID))
	v := view.New(st, view.Options{
		PageSize: b.cfg.PageSize,
		Debounce: b.cfg.SearchDebounce,
		Logger:   b.log.With("chat_id", chatID),
	})
	s := &session{chatID: chatID, mode: m, view: v, remove: func() {}}
	v.OnChange(func(p view.Page) { b.onChange(s, p) })
	if b.deps.Scheduler != nil {
		s.remove = b.deps.Scheduler.Add(st)
	}

	s.hold()
	v.Mount(ctx)
	s.release()

	c.sessions[m] = s
	c.active = m
	b.log.Info("session opened", "chat_id", chatID, "mode", m)
	return s, nil
}

// current returns the chat's active view.
func (b *Bot) current(ctx context.Context, chatID int64) (*session, error) {
	c := b.chat(chatID)
	c.mu.Lock()
	m := c.active
	c.mu.Unlock()
	return b.session(ctx, chatID, m)
}

// withView runs fn against the chat's active view and then sends the page.
// Live edits are suppressed while fn runs.
func (b *Bot) withView(ctx context.Context, chatID int64, fn func(s *session) error) {
	s, err := b.current(ctx, chatID)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.run(s, chatID, func() error { return fn(s) })
}

func (b *Bot) run(s *session, chatID int64, fn func() error) {
	s.hold()
	defer s.release()
	if fn != nil {
		if err := fn(); err != nil {
			b.reply(chatID, errorText(err))
			return
		}
	}
	b.showPage(s)
}

// showPage sends the rendered page as a new message.
func (b *Bot) showPage(s *session) {
	p := s.view.Render()
	text := FormatPage(p, s.mode)
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = pageKeyboard(p, s.mode)
	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Error("send page", "chat_id", s.chatID, "error", err)
		return
	}
	s.mu.Lock()
	s.msgID = sent.MessageID
	s.last = text
	s.mu.Unlock()
}

// editPage replaces the text of msgID with the rendered page.
func (b *Bot) editPage(s *session, msgID int) {
	b.edit(s, msgID, s.view.Render())
}

func (b *Bot) edit(s *session, msgID int, p view.Page) {
	text := FormatPage(p, s.mode)
	s.mu.Lock()
	if msgID == s.msgID && text == s.last {
		s.mu.Unlock()
		return
	}
	s.msgID = msgID
	s.last = text
	s.mu.Unlock()

	edit := tgbotapi.NewEditMessageText(s.chatID, msgID, text)
	edit.DisableWebPagePreview = true
	kb := pageKeyboard(p, s.mode)
	edit.ReplyMarkup = &kb
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("edit page", "chat_id", s.chatID, "error", err)
	}
}

// onChange keeps the last page message current after background loads.
func (b *Bot) onChange(s *session, p view.Page) {
	s.mu.Lock()
	idle := s.holding == 0 && s.msgID != 0
	msgID := s.msgID
	s.mu.Unlock()
	if idle {
		b.edit(s, msgID, p)
	}
}

// notifyNew sends a message per new listing, at most maxNotify of them.
func (b *Bot) notifyNew(chatID int64, fresh []model.Listing) {
	for i, l := range fresh {
		if i == maxNotify {
			b.SendMessage(chatID, fmt.Sprintf("...and %d more new gigs. Use /gigs to browse them.", len(fresh)-maxNotify))
			return
		}
		b.SendMessage(chatID, FormatNotification(l))
		if b.pause > 0 {
			// Telegram allows about 20 messages per second.
			time.Sleep(b.pause)
		}
	}
}

func (b *Bot) closeAll() {
	b.mu.Lock()
	chats := make([]*chat, 0, len(b.chats))
	for _, c := range b.chats {
		chats = append(chats, c)
	}
	b.mu.Unlock()

	for _, c := range chats {
		c.mu.Lock()
		for _, s := range c.sessions {
			s.view.Close()
			s.remove()
		}
		c.mu.Unlock()
	}
}

// usageError is shown to the user verbatim.
type usageError string

func (e usageError) Error() string { return string(e) }

func errorText(err error) string {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return ue.Error()
	case errors.Is(err, view.ErrBusy):
		return "Still saving your previous change. Try again in a moment."
	}
	return gateway.UserMessage(err)
}
