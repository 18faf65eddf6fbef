package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gigboard/internal/config"
	"gigboard/internal/gateway"
	"gigboard/internal/model"
	"gigboard/internal/scheduler"
	"gigboard/internal/snapshot"
	"gigboard/internal/store"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Backend is the listing API the bot talks to.
type Backend interface {
	store.Gateway
	Get(ctx context.Context, id int64) (*model.Listing, error)
	Categories(ctx context.Context) ([]model.Category, error)
}

var _ Backend = (*gateway.Client)(nil)

// Deps are the collaborators of a Bot. Snapshots and Scheduler may be nil.
type Deps struct {
	Backend   Backend
	Snapshots snapshot.Store
	Scheduler *scheduler.Scheduler
}

// Bot is the Telegram front end: every chat gets its own listing views.
type Bot struct {
	api   telegramAPI
	deps  Deps
	cfg   *config.Config
	log   *slog.Logger
	pause time.Duration

	mu    sync.Mutex
	chats map[int64]*chat
}

// New creates a Bot with the given Telegram token.
func New(token string, deps Deps, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, deps, cfg, log), nil
}

func newBot(api telegramAPI, deps Deps, cfg *config.Config, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		api:   api,
		deps:  deps,
		cfg:   cfg,
		log:   log,
		pause: 50 * time.Millisecond,
		chats: make(map[int64]*chat),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.closeAll()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.ack(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Send(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "gigs":
		b.handleOpen(ctx, chatID, modePublic)
	case "mine":
		b.handleOpen(ctx, chatID, modeMine)
	case "gig":
		b.handleShow(ctx, chatID, args)
	case "apply":
		b.handleApply(ctx, chatID, args)
	case "search":
		b.handleSearch(ctx, chatID, args)
	case "category":
		b.handleCategory(ctx, chatID, args)
	case "categories":
		b.handleCategories(ctx, chatID)
	case "price":
		b.handlePrice(ctx, chatID, args)
	case "period":
		b.handlePeriod(ctx, chatID, args)
	case "tab":
		b.handleTab(ctx, chatID, args)
	case "near":
		b.handleNear(ctx, chatID, args)
	case "online", "onsite", "anywhere":
		b.handleLocationType(ctx, chatID, cmd)
	case "page":
		b.handlePage(ctx, chatID, args)
	case "reset":
		b.handleReset(ctx, chatID)
	case "new":
		b.handleNew(ctx, chatID, args)
	case "edit":
		b.handleEdit(ctx, chatID, args)
	case "publish":
		b.handleAction(ctx, chatID, args, model.ActionPublish)
	case "unpublish":
		b.handleAction(ctx, chatID, args, model.ActionUnpublish)
	case "delete":
		b.handleAction(ctx, chatID, args, model.ActionDelete)
	case "counts":
		b.handleCounts(ctx, chatID)
	case "watch":
		b.handleWatch(ctx, chatID)
	case "unwatch":
		b.handleUnwatch(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
