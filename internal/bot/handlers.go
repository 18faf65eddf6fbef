package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigboard/internal/filter"
	"gigboard/internal/model"
	"gigboard/internal/snapshot"
	"gigboard/internal/view"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Gigboard!

Browse tutoring gigs posted by learners and manage your own.

Quick start:
1. /gigs - browse gigs
2. /search <term> - find gigs by title, description or subject
3. /apply <id> <proposal> - send a proposal for an open gig
4. /mine - manage the gigs you posted

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Browsing:
/gigs - all gigs
/mine - your gigs
/gig <id> - gig details
/apply <id> <proposal> - apply to an open gig
/page <n> - go to page n
/watch - get a message when new gigs match your filters
/unwatch - stop those messages

Filters (apply to the current list):
/search <term> - search, empty to clear
/categories - list categories
/category <id|all> - filter by category
/price <min-max|any> - budget range
/period <hourly|daily|weekly|monthly|any> - budget period
/tab <all|pending|open|in_progress|completed|cancelled> - status
/near <location|off> - highlight gigs near a location
/online, /onsite, /anywhere - teaching mode
/reset - clear all filters

Your gigs:
/new title=...; budget=...; period=...; location=...; category=<id>; description=...
/edit <id> key=value; ...
/publish <id> - make a pending gig visible
/unpublish <id> - take an open gig back to pending
/delete <id> - delete a gig
/counts - refresh application counts`)
}

func (b *Bot) handleOpen(ctx context.Context, chatID int64, m mode) {
	s, err := b.session(ctx, chatID, m)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.run(s, chatID, nil)
}

func (b *Bot) handleShow(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /gig <id>")
		return
	}
	l, err := b.deps.Backend.Get(ctx, id)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.reply(chatID, FormatListing(*l))
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, args string) {
	b.withView(ctx, chatID, func(s *session) error {
		s.view.SetSearch(args)
		return nil
	})
}

func (b *Bot) handleCategory(ctx context.Context, chatID int64, args string) {
	id, err := ParseCategoryArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.withView(ctx, chatID, func(s *session) error {
		s.view.SetCategory(ctx, id)
		return nil
	})
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64) {
	cats, err := b.deps.Backend.Categories(ctx)
	if err == nil {
		b.reply(chatID, FormatCategories(cats, time.Time{}))
		return
	}
	b.log.Warn("list categories", "error", err)
	if b.deps.Snapshots != nil {
		snap, serr := b.deps.Snapshots.LoadCategories(ctx)
		if serr == nil {
			b.reply(chatID, FormatCategories(snap.Records, snap.SavedAt))
			return
		}
		if !errors.Is(serr, snapshot.ErrNotFound) {
			b.log.Warn("load category snapshot", "error", serr)
		}
	}
	b.reply(chatID, errorText(err))
}

func (b *Bot) handlePrice(ctx context.Context, chatID int64, args string) {
	r, err := ParsePrice(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.withView(ctx, chatID, func(s *session) error {
		s.view.SetPrice(ctx, r)
		return nil
	})
}

func (b *Bot) handlePeriod(ctx context.Context, chatID int64, args string) {
	p, err := ParsePeriodArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.withView(ctx, chatID, func(s *session) error {
		s.view.SetBudgetPeriod(ctx, p)
		return nil
	})
}

func (b *Bot) handleTab(ctx context.Context, chatID int64, args string) {
	t, err := view.ParseTab(args)
	if err != nil {
		b.reply(chatID, "Usage: /tab <all|pending|open|in_progress|completed|cancelled>")
		return
	}
	b.withView(ctx, chatID, func(s *session) error {
		s.view.SelectTab(ctx, t)
		return nil
	})
}

func (b *Bot) handleNear(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /near <location|off>")
		return
	}
	loc := args
	if loc == "off" {
		loc = ""
	}
	b.withView(ctx, chatID, func(s *session) error {
		s.view.SetLocation(ctx, loc)
		return nil
	})
}

func (b *Bot) handleLocationType(ctx context.Context, chatID int64, cmd string) {
	t := filter.LocationAll
	switch cmd {
	case "online":
		t = filter.LocationOnline
	case "onsite":
		t = filter.LocationOnsite
	}
	b.withView(ctx, chatID, func(s *session) error {
		s.view.SetLocationType(ctx, t)
		return nil
	})
}

func (b *Bot) handlePage(ctx context.Context, chatID int64, args string) {
	n, err := ParsePageArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.withView(ctx, chatID, func(s *session) error {
		s.view.GoToPage(n)
		return nil
	})
}

func (b *Bot) handleReset(ctx context.Context, chatID int64) {
	b.withView(ctx, chatID, func(s *session) error {
		s.view.Reset(ctx)
		return nil
	})
}

func (b *Bot) handleNew(ctx context.Context, chatID int64, args string) {
	d, err := ParseDraft(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	s, err := b.session(ctx, chatID, modeMine)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.run(s, chatID, func() error {
		l, err := s.view.Create(ctx, d)
		if err != nil {
			return fmt.Errorf("create gig: %w", err)
		}
		msg := fmt.Sprintf("Gig #%d \"%s\" created.", l.ID, l.Title)
		if l.Status == model.StatusPending {
			msg += fmt.Sprintf(" It stays pending until you /publish %d.", l.ID)
		}
		b.reply(chatID, msg)
		return nil
	})
}

func (b *Bot) handleEdit(ctx context.Context, chatID int64, args string) {
	id, p, err := ParseEditArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	s, err := b.session(ctx, chatID, modeMine)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.run(s, chatID, func() error {
		if _, err := s.view.Edit(ctx, id, p); err != nil {
			return err
		}
		b.reply(chatID, fmt.Sprintf("Gig #%d updated.", id))
		return nil
	})
}

func (b *Bot) handleAction(ctx context.Context, chatID int64, args string, a model.Action) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", a))
		return
	}
	s, err := b.session(ctx, chatID, modeMine)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.run(s, chatID, func() error {
		if _, err := s.view.Act(ctx, id, a); err != nil {
			return err
		}
		b.reply(chatID, actionDone(id, a))
		return nil
	})
}

func (b *Bot) handleApply(ctx context.Context, chatID int64, args string) {
	id, proposal, err := ParseApplyArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	s, err := b.session(ctx, chatID, modePublic)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.run(s, chatID, func() error {
		if err := s.view.Apply(ctx, id, proposal); err != nil {
			return fmt.Errorf("apply to gig %d: %w", id, err)
		}
		b.reply(chatID, fmt.Sprintf("Application sent for gig #%d.", id))
		return nil
	})
}

func actionDone(id int64, a model.Action) string {
	switch a {
	case model.ActionPublish:
		return fmt.Sprintf("Gig #%d published. It is now open to tutors.", id)
	case model.ActionUnpublish:
		return fmt.Sprintf("Gig #%d unpublished. It is pending again.", id)
	case model.ActionDelete:
		return fmt.Sprintf("Gig #%d deleted.", id)
	}
	return fmt.Sprintf("Gig #%d updated.", id)
}

func (b *Bot) handleCounts(ctx context.Context, chatID int64) {
	s, err := b.session(ctx, chatID, modeMine)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.run(s, chatID, func() error {
		if err := s.view.Store().FillApplicationCounts(ctx); err != nil {
			b.log.Warn("fill application counts", "chat_id", chatID, "error", err)
			b.reply(chatID, "Some application counts could not be loaded.")
		}
		return nil
	})
}

func (b *Bot) handleWatch(ctx context.Context, chatID int64) {
	if b.deps.Scheduler == nil {
		b.reply(chatID, "Background refresh is disabled, so watching is not available.")
		return
	}
	s, err := b.current(ctx, chatID)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}

	c := b.chat(chatID)
	c.mu.Lock()
	if prev := c.watching; prev != nil {
		prev.remove()
		prev.remove = b.deps.Scheduler.Add(prev.view.Store())
	}
	s.remove()
	s.remove = b.deps.Scheduler.Watch(s.view.Store(), func(fresh []model.Listing) {
		b.notifyNew(chatID, fresh)
	})
	c.watching = s
	c.mu.Unlock()

	b.log.Info("watch started", "chat_id", chatID, "mode", s.mode)
	b.reply(chatID, fmt.Sprintf("Watching %s with the current filters. New gigs will be sent here.", s.mode.title()))
}

func (b *Bot) handleUnwatch(chatID int64) {
	c := b.chat(chatID)
	c.mu.Lock()
	s := c.watching
	if s != nil {
		s.remove()
		s.remove = b.deps.Scheduler.Add(s.view.Store())
		c.watching = nil
	}
	c.mu.Unlock()

	if s == nil {
		b.reply(chatID, "You are not watching any gigs.")
		return
	}
	b.log.Info("watch stopped", "chat_id", chatID)
	b.reply(chatID, "Stopped watching.")
}
