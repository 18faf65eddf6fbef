package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gigboard/internal/filter"
	"gigboard/internal/model"
	"gigboard/internal/view"
)

// maxDescription bounds descriptions in notifications.
const maxDescription = 300

// FormatNotification formats a newly posted listing as a Telegram message.
func FormatNotification(l model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New gig #%d: %s\n", l.ID, l.Title)
	b.WriteString(summary(l))
	if d := strings.TrimSpace(l.Description); d != "" {
		b.WriteString("\n\n")
		b.WriteString(truncate(d, maxDescription))
	}
	return b.String()
}

// FormatListing formats the details of a single listing.
func FormatListing(l model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", l.ID, l.Title, l.Status.Label())
	fmt.Fprintf(&b, "Budget: %s per %s\n", l.Budget, l.BudgetPeriod.Unit())
	if l.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", l.Location)
	}
	if name := l.CategoryName(); name != "" {
		fmt.Fprintf(&b, "Category: %s\n", name)
	}
	if l.Owner != nil && l.Owner.Name != "" {
		fmt.Fprintf(&b, "Posted by: %s\n", l.Owner.Name)
	}
	if !l.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Posted: %s\n", l.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if l.ApplicationCount > 0 {
		fmt.Fprintf(&b, "Applications: %d\n", l.ApplicationCount)
	}
	if d := strings.TrimSpace(l.Description); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCategories formats the category list. A non-zero savedAt marks a
// list served from the snapshot because the backend was unreachable.
func FormatCategories(cats []model.Category, savedAt time.Time) string {
	if len(cats) == 0 {
		return "No categories available."
	}
	var b strings.Builder
	b.WriteString("Categories:\n")
	for _, c := range cats {
		fmt.Fprintf(&b, "\n#%d %s", c.ID, c.Name)
	}
	b.WriteString("\n\nUse /category <id> to filter.")
	if !savedAt.IsZero() {
		fmt.Fprintf(&b, "\n(saved list from %s, the server could not be reached)", savedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

// FormatPage renders a listing page as message text.
func FormatPage(p view.Page, m mode) string {
	var b strings.Builder

	b.WriteString(m.title())
	for _, t := range p.Tabs {
		if t.Active {
			fmt.Fprintf(&b, " - %s", t.Label)
			if t.Known {
				fmt.Fprintf(&b, " (%d)", t.Count)
			}
		}
	}
	b.WriteString("\n")
	if desc := describeFilter(p.Filter); desc != "" {
		fmt.Fprintf(&b, "Filters: %s\n", desc)
	}

	switch {
	case p.Loading:
		b.WriteString("Loading...\n")
	case p.FromSnapshot:
		b.WriteString("Showing saved results, refreshing...\n")
	}
	if p.Truncated {
		fmt.Fprintf(&b, "Showing the first %d of %d gigs. Narrow your filters to see the rest.\n", p.Fetched, p.TotalItems)
	}
	if p.Err != nil && !p.Empty {
		fmt.Fprintf(&b, "Could not refresh: %s\n", p.ErrMessage)
	}

	if p.Featured && len(p.FeaturedCards) > 0 && m == modePublic {
		b.WriteString("\nFeatured:\n")
		for _, c := range p.FeaturedCards {
			fmt.Fprintf(&b, "* #%d %s, %s\n", c.Listing.ID, c.Listing.Title, price(c.Listing))
		}
	}
	if len(p.NearMe) > 0 {
		fmt.Fprintf(&b, "\nNear %s:\n", p.Filter.Location)
		for _, c := range p.NearMe {
			fmt.Fprintf(&b, "* #%d %s\n", c.Listing.ID, c.Listing.Title)
		}
	}

	if p.Empty {
		fmt.Fprintf(&b, "\n%s", p.EmptyMessage)
		if p.Err != nil {
			fmt.Fprintf(&b, " %s", p.ErrMessage)
		}
		return b.String()
	}

	for _, c := range p.Cards {
		b.WriteString("\n")
		b.WriteString(formatCard(c, m))
	}

	b.WriteString("\n")
	if p.ShowPager {
		fmt.Fprintf(&b, "Page %d of %d, ", p.Page, p.TotalPages)
	}
	b.WriteString(plural(p.Total, "gig"))
	if m == modeMine {
		b.WriteString(", " + plural(p.Applications, "application"))
	}
	return b.String()
}

func formatCard(c view.Card, m mode) string {
	l := c.Listing
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", l.ID, l.Title, l.Status.Label())
	fmt.Fprintf(&b, "   %s\n", summary(l))
	if m == modeMine {
		fmt.Fprintf(&b, "   %s\n", plural(l.ApplicationCount, "application"))
	}
	return b.String()
}

// summary is the one-line budget, location and category of l.
func summary(l model.Listing) string {
	parts := []string{price(l)}
	if l.Location != "" {
		parts = append(parts, l.Location)
	}
	if name := l.CategoryName(); name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, " | ")
}

func price(l model.Listing) string {
	if l.BudgetPeriod == "" {
		return l.Budget.String()
	}
	return l.Budget.String() + " / " + l.BudgetPeriod.Unit()
}

func describeFilter(f filter.State) string {
	var parts []string
	if f.Search != "" {
		parts = append(parts, fmt.Sprintf("search %q", f.Search))
	}
	if f.CategoryID != 0 {
		parts = append(parts, fmt.Sprintf("category #%d", f.CategoryID))
	}
	if !f.Price.IsDefault() {
		parts = append(parts, fmt.Sprintf("budget %s-%s", model.Amount(f.Price.Min), model.Amount(f.Price.Max)))
	}
	if f.BudgetPeriod != "" {
		parts = append(parts, string(f.BudgetPeriod))
	}
	switch f.LocationType {
	case filter.LocationOnline:
		parts = append(parts, "online")
	case filter.LocationOnsite:
		parts = append(parts, "on-site")
	}
	if f.Location != "" {
		parts = append(parts, "near "+f.Location)
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

// pageKeyboard builds the tab, card action and pager buttons of a page.
func pageKeyboard(p view.Page, m mode) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	var tabRow []tgbotapi.InlineKeyboardButton
	for i, t := range p.Tabs {
		label := t.Label
		if t.Known {
			label = fmt.Sprintf("%s (%d)", label, t.Count)
		}
		if t.Active {
			label = "> " + label
		}
		tabRow = append(tabRow, button(label, callback{Mode: m, Verb: "tab", Arg: string(t.Tab)}))
		if len(tabRow) == 3 || i == len(p.Tabs)-1 {
			rows = append(rows, tabRow)
			tabRow = nil
		}
	}

	if m == modeMine {
		for _, c := range p.Cards {
			var row []tgbotapi.InlineKeyboardButton
			id := strconv.FormatInt(c.Listing.ID, 10)
			for _, a := range c.Actions {
				switch a {
				case model.ActionPublish:
					row = append(row, button("Publish #"+id, callback{Mode: m, Verb: "publish", Arg: id}))
				case model.ActionUnpublish:
					row = append(row, button("Unpublish #"+id, callback{Mode: m, Verb: "unpublish", Arg: id}))
				case model.ActionDelete:
					row = append(row, button("Delete #"+id, callback{Mode: m, Verb: "confirm", Arg: id}))
				}
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
		}
	}

	if p.ShowPager {
		var row []tgbotapi.InlineKeyboardButton
		if p.HasPrev {
			row = append(row, button("< Prev", callback{Mode: m, Verb: "page", Arg: strconv.Itoa(p.Page - 1)}))
		}
		row = append(row, button(fmt.Sprintf("%d/%d", p.Page, p.TotalPages), callback{Mode: m, Verb: "noop", Arg: "0"}))
		if p.HasNext {
			row = append(row, button("Next >", callback{Mode: m, Verb: "page", Arg: strconv.Itoa(p.Page + 1)}))
		}
		rows = append(rows, row)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func button(label string, cb callback) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, cb.String())
}
