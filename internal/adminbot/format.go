package adminbot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"likevault/internal/store"
)

const (
	accessDenied   = "❌ Access denied"
	callbackPrefix = "stats:"
	helpText       = "👋 likevault archiver is running\n\nCommands:\n/stats - delivery statistics\n/status - pipeline status"
)

var periodIcons = map[store.Period]string{
	store.PeriodAll:   "📊",
	store.PeriodMonth: "📈",
	store.PeriodWeek:  "📉",
	store.PeriodToday: "📅",
}

var titleCaser = cases.Title(language.English)

// PeriodLabel is the human name of a statistics window.
func PeriodLabel(p store.Period) string {
	if p == store.PeriodAll {
		return "All time"
	}
	return titleCaser.String(string(p))
}

func periodKeyboard() tgbotapi.InlineKeyboardMarkup {
	periods := store.Periods()
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(periods))
	for _, p := range periods {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(periodIcons[p]+" "+PeriodLabel(p), callbackPrefix+string(p)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func parseCallback(data string) (store.Period, bool) {
	raw, ok := strings.CutPrefix(data, callbackPrefix)
	if !ok || raw == "" {
		return "", false
	}
	period, err := store.ParsePeriod(raw)
	if err != nil {
		return "", false
	}
	return period, true
}

func formatStats(stats store.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s %s</b>\n\n", periodIcons[stats.Period], PeriodLabel(stats.Period))
	fmt.Fprintf(&b, "📤 Posts delivered: <code>%s</code>\n", humanize.Comma(stats.PostsDelivered))
	fmt.Fprintf(&b, "🎬 Files delivered: <code>%s</code>\n", humanize.Comma(stats.FilesDelivered))
	fmt.Fprintf(&b, "💾 Data delivered: <code>%s</code>\n\n", humanize.IBytes(uint64(max(stats.BytesDelivered, 0))))
	fmt.Fprintf(&b, "❌ Failed posts: <code>%s</code>\n", humanize.Comma(stats.PostsFailed))
	fmt.Fprintf(&b, "⏭️ Skipped posts: <code>%s</code>\n", humanize.Comma(stats.PostsSkipped))
	fmt.Fprintf(&b, "🔁 Already seen: <code>%s</code>", humanize.Comma(stats.PostsSeen))
	return b.String()
}

func formatStatus(s Summary, now time.Time) string {
	var b strings.Builder
	if s.Running {
		b.WriteString("✅ likevault is running\n\n")
	} else {
		b.WriteString("⏸️ likevault is stopped\n\n")
	}
	b.WriteString("📊 Status:\n")
	fmt.Fprintf(&b, "• Disk usage: %s / %s\n",
		humanize.IBytes(uint64(max(s.DiskUsage, 0))), humanize.IBytes(uint64(max(s.DiskBudget, 0))))
	fmt.Fprintf(&b, "• Queue: %d tasks\n", s.QueueLength)
	fmt.Fprintf(&b, "• Workers: %d/%d busy\n", s.Active, s.Workers)
	if !s.LastFetch.IsZero() {
		fmt.Fprintf(&b, "• Last fetch: %s\n", humanize.RelTime(s.LastFetch, now, "ago", "from now"))
	}
	if !s.NextFetch.IsZero() {
		fmt.Fprintf(&b, "• Next fetch: %s\n", humanize.RelTime(s.NextFetch, now, "ago", "from now"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func escape(s string) string {
	return html.EscapeString(s)
}
