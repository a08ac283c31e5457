package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/econoracle/internal/classifier"
	"github.com/rewired-gh/econoracle/internal/models"
)

// Message is a channel-neutral rendering: a title and body lines.
type Message struct {
	Title string
	Lines []string
}

// Plain joins the message as plain text.
func (m Message) Plain() string {
	var b strings.Builder
	b.WriteString(m.Title)
	for _, line := range m.Lines {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}

// MarkdownV2 renders the message for Telegram with a bold title.
func (m Message) MarkdownV2() string {
	var b strings.Builder
	b.WriteByte('*')
	b.WriteString(escapeMarkdownV2(m.Title))
	b.WriteByte('*')
	for _, line := range m.Lines {
		b.WriteByte('\n')
		b.WriteString(escapeMarkdownV2(line))
	}
	return b.String()
}

var kindTitles = map[models.NotificationKind]string{
	models.KindNewEvent:           "🆕 New event",
	models.KindForecastChange:     "📊 Forecast revised",
	models.KindActualAnnouncement: "📢 Actual released",
	models.KindAIReport:           "🤖 AI report",
}

// FormatMessage renders n relative to now.
func FormatMessage(n Notification, now time.Time) Message {
	e := n.Event
	title, ok := kindTitles[n.Decision.Kind]
	if !ok {
		title = "🔔 " + string(n.Decision.Kind)
	}
	country := classifier.NormalizeCountry(e.Country)
	msg := Message{Title: fmt.Sprintf("%s: %s (%s)", title, e.Name, country)}

	msg.Lines = append(msg.Lines, fmt.Sprintf("🗓 %s (%s)",
		e.ScheduledAt.UTC().Format("2006-01-02 15:04 UTC"),
		humanize.RelTime(e.ScheduledAt, now, "ago", "from now")))

	info := fmt.Sprintf("Importance: %s", e.Importance)
	if c := n.Classification; c != nil {
		info += fmt.Sprintf(" · Category: %s · Impact: %s", c.Category, c.Impact)
	}
	msg.Lines = append(msg.Lines, info)

	switch n.Decision.Kind {
	case models.KindForecastChange:
		if c := n.Change; c != nil {
			line := fmt.Sprintf("Forecast %s → %s", formatValue(c.OldForecast, e.Unit), formatValue(c.NewForecast, e.Unit))
			if c.ChangePercentage.Valid {
				line += fmt.Sprintf(" (%s)", formatSignedPct(c.ChangePercentage.Decimal))
			}
			msg.Lines = append(msg.Lines, line)
		}

	case models.KindActualAnnouncement:
		if s := n.Surprise; s != nil {
			line := fmt.Sprintf("Actual %s vs forecast %s",
				formatValue(decimal.NewNullDecimal(s.Actual), e.Unit),
				formatValue(decimal.NewNullDecimal(s.Forecast), e.Unit))
			if s.SurprisePercentage.Valid {
				line += fmt.Sprintf(": %s (%s surprise, %s impact)",
					formatSignedPct(s.SurprisePercentage.Decimal), s.Magnitude, s.MarketImpact)
			}
			msg.Lines = append(msg.Lines, line)
		}

	case models.KindAIReport:
		if n.Summary != "" {
			msg.Lines = append(msg.Lines, n.Summary)
		}
		msg.Lines = append(msg.Lines, fmt.Sprintf("Confidence: %.0f%%", n.Confidence*100))

	default:
		msg.Lines = append(msg.Lines, fmt.Sprintf("Forecast: %s · Previous: %s",
			formatValue(e.Forecast, e.Unit), formatValue(e.Previous, e.Unit)))
	}

	return msg
}

// formatValue renders a calendar figure with thousands separators.
func formatValue(v decimal.NullDecimal, unit string) string {
	if !v.Valid {
		return "n/a"
	}
	s := humanize.CommafWithDigits(v.Decimal.InexactFloat64(), 4)
	if unit == "%" {
		return s + "%"
	}
	if unit != "" {
		return s + " " + unit
	}
	return s
}

func formatSignedPct(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.Sign() > 0 {
		s = "+" + s
	}
	return s + "%"
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if hours := int(d.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

// FormatCycleError renders the notice sent when a detection cycle first fails.
func FormatCycleError(job string, err error) string {
	return fmt.Sprintf("⚠️ %s cycle failed: %v", job, err)
}

// FormatRecovery renders the notice sent when a job succeeds after failures.
func FormatRecovery(job string, failures int, downtime time.Duration) string {
	return fmt.Sprintf("✅ %s cycle recovered after %d failed %s (%s)",
		job, failures, pluralize(failures, "run", "runs"), formatDuration(downtime))
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
