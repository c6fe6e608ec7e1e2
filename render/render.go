// Package render turns message records into conversation lines.
//
// Formatting is kept separate from the terminal widgets so it can be
// exercised without a screen: the ui package only appends Line.String()
// to the conversation pane and scrolls it to the end.
package render

import (
	"fmt"
	"strings"
	"time"

	"parley/models"

	"github.com/rivo/tview"
)

// SelfLabel replaces the sender name on messages written by the local user.
const SelfLabel = "You"

// Timestamp layouts accepted from the backend, tried in order. Naive
// layouts carry no zone and are read as wall clock time in the viewer's zone.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Line is the view model of one rendered message.
type Line struct {
	Label string // "You" or the sender's name
	Text  string // escaped for tview markup
	Time  string // HH:MM in the viewer's zone
	Sent  bool
}

// Format builds the view model of msg as seen by self.
func Format(msg models.Message, self models.Identity, loc *time.Location) Line {
	sent := msg.SenderID == self.ID
	label := msg.SenderName
	if sent {
		label = SelfLabel
	}
	if label == "" {
		label = fmt.Sprintf("#%d", msg.SenderID)
	}
	return Line{
		Label: tview.Escape(label),
		Text:  tview.Escape(msg.Text),
		Time:  ClockTime(msg.CreatedAt, loc),
		Sent:  sent,
	}
}

// Batch formats msgs in the order given.
func Batch(msgs []models.Message, self models.Identity, loc *time.Location) []Line {
	lines := make([]Line, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, Format(m, self, loc))
	}
	return lines
}

// String renders the line as tview markup: a coloured header, the text and
// the time.
func (l Line) String() string {
	color := "yellow"
	arrow := "←"
	if l.Sent {
		color = "white"
		arrow = "→"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s::b]%s %s[-::-]\n", color, arrow, l.Label)
	fmt.Fprintf(&sb, "  %s\n", l.Text)
	fmt.Fprintf(&sb, "  [gray]%s[-]\n", l.Time)
	return sb.String()
}

// ParseTime parses a backend timestamp. Stamps without a zone are taken
// to be in loc.
func ParseTime(ts string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, ts, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ClockTime formats ts as hour:minute in loc. Unparsable input is returned
// escaped but otherwise unchanged.
func ClockTime(ts string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t, err := ParseTime(ts, loc)
	if err != nil {
		return tview.Escape(ts)
	}
	return t.In(loc).Format("15:04")
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "just now"
	}
	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	seconds = seconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
