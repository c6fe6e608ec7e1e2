package ui

import (
	"strings"

	"parley/render"
)

func (a *App) SetComposerEnabled(enabled bool) {
	a.queue(func() {
		a.setComposer(enabled)
	})
}

func (a *App) setComposer(enabled bool) {
	a.composerEnabled = enabled
	a.messageInput.SetDisabled(!enabled)
	if enabled {
		a.messageInput.SetFieldBackgroundColor(ColorFieldBg)
		a.messageInput.SetPlaceholder("")
		return
	}
	a.messageInput.SetFieldBackgroundColor(ColorBg)
	a.messageInput.SetPlaceholder("select a user first")
	a.messageInput.SetPlaceholderTextColor(ColorDisabled)
	if a.messageInput.HasFocus() {
		a.app.SetFocus(a.rosterList)
		a.statusBar.SetText(hintRoster)
	}
}

// ClearComposer empties the input. While the Enter handler is submitting it
// runs on the UI goroutine already, so the field is cleared before the next
// key event is handled.
func (a *App) ClearComposer() {
	if a.submitting.Load() {
		a.messageInput.SetText("")
		return
	}
	a.queue(func() {
		a.messageInput.SetText("")
	})
}

func (a *App) submit() {
	if a.ctrl == nil {
		return
	}
	a.submitting.Store(true)
	defer a.submitting.Store(false)
	if err := a.ctrl.SendMessage(a.messageInput.GetText()); err != nil {
		a.log.Debug().Err(err).Msg("send")
	}
}

// ReplaceConversation swaps the whole conversation pane for lines.
func (a *App) ReplaceConversation(lines []render.Line) {
	a.queue(func() {
		a.replaceConversation(lines)
	})
}

func (a *App) replaceConversation(lines []render.Line) {
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line.String())
	}
	a.chatView.SetText(sb.String())
	a.chatView.ScrollToEnd()
}

func (a *App) AppendLine(line render.Line) {
	a.queue(func() {
		a.appendLine(line)
	})
}

func (a *App) appendLine(line render.Line) {
	if a.chatView.GetText(false) != "" {
		_, _ = a.chatView.Write([]byte("\n"))
	}
	_, _ = a.chatView.Write([]byte(line.String()))
	a.chatView.ScrollToEnd()
}
