package ui

import (
	"context"
	"fmt"
	"time"

	"parley/models"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	hintRoster   = " F1:Help | Tab:Composer | Enter:Open | F5:Refresh | F9:Logout | F10:Quit "
	hintComposer = " F1:Help | Tab:Users | Enter:Send | PgUp/PgDn:Scroll | F9:Logout | F10:Quit "
)

func (a *App) createMainPage() tview.Primitive {
	// Roster on the left
	a.rosterList = tview.NewList()
	a.rosterList.SetBorder(true)
	a.rosterList.SetBorderColor(ColorBorder)
	a.rosterList.SetBackgroundColor(ColorBg)
	a.rosterList.SetTitle(" Users ")
	a.rosterList.SetTitleColor(ColorTitle)
	a.rosterList.SetMainTextColor(ColorFg)
	a.rosterList.SetMainTextStyle(tcell.StyleDefault.Foreground(ColorFg).Background(ColorBg))
	a.rosterList.SetSelectedTextColor(ColorTitle)
	a.rosterList.SetSelectedBackgroundColor(ColorBar)
	a.rosterList.SetHighlightFullLine(true)
	a.rosterList.ShowSecondaryText(false)
	a.rosterList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		if index < 0 || index >= len(a.roster) {
			return
		}
		peerID := a.roster[index].ID
		a.do("select", func(ctx context.Context) error {
			return a.ctrl.SelectPeer(ctx, peerID)
		})
	})

	a.peerTitle = tview.NewTextView()
	a.peerTitle.SetBackgroundColor(ColorBg)
	a.peerTitle.SetTextColor(ColorTitle)
	a.peerTitle.SetTextAlign(tview.AlignCenter)
	a.peerTitle.SetText("Select a user to start chatting")

	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(ColorBorder)
	a.chatView.SetBackgroundColor(ColorBg)
	a.chatView.SetTitle(" Conversation ")
	a.chatView.SetTitleColor(ColorTitle)
	a.chatView.SetTextColor(ColorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.SetWrap(true)

	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBackgroundColor(ColorBg)
	a.messageInput.SetFieldBackgroundColor(ColorFieldBg)
	a.messageInput.SetFieldTextColor(ColorFg)
	a.messageInput.SetLabelColor(ColorHighlight)
	a.messageInput.SetBorder(true)
	a.messageInput.SetBorderColor(ColorBorder)
	a.messageInput.SetTitle(" Message ")
	a.messageInput.SetTitleColor(ColorTitle)
	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			a.submit()
		}
	})
	a.setComposer(false)

	conversation := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.peerTitle, 1, 0, false).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.messageInput, 3, 0, false)

	a.connectionView = tview.NewTextView()
	a.connectionView.SetBorder(true)
	a.connectionView.SetBorderColor(ColorBorder)
	a.connectionView.SetBackgroundColor(ColorBg)
	a.connectionView.SetTitle(" Connection ")
	a.connectionView.SetTitleColor(ColorTitle)
	a.connectionView.SetTextColor(ColorFg)
	a.connectionView.SetDynamicColors(true)
	a.connectionView.SetTextAlign(tview.AlignCenter)
	a.updateConnectionStatus()

	a.statusBar = tview.NewTextView()
	a.statusBar.SetBackgroundColor(ColorBar)
	a.statusBar.SetTextColor(ColorTitle)
	a.statusBar.SetTextAlign(tview.AlignCenter)
	a.statusBar.SetText(hintRoster)

	body := tview.NewFlex().
		AddItem(a.rosterList, 30, 0, true).
		AddItem(conversation, 0, 1, false)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.connectionView, 3, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF1:
			a.showHelp()
			return nil
		case tcell.KeyTab:
			a.toggleFocus()
			return nil
		case tcell.KeyF5:
			a.do("users", a.ctrl.LoadUsers)
			return nil
		case tcell.KeyF9:
			a.showLogoutDialog()
			return nil
		case tcell.KeyPgUp:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row+10, col)
			return nil
		case tcell.KeyF10, tcell.KeyEsc:
			a.quit()
			return nil
		}
		return event
	})

	return mainFlex
}

func (a *App) toggleFocus() {
	if a.messageInput.HasFocus() || !a.composerEnabled {
		a.app.SetFocus(a.rosterList)
		a.statusBar.SetText(hintRoster)
		return
	}
	a.app.SetFocus(a.messageInput)
	a.statusBar.SetText(hintComposer)
}

func (a *App) ShowChat(self models.Identity, expiresAt time.Time) {
	a.queue(func() {
		a.self = self
		a.expiresAt = expiresAt
		a.lost = false
		a.loginError.SetText("")
		a.signupError.SetText("")
		a.rosterList.SetTitle(fmt.Sprintf(" Users [%s] ", tview.Escape(self.Name)))
		a.peerTitle.SetText("Select a user to start chatting")
		a.pages.SwitchToPage(pageMain)
		a.app.SetFocus(a.rosterList)
		a.statusBar.SetText(hintRoster)
		a.updateConnectionStatus()
		a.startStatusTicker()
	})
}
