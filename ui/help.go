package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `
 [yellow]Sign in[-]
 ───────────────────────────────────────────────────────────────
   [white]F2[-]       Switch between login and sign up
   [white]Tab[-]      Next field or button
   [white]F10/Esc[-]  Quit application

 [yellow]Users[-]
 ───────────────────────────────────────────────────────────────
   [white]F1[-]       Show this help
   [white]↑ ↓[-]      Navigate users
   [white]Enter[-]    Open conversation with user
   [white]F5[-]       Reload users
   [white]F9[-]       Log out
   [white]F10/Esc[-]  Quit application

 [yellow]Conversation[-]
 ───────────────────────────────────────────────────────────────
   [white]Tab[-]      Switch between users and message input
   [white]Enter[-]    Send message
   [white]PgUp/Dn[-]  Scroll conversation (10 lines)

 [yellow]Status Icons[-]
 ───────────────────────────────────────────────────────────────
   [green]●[-] online   User is connected
   [gray]○[-] offline  User is disconnected
   [red](n)[-]       Messages received while another user was open
   [white]»[-]          Open conversation
`

func (a *App) showHelp() {
	helpView := tview.NewTextView()
	helpView.SetText(helpText)
	helpView.SetBackgroundColor(ColorBg)
	helpView.SetTextColor(ColorFg)
	helpView.SetDynamicColors(true)
	helpView.SetBorder(true)
	helpView.SetBorderColor(ColorBorder)
	helpView.SetTitle(" Help ")
	helpView.SetTitleColor(ColorTitle)
	helpView.SetScrollable(true)

	statusBar := tview.NewTextView()
	statusBar.SetBackgroundColor(ColorBar)
	statusBar.SetTextColor(ColorTitle)
	statusBar.SetTextAlign(tview.AlignCenter)
	statusBar.SetText(" ↑↓/PgUp/PgDn: Scroll | Esc/Enter/F1: Close ")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(helpView, 0, 1, true).
		AddItem(statusBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter, tcell.KeyF1:
			a.pages.RemovePage(pageHelp)
			a.app.SetFocus(a.rosterList)
			a.statusBar.SetText(hintRoster)
			return nil
		case tcell.KeyUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+1, col)
			return nil
		case tcell.KeyPgUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+10, col)
			return nil
		}
		return event
	})

	a.pages.AddPage(pageHelp, flex, true, true)
}
