package ui

import (
	"context"
	"fmt"

	"github.com/rivo/tview"
)

const pageDialog = "dialog"

func (a *App) showLogoutDialog() {
	if a.pages.HasPage(pageDialog) {
		return
	}
	modal := tview.NewModal()
	modal.SetText(fmt.Sprintf("Log out %s?", tview.Escape(a.self.Name)))
	modal.SetBackgroundColor(ColorBg)
	modal.SetTextColor(ColorFg)
	modal.SetButtonBackgroundColor(ColorBar)
	modal.SetButtonTextColor(ColorTitle)
	modal.AddButtons([]string{"Log out", "Cancel"})
	modal.SetDoneFunc(func(_ int, buttonLabel string) {
		a.pages.RemovePage(pageDialog)
		if buttonLabel != "Log out" {
			a.app.SetFocus(a.rosterList)
			return
		}
		a.do("logout", func(context.Context) error {
			a.ctrl.Logout()
			return nil
		})
	})

	a.pages.AddPage(pageDialog, modal, true, true)
}

// connectionLost is shown in place of the plain disconnected status until
// the next successful connect.
func (a *App) connectionLost() string {
	return fmt.Sprintf("[red]○ Connection to %s lost[-] [gray]│ F9 to log out and sign in again[-]", a.serverAddr)
}
