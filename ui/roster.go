package ui

import (
	"fmt"

	"parley/models"

	"github.com/rivo/tview"
	"github.com/samber/lo"
)

// rosterItemText renders one roster row.
func rosterItemText(u models.UserSummary, active bool) string {
	marker := "  "
	if active {
		marker = "[::b]» "
	}
	presence := "[gray]○[white]"
	if u.Online {
		presence = "[green]●[white]"
	}
	text := fmt.Sprintf("%s%s %s", marker, presence, tview.Escape(u.Name))
	if u.Unread > 0 {
		text += fmt.Sprintf(" [red](%d)", u.Unread)
	}
	return text
}

func (a *App) SetRoster(users []models.UserSummary, active int64) {
	a.queue(func() {
		a.roster = users
		a.active = active
		a.renderRoster()
	})
}

func (a *App) renderRoster() {
	currentIdx := a.rosterList.GetCurrentItem()
	a.rosterList.Clear()
	for _, u := range a.roster {
		a.rosterList.AddItem(rosterItemText(u, u.ID == a.active), "", 0, nil)
	}
	if currentIdx >= 0 && currentIdx < a.rosterList.GetItemCount() {
		a.rosterList.SetCurrentItem(currentIdx)
	}
}

// UpdateUser redraws a single roster row in place.
func (a *App) UpdateUser(u models.UserSummary) {
	a.queue(func() {
		_, idx, ok := lo.FindIndexOf(a.roster, func(e models.UserSummary) bool { return e.ID == u.ID })
		if !ok {
			return
		}
		a.roster[idx] = u
		a.rosterList.SetItemText(idx, rosterItemText(u, u.ID == a.active), "")
	})
}

func (a *App) SetActivePeer(u models.UserSummary, title string) {
	a.queue(func() {
		a.active = u.ID
		a.peerTitle.SetText(tview.Escape(title))
		a.renderRoster()
	})
}
