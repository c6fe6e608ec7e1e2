package ui

import (
	"fmt"
	"time"

	"parley/render"
)

func (a *App) updateConnectionStatus() {
	if a.connectionView == nil {
		return
	}
	if !a.connected && a.lost {
		a.connectionView.SetText(a.connectionLost())
		return
	}
	if !a.connected {
		a.connectionView.SetText(fmt.Sprintf("[red]○ Disconnected from %s[-]", a.serverAddr))
		return
	}
	session := "session expiry unknown"
	if left := time.Until(a.expiresAt); !a.expiresAt.IsZero() && left > 0 {
		session = "session expires in " + render.FormatDuration(left)
	} else if !a.expiresAt.IsZero() {
		session = "session expired"
	}
	a.connectionView.SetText(fmt.Sprintf("[green]● Connected to %s[-] [gray]│ %s[-]", a.serverAddr, session))
}

func (a *App) SetConnected(connected bool) {
	a.queue(func() {
		a.lost = a.connected && !connected
		a.connected = connected
		a.updateConnectionStatus()
	})
}

func (a *App) startStatusTicker() {
	if a.statusTicker != nil {
		return
	}
	a.statusTickerDone = make(chan struct{})
	a.statusTicker = time.NewTicker(1 * time.Second)
	ticker, done := a.statusTicker, a.statusTickerDone
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				a.queue(a.updateConnectionStatus)
			}
		}
	}()
}

func (a *App) stopStatusTicker() {
	if a.statusTicker != nil {
		a.statusTicker.Stop()
		close(a.statusTickerDone)
		a.statusTicker = nil
	}
}
