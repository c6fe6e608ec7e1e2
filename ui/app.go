// Package ui is the terminal front end: an auth page with login and signup
// forms, and a main page with the roster, the conversation and a composer.
// App implements chat.View; every widget change is queued onto the tview
// event loop.
package ui

import (
	"context"
	"sync/atomic"
	"time"

	"parley/chat"
	"parley/models"

	"github.com/rivo/tview"
	"github.com/rs/zerolog"
)

const (
	pageAuth = "auth"
	pageMain = "main"
	pageHelp = "help"
)

// App is the main application
type App struct {
	app        *tview.Application
	pages      *tview.Pages
	ctrl       *chat.Controller
	serverAddr string
	log        zerolog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	stopped    atomic.Bool
	submitting atomic.Bool

	// owned by the tview goroutine
	self      models.Identity
	expiresAt time.Time
	roster    []models.UserSummary
	active    int64
	connected bool
	lost      bool
	form      chat.Form

	composerEnabled bool

	authPages     *tview.Pages
	loginForm     *tview.Form
	loginEmail    *tview.InputField
	loginPassword *tview.InputField
	loginError    *tview.TextView
	signupForm    *tview.Form
	signupName    *tview.InputField
	signupEmail   *tview.InputField
	signupPass    *tview.InputField
	signupError   *tview.TextView

	rosterList     *tview.List
	peerTitle      *tview.TextView
	chatView       *tview.TextView
	messageInput   *tview.InputField
	connectionView *tview.TextView
	statusBar      *tview.TextView

	statusTicker     *time.Ticker
	statusTickerDone chan struct{}
}

// NewApp builds every page up front so the view methods can be called
// before Run.
func NewApp(serverAddr string, log zerolog.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		serverAddr: tview.Escape(serverAddr),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	a.pages.AddPage(pageMain, a.createMainPage(), true, false)
	a.pages.AddPage(pageAuth, a.createAuthPage(), true, true)
	return a
}

// Bind attaches the controller that handles user actions.
func (a *App) Bind(ctrl *chat.Controller) {
	a.ctrl = ctrl
}

// Run starts the application and blocks until it quits.
func (a *App) Run() error {
	a.app.SetFocus(a.loginForm)
	defer a.stopped.Store(true)
	return a.app.SetRoot(a.pages, true).EnableMouse(false).Run()
}

// quit exits the application
func (a *App) quit() {
	a.stopped.Store(true)
	a.cancel()
	a.stopStatusTicker()
	a.app.Stop()
}

// queue runs fn on the tview goroutine. Updates after quit are dropped.
func (a *App) queue(fn func()) {
	if a.stopped.Load() {
		return
	}
	a.app.QueueUpdateDraw(fn)
}

// do runs a controller action off the tview goroutine.
func (a *App) do(name string, fn func(ctx context.Context) error) {
	if a.ctrl == nil {
		return
	}
	go func() {
		if err := fn(a.ctx); err != nil {
			a.log.Debug().Err(err).Str("action", name).Msg("action failed")
		}
	}()
}
