// Package chat drives the client: the auth forms, the roster, conversation
// history, the realtime channel and sending. It talks to the screen through
// View and to the server through Backend and Dialer.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"parley/api"
	"parley/models"
	"parley/protocol"
	"parley/realtime"
	"parley/render"
	"parley/session"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	ErrMissingFields    = errors.New("missing required fields")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUnknownPeer      = errors.New("peer not in roster")
)

var validate = validator.New()

type signupForm struct {
	Name     string `validate:"required"`
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type loginForm struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// Controller is safe for concurrent use. Its blocking methods are meant to
// be run off the UI goroutine.
type Controller struct {
	backend Backend
	dialer  Dialer
	view    View
	sess    *session.Session
	log     zerolog.Logger
	loc     *time.Location

	mu            sync.Mutex
	roster        []models.UserSummary
	cancelHistory context.CancelFunc
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithLocation sets the zone message times are shown in.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.loc = loc }
}

func New(backend Backend, dialer Dialer, view View, sess *session.Session, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		dialer:  dialer,
		view:    view,
		sess:    sess,
		log:     zerolog.Nop(),
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) ShowSignup() { c.view.ShowForm(FormSignup) }

func (c *Controller) ShowLogin() { c.view.ShowForm(FormLogin) }

// Signup registers a new account and, on success, starts the chat.
func (c *Controller) Signup(ctx context.Context, name, email, password string) error {
	if err := validate.Struct(signupForm{Name: name, Email: email, Password: password}); err != nil {
		c.view.ShowAuthError(FormSignup, MsgFillAllFields)
		return ErrMissingFields
	}
	res, err := c.backend.Signup(ctx, name, email, password)
	if err != nil {
		c.log.Info().Err(err).Msg("signup failed")
		c.view.ShowAuthError(FormSignup, failureText(err, MsgSignupFailed))
		return err
	}
	c.start(ctx, res)
	return nil
}

// Login signs in and, on success, starts the chat.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	if err := validate.Struct(loginForm{Email: email, Password: password}); err != nil {
		c.view.ShowAuthError(FormLogin, MsgFillAllFields)
		return ErrMissingFields
	}
	res, err := c.backend.Login(ctx, email, password)
	if err != nil {
		c.log.Info().Err(err).Msg("login failed")
		c.view.ShowAuthError(FormLogin, failureText(err, MsgLoginFailed))
		return err
	}
	c.start(ctx, res)
	return nil
}

func failureText(err error, fallback string) string {
	var rej *api.RejectedError
	if errors.As(err, &rej) {
		if rej.Message != "" {
			return rej.Message
		}
		return fallback
	}
	return MsgNetworkError
}

func (c *Controller) start(ctx context.Context, res api.AuthResult) {
	c.resetLocal()
	if prev := c.sess.Begin(res.User, res.Token); prev != nil {
		_ = prev.Close()
	}
	gen := c.sess.Generation()
	c.log.Info().Int64("user", res.User.ID).Msg("signed in")

	c.view.ShowChat(res.User, c.sess.ExpiresAt())
	c.view.SetConnected(false)
	c.view.SetComposerEnabled(false)
	c.view.ReplaceConversation(nil)

	_ = c.LoadUsers(ctx)
	c.connect(ctx, gen)
}

func (c *Controller) connect(ctx context.Context, gen uint64) {
	conn, err := c.dialer.Dial(ctx, c.sess.Token(), c.handler(gen), c.onLost(gen))
	if err != nil {
		c.log.Error().Err(err).Msg("realtime connect")
		return
	}
	if !c.sess.AttachChannel(gen, conn) {
		_ = conn.Close()
		return
	}
	c.view.SetConnected(true)
	c.view.SetComposerEnabled(c.sess.ComposerEnabled())
}

// handler binds inbound events to the session generation that opened the
// channel.
func (c *Controller) handler(gen uint64) realtime.Handler {
	return func(ev protocol.Event) {
		if c.sess.Generation() != gen {
			return
		}
		c.dispatch(ev)
	}
}

func (c *Controller) onLost(gen uint64) func(error) {
	return func(err error) {
		if c.sess.Generation() != gen {
			return
		}
		c.log.Warn().Err(err).Msg("realtime disconnected")
		c.view.SetConnected(false)
	}
}

func (c *Controller) dispatch(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.NewMessage:
		c.receive(e.Message, true)
	case protocol.MessageSent:
		c.receive(e.Message, false)
	case protocol.UserOnline:
		c.setPresence(e.UserID, true)
	case protocol.UserOffline:
		c.setPresence(e.UserID, false)
	case protocol.ChannelError:
		c.log.Warn().Str("event", string(e.Kind())).Str("reason", e.Message).Msg("channel error")
	default:
		c.log.Debug().Str("event", string(ev.Kind())).Msg("ignored event")
	}
}

// receive renders msg if it belongs to the selected conversation. A
// delivered message for another peer bumps that peer's unread count.
func (c *Controller) receive(msg models.Message, delivered bool) {
	self, ok := c.sess.Identity()
	if !ok {
		return
	}
	peer := c.sess.Selected()
	if peer != 0 && msg.Involves(peer) {
		c.view.AppendLine(render.Format(msg, self, c.loc))
		return
	}
	if !delivered || msg.SenderID == self.ID {
		return
	}

	c.mu.Lock()
	_, i, found := lo.FindIndexOf(c.roster, func(u models.UserSummary) bool { return u.ID == msg.SenderID })
	var entry models.UserSummary
	if found {
		c.roster[i].Unread++
		entry = c.roster[i]
	}
	c.mu.Unlock()
	if found {
		c.view.UpdateUser(entry)
	}
}

func (c *Controller) setPresence(userID int64, online bool) {
	c.mu.Lock()
	_, i, found := lo.FindIndexOf(c.roster, func(u models.UserSummary) bool { return u.ID == userID })
	var entry models.UserSummary
	if found {
		c.roster[i].Online = online
		entry = c.roster[i]
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.log.Debug().Int64("user", userID).Bool("online", online).Msg("presence")
	c.view.UpdateUser(entry)
}

// LoadUsers replaces the roster with the server's user list. Failures are
// logged only.
func (c *Controller) LoadUsers(ctx context.Context) error {
	token := c.sess.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	gen := c.sess.Generation()
	users, err := c.backend.Users(ctx, token)
	if err != nil {
		c.logFailure(err).Msg("load users")
		return err
	}
	if c.sess.Generation() != gen {
		return nil
	}

	roster := lo.Map(users, func(u models.Identity, _ int) models.UserSummary {
		return models.Summarize(u)
	})
	c.mu.Lock()
	c.roster = roster
	snapshot := append([]models.UserSummary(nil), roster...)
	c.mu.Unlock()

	c.view.SetRoster(snapshot, c.sess.Selected())
	return nil
}

// logFailure picks the level for a failed backend read. A 401 means the
// token expired or was revoked, which no retry will fix.
func (c *Controller) logFailure(err error) *zerolog.Event {
	if api.IsUnauthorized(err) {
		return c.log.Error().Err(err).Str("reason", "session rejected")
	}
	return c.log.Warn().Err(err)
}

// Roster returns a copy of the current roster.
func (c *Controller) Roster() []models.UserSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.UserSummary(nil), c.roster...)
}

// SelectPeer makes peerID the active conversation and loads its history.
// An in-flight history load for the previous selection is cancelled.
func (c *Controller) SelectPeer(ctx context.Context, peerID int64) error {
	if !c.sess.Authenticated() {
		return ErrNotAuthenticated
	}
	c.mu.Lock()
	_, i, found := lo.FindIndexOf(c.roster, func(u models.UserSummary) bool { return u.ID == peerID })
	if !found {
		c.mu.Unlock()
		return ErrUnknownPeer
	}
	c.roster[i].Unread = 0
	entry := c.roster[i]
	if c.cancelHistory != nil {
		c.cancelHistory()
	}
	hctx, cancel := context.WithCancel(ctx)
	c.cancelHistory = cancel
	// selection, cancel registration and the view stay in the same order
	c.sess.Select(peerID)
	c.view.SetActivePeer(entry, "Chatting with "+entry.Name)
	c.view.UpdateUser(entry)
	c.view.SetComposerEnabled(c.sess.ComposerEnabled())
	c.mu.Unlock()
	defer cancel()

	return c.LoadHistory(hctx, peerID)
}

// LoadHistory replaces the conversation pane with the history of peerID.
// The batch is dropped if peerID is no longer selected when it arrives.
func (c *Controller) LoadHistory(ctx context.Context, peerID int64) error {
	self, ok := c.sess.Identity()
	if !ok {
		return ErrNotAuthenticated
	}
	gen := c.sess.Generation()
	msgs, err := c.backend.Messages(ctx, c.sess.Token(), peerID)
	if err != nil {
		if ctx.Err() != nil {
			c.log.Debug().Int64("peer", peerID).Msg("history load cancelled")
			return ctx.Err()
		}
		c.logFailure(err).Int64("peer", peerID).Msg("load history")
		return err
	}
	if c.sess.Generation() != gen || c.sess.Selected() != peerID {
		c.log.Debug().Int64("peer", peerID).Msg("discard stale history")
		return nil
	}
	c.view.ReplaceConversation(render.Batch(msgs, self, c.loc))
	return nil
}

// SendMessage emits text to the selected peer. Blank text, no selection or
// no channel make it a no-op; the composer is left untouched then.
func (c *Controller) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	peer := c.sess.Selected()
	ch := c.sess.Channel()
	if text == "" || peer == 0 || ch == nil {
		return nil
	}
	conn, ok := ch.(Conn)
	if !ok {
		return nil
	}
	err := conn.SendMessage(c.sess.Token(), peer, text)
	c.view.ClearComposer()
	if err != nil {
		c.log.Warn().Err(err).Int64("peer", peer).Msg("send message")
		return err
	}
	return nil
}

// Logout closes the channel, forgets the session and returns to the auth
// page.
func (c *Controller) Logout() {
	c.resetLocal()
	if ch := c.sess.End(); ch != nil {
		if err := ch.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close realtime")
		}
	}
	c.log.Info().Msg("signed out")

	c.view.SetConnected(false)
	c.view.SetComposerEnabled(false)
	c.view.SetRoster(nil, 0)
	c.view.ReplaceConversation(nil)
	c.view.ShowAuth()
	c.view.ClearLoginFields()
}

func (c *Controller) resetLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelHistory != nil {
		c.cancelHistory()
		c.cancelHistory = nil
	}
	c.roster = nil
}
