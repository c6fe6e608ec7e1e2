package chat_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"parley/api"
	"parley/chat"
	"parley/mocks"
	"parley/models"
	"parley/protocol"
	"parley/realtime"
	"parley/render"
	"parley/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// viewState is what the fake view has been told to show.
type viewState struct {
	page            string
	form            chat.Form
	authErrors      map[chat.Form]string
	loginCleared    int
	self            models.Identity
	roster          []models.UserSummary
	active          int64
	title           string
	composer        bool
	composerCleared int
	lines           []render.Line
	connected       bool
}

type fakeView struct {
	mu sync.Mutex
	st viewState
}

func newFakeView() *fakeView {
	return &fakeView{st: viewState{page: "auth", authErrors: map[chat.Form]string{}}}
}

func (v *fakeView) update(fn func(st *viewState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(&v.st)
}

func (v *fakeView) ShowForm(form chat.Form) {
	v.update(func(st *viewState) {
		st.form = form
		st.authErrors = map[chat.Form]string{}
	})
}

func (v *fakeView) ShowAuthError(form chat.Form, text string) {
	v.update(func(st *viewState) { st.authErrors[form] = text })
}

func (v *fakeView) ShowAuth() {
	v.update(func(st *viewState) { st.page = "auth" })
}

func (v *fakeView) ClearLoginFields() {
	v.update(func(st *viewState) { st.loginCleared++ })
}

func (v *fakeView) ShowChat(self models.Identity, _ time.Time) {
	v.update(func(st *viewState) {
		st.page = "chat"
		st.self = self
	})
}

func (v *fakeView) SetRoster(users []models.UserSummary, active int64) {
	v.update(func(st *viewState) {
		st.roster = append([]models.UserSummary(nil), users...)
		st.active = active
	})
}

func (v *fakeView) UpdateUser(user models.UserSummary) {
	v.update(func(st *viewState) {
		for i := range st.roster {
			if st.roster[i].ID == user.ID {
				st.roster[i] = user
			}
		}
	})
}

func (v *fakeView) SetActivePeer(peer models.UserSummary, title string) {
	v.update(func(st *viewState) {
		st.active = peer.ID
		st.title = title
	})
}

func (v *fakeView) SetComposerEnabled(enabled bool) {
	v.update(func(st *viewState) { st.composer = enabled })
}

func (v *fakeView) ClearComposer() {
	v.update(func(st *viewState) { st.composerCleared++ })
}

func (v *fakeView) ReplaceConversation(lines []render.Line) {
	v.update(func(st *viewState) { st.lines = append([]render.Line(nil), lines...) })
}

func (v *fakeView) AppendLine(line render.Line) {
	v.update(func(st *viewState) { st.lines = append(st.lines, line) })
}

func (v *fakeView) SetConnected(connected bool) {
	v.update(func(st *viewState) { st.connected = connected })
}

func (v *fakeView) snapshot() viewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.st
	st.authErrors = make(map[chat.Form]string, len(v.st.authErrors))
	for k, e := range v.st.authErrors {
		st.authErrors[k] = e
	}
	st.roster = append([]models.UserSummary(nil), v.st.roster...)
	st.lines = append([]render.Line(nil), v.st.lines...)
	return st
}

var (
	ana = models.Identity{ID: 1, Name: "Ana", Email: "ana@example.com"}
	bob = models.Identity{ID: 2, Name: "Bob", Email: "bob@example.com"}
	cat = models.Identity{ID: 3, Name: "Cat", Email: "cat@example.com"}
	dan = models.Identity{ID: 4, Name: "Dan", Email: "dan@example.com"}
)

const anaToken = "tok-ana"

func msg(id, from, to int64, text string) models.Message {
	names := map[int64]string{1: "Ana", 2: "Bob", 3: "Cat", 4: "Dan"}
	return models.Message{
		ID: id, SenderID: from, ReceiverID: to, Text: text,
		CreatedAt:  "2024-03-01T10:15:00",
		SenderName: names[from], ReceiverName: names[to],
	}
}

type fixture struct {
	backend *mocks.MockBackend
	dialer  *mocks.MockDialer
	conn    *mocks.MockConn
	view    *fakeView
	sess    *session.Session
	ctrl    *chat.Controller
	handler realtime.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mc := gomock.NewController(t)
	f := &fixture{
		backend: mocks.NewMockBackend(mc),
		dialer:  mocks.NewMockDialer(mc),
		conn:    mocks.NewMockConn(mc),
		view:    newFakeView(),
		sess:    session.New(),
	}
	f.ctrl = chat.New(f.backend, f.dialer, f.view, f.sess, chat.WithLocation(time.UTC))
	return f
}

// signIn logs Ana in with a roster of Bob, Cat and Dan.
func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	f.backend.EXPECT().Login(gomock.Any(), ana.Email, "pw").
		Return(api.AuthResult{Token: anaToken, User: ana}, nil)
	f.backend.EXPECT().Users(gomock.Any(), anaToken).
		Return([]models.Identity{bob, cat, dan}, nil)
	f.dialer.EXPECT().Dial(gomock.Any(), anaToken, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, h realtime.Handler, _ func(error)) (chat.Conn, error) {
			f.handler = h
			return f.conn, nil
		})
	require.NoError(t, f.ctrl.Login(context.Background(), ana.Email, "pw"))
}

func (f *fixture) selectPeer(t *testing.T, peer models.Identity, history ...models.Message) {
	t.Helper()
	f.backend.EXPECT().Messages(gomock.Any(), anaToken, peer.ID).Return(history, nil)
	require.NoError(t, f.ctrl.SelectPeer(context.Background(), peer.ID))
}

func TestSignupSuccess(t *testing.T) {
	tests := []struct {
		name, email, password string
	}{
		{"Ana", "ana@example.com", "pw"},
		{"A", "a@b", "x"},
		{"Ana Maria", "ana.maria@example.com", "correct horse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			self := models.Identity{ID: 7, Name: tt.name, Email: tt.email}

			// Given the backend accepts the signup
			f.backend.EXPECT().Signup(gomock.Any(), tt.name, tt.email, tt.password).
				Return(api.AuthResult{Token: "tok", User: self}, nil)
			f.backend.EXPECT().Users(gomock.Any(), "tok").Return(nil, nil)
			f.dialer.EXPECT().Dial(gomock.Any(), "tok", gomock.Any(), gomock.Any()).Return(f.conn, nil)

			// When signing up
			err := f.ctrl.Signup(context.Background(), tt.name, tt.email, tt.password)

			// Then the chat view is shown and the session holds identity and token
			req.NoError(err)
			v := f.view.snapshot()
			req.Equal("chat", v.page)
			req.Equal(self, v.self)
			req.True(v.connected)
			got, ok := f.sess.Identity()
			req.True(ok)
			req.Equal(self, got)
			req.Equal("tok", f.sess.Token())
			req.NotNil(f.sess.Channel())
		})
	}
}

func TestEmptyFieldsIssueNoRequest(t *testing.T) {
	signups := []struct{ name, email, password string }{
		{"", "", ""},
		{"", "a@b", "pw"},
		{"Ana", "", "pw"},
		{"Ana", "a@b", ""},
		{"", "", "pw"},
	}
	for _, tt := range signups {
		t.Run("signup/"+tt.name+"|"+tt.email+"|"+tt.password, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)

			err := f.ctrl.Signup(context.Background(), tt.name, tt.email, tt.password)

			req.ErrorIs(err, chat.ErrMissingFields)
			v := f.view.snapshot()
			req.Equal(chat.MsgFillAllFields, v.authErrors[chat.FormSignup])
			req.Equal("auth", v.page)
			req.False(f.sess.Authenticated())
		})
	}

	logins := []struct{ email, password string }{
		{"", ""},
		{"a@b", ""},
		{"", "pw"},
	}
	for _, tt := range logins {
		t.Run("login/"+tt.email+"|"+tt.password, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)

			err := f.ctrl.Login(context.Background(), tt.email, tt.password)

			req.ErrorIs(err, chat.ErrMissingFields)
			req.Equal(chat.MsgFillAllFields, f.view.snapshot().authErrors[chat.FormLogin])
		})
	}
}

func TestAuthFailureTexts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server message", &api.RejectedError{Op: "login", Status: http.StatusUnauthorized, Message: "Invalid credentials"}, "Invalid credentials"},
		{"no message", &api.RejectedError{Op: "login", Status: http.StatusInternalServerError}, chat.MsgLoginFailed},
		{"transport", &api.TransportError{Op: "login", Err: errors.New("connection refused")}, chat.MsgNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.backend.EXPECT().Login(gomock.Any(), "a@b", "pw").Return(api.AuthResult{}, tt.err)

			err := f.ctrl.Login(context.Background(), "a@b", "pw")

			req.ErrorIs(err, tt.err)
			v := f.view.snapshot()
			req.Equal(tt.want, v.authErrors[chat.FormLogin])
			req.Equal("auth", v.page)
			req.False(f.sess.Authenticated())
		})
	}
}

func TestSignupFallbackText(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.backend.EXPECT().Signup(gomock.Any(), "Ana", "a@b", "pw").
		Return(api.AuthResult{}, &api.RejectedError{Op: "signup", Status: http.StatusBadGateway})

	_ = f.ctrl.Signup(context.Background(), "Ana", "a@b", "pw")

	req.Equal(chat.MsgSignupFailed, f.view.snapshot().authErrors[chat.FormSignup])
}

func TestToggleFormsClearsErrors(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	_ = f.ctrl.Login(context.Background(), "", "")
	req.NotEmpty(f.view.snapshot().authErrors[chat.FormLogin])

	f.ctrl.ShowSignup()

	v := f.view.snapshot()
	req.Equal(chat.FormSignup, v.form)
	req.Empty(v.authErrors)
}

func TestRosterSelectionIsExclusive(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)

	// Then N users render N entries, all offline
	v := f.view.snapshot()
	req.Len(v.roster, 3)
	for _, u := range v.roster {
		req.False(u.Online)
	}
	req.Zero(v.active)
	req.False(v.composer)

	// When selecting Cat
	f.selectPeer(t, cat)
	v = f.view.snapshot()
	req.Equal(cat.ID, v.active)
	req.Equal("Chatting with Cat", v.title)
	req.True(v.composer)

	// When selecting Dan, only Dan is active
	f.selectPeer(t, dan)
	req.Equal(dan.ID, f.view.snapshot().active)
	req.Equal(dan.ID, f.sess.Selected())
}

func TestSelectUnknownPeer(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)

	err := f.ctrl.SelectPeer(context.Background(), 99)

	req.ErrorIs(err, chat.ErrUnknownPeer)
	req.Zero(f.sess.Selected())
}

func TestConcurrentSelectionsAgree(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)
	f.backend.EXPECT().Messages(gomock.Any(), anaToken, gomock.Any()).Return(nil, nil).AnyTimes()
	peers := []models.Identity{bob, cat, dan}

	// When selections race each other
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(peer models.Identity) {
			defer wg.Done()
			_ = f.ctrl.SelectPeer(context.Background(), peer.ID)
		}(peers[i%len(peers)])
	}
	wg.Wait()

	// Then the view shows the peer the session ended up with
	v := f.view.snapshot()
	selected := f.sess.Selected()
	req.NotZero(selected)
	req.Equal(selected, v.active)
	names := map[int64]string{bob.ID: bob.Name, cat.ID: cat.Name, dan.ID: dan.Name}
	req.Equal("Chatting with "+names[selected], v.title)
}

func TestRealtimeMembership(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)

	// Given Bob's history is loaded
	f.selectPeer(t, bob, msg(1, 1, 2, "hi bob"), msg(2, 2, 1, "hi ana"))
	req.Len(f.view.snapshot().lines, 2)

	// When messages arrive over the channel
	f.handler(protocol.NewMessage{Message: msg(3, 2, 1, "from bob")})
	f.handler(protocol.NewMessage{Message: msg(4, 3, 1, "from cat")})
	f.handler(protocol.MessageSent{Message: msg(5, 1, 2, "to bob")})
	f.handler(protocol.MessageSent{Message: msg(6, 1, 3, "to cat")})

	// Then only Bob's conversation is appended, after the history batch
	lines := f.view.snapshot().lines
	req.Len(lines, 4)
	req.Equal("hi bob", lines[0].Text)
	req.Equal("hi ana", lines[1].Text)
	req.Equal("from bob", lines[2].Text)
	req.Equal("Bob", lines[2].Label)
	req.Equal("to bob", lines[3].Text)
	req.Equal(render.SelfLabel, lines[3].Label)
	req.True(lines[3].Sent)
	req.Equal("10:15", lines[3].Time)

	// And Cat's message is counted as unread
	roster := f.ctrl.Roster()
	req.Equal(1, roster[1].Unread)
	req.Equal(1, f.view.snapshot().roster[1].Unread)

	// When Cat is selected the counter resets
	f.selectPeer(t, cat)
	req.Zero(f.ctrl.Roster()[1].Unread)
}

func TestNoSelectionDropsMessages(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)

	f.handler(protocol.MessageSent{Message: msg(1, 1, 2, "hello")})

	req.Empty(f.view.snapshot().lines)
}

func TestPresence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)

	f.handler(protocol.UserOnline{Presence: protocol.Presence{UserID: bob.ID}})
	f.handler(protocol.UserOnline{Presence: protocol.Presence{UserID: dan.ID}})
	f.handler(protocol.UserOffline{Presence: protocol.Presence{UserID: dan.ID}})

	v := f.view.snapshot()
	req.True(v.roster[0].Online)
	req.False(v.roster[1].Online)
	req.False(v.roster[2].Online)
}

func TestPresenceForUnknownUser(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)
	before := f.view.snapshot()

	req.NotPanics(func() {
		f.handler(protocol.UserOnline{Presence: protocol.Presence{UserID: 42}})
		f.handler(protocol.ChannelError{ErrorPayload: protocol.ErrorPayload{Message: "Missing token"}})
	})

	req.Equal(before, f.view.snapshot())
}

func TestSendMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)
	f.selectPeer(t, bob)

	// Then exactly one event with receiver and trimmed text
	f.conn.EXPECT().SendMessage(anaToken, bob.ID, "hello").Return(nil).Times(1)

	req.NoError(f.ctrl.SendMessage("  hello \n"))
	req.Equal(1, f.view.snapshot().composerCleared)
}

func TestSendMessageNoop(t *testing.T) {
	t.Run("blank text", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.signIn(t)
		f.selectPeer(t, bob)

		req.NoError(f.ctrl.SendMessage("   "))
		req.Zero(f.view.snapshot().composerCleared)
	})
	t.Run("no peer", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.signIn(t)

		req.NoError(f.ctrl.SendMessage("hello"))
		req.Zero(f.view.snapshot().composerCleared)
	})
	t.Run("no channel", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.backend.EXPECT().Login(gomock.Any(), ana.Email, "pw").Return(api.AuthResult{Token: anaToken, User: ana}, nil)
		f.backend.EXPECT().Users(gomock.Any(), anaToken).Return([]models.Identity{bob}, nil)
		f.dialer.EXPECT().Dial(gomock.Any(), anaToken, gomock.Any(), gomock.Any()).Return(nil, errors.New("refused"))
		req.NoError(f.ctrl.Login(context.Background(), ana.Email, "pw"))
		f.selectPeer(t, bob)

		req.False(f.view.snapshot().composer)
		req.NoError(f.ctrl.SendMessage("hello"))
		req.Zero(f.view.snapshot().composerCleared)
	})
}

func TestLogoutTearsDown(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)
	f.selectPeer(t, bob)

	// When logging out with the channel open
	f.conn.EXPECT().Close().Return(nil).Times(1)
	f.ctrl.Logout()

	// Then the session is cleared and the auth page is back
	v := f.view.snapshot()
	req.Equal("auth", v.page)
	req.Equal(1, v.loginCleared)
	req.Empty(v.roster)
	req.Empty(v.lines)
	req.False(v.composer)
	req.False(f.sess.Authenticated())
	req.Nil(f.sess.Channel())

	// And late events from the old channel have no effect
	f.handler(protocol.NewMessage{Message: msg(9, 2, 1, "late")})
	f.handler(protocol.UserOnline{Presence: protocol.Presence{UserID: bob.ID}})
	req.Equal(v, f.view.snapshot())
}

func TestStaleHistoryDiscarded(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)

	started := make(chan struct{})
	f.backend.EXPECT().Messages(gomock.Any(), anaToken, bob.ID).
		DoAndReturn(func(ctx context.Context, _ string, _ int64) ([]models.Message, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	f.backend.EXPECT().Messages(gomock.Any(), anaToken, cat.ID).
		Return([]models.Message{msg(1, 3, 1, "from cat")}, nil)

	// Given Bob's history is still loading
	errc := make(chan error, 1)
	go func() { errc <- f.ctrl.SelectPeer(context.Background(), bob.ID) }()
	<-started

	// When Cat is selected
	req.NoError(f.ctrl.SelectPeer(context.Background(), cat.ID))

	// Then Bob's load is cancelled and Cat's history stays
	req.ErrorIs(<-errc, context.Canceled)
	lines := f.view.snapshot().lines
	req.Len(lines, 1)
	req.Equal("from cat", lines[0].Text)
}

func TestHistoryForDeselectedPeerDiscarded(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)
	f.selectPeer(t, cat, msg(1, 3, 1, "from cat"))

	// A history batch for Bob, who is not selected, is not shown
	f.backend.EXPECT().Messages(gomock.Any(), anaToken, bob.ID).Return([]models.Message{msg(2, 2, 1, "from bob")}, nil)
	req.NoError(f.ctrl.LoadHistory(context.Background(), bob.ID))

	lines := f.view.snapshot().lines
	req.Len(lines, 1)
	req.Equal("from cat", lines[0].Text)
}

func TestRosterFailureIsNotShown(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.backend.EXPECT().Login(gomock.Any(), ana.Email, "pw").Return(api.AuthResult{Token: anaToken, User: ana}, nil)
	f.backend.EXPECT().Users(gomock.Any(), anaToken).Return(nil, &api.TransportError{Op: "users", Err: errors.New("down")})
	f.dialer.EXPECT().Dial(gomock.Any(), anaToken, gomock.Any(), gomock.Any()).Return(f.conn, nil)

	req.NoError(f.ctrl.Login(context.Background(), ana.Email, "pw"))

	v := f.view.snapshot()
	req.Equal("chat", v.page)
	req.Empty(v.roster)
	req.Empty(v.authErrors)
}

func TestRejectedSessionLoggedAsError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		rejected  bool
	}{
		{"expired token", &api.RejectedError{Op: "users", Status: http.StatusUnauthorized, Message: "Invalid or expired token"}, "error", true},
		{"server error", &api.RejectedError{Op: "users", Status: http.StatusInternalServerError}, "warn", false},
		{"network", &api.TransportError{Op: "users", Err: errors.New("down")}, "warn", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.signIn(t)
			var buf bytes.Buffer
			ctrl := chat.New(f.backend, f.dialer, f.view, f.sess, chat.WithLogger(zerolog.New(&buf)))

			// Given the backend refuses the roster
			f.backend.EXPECT().Users(gomock.Any(), anaToken).Return(nil, tt.err)

			// When the roster is reloaded
			err := ctrl.LoadUsers(context.Background())

			// Then the failure is logged at the matching level and not shown
			req.ErrorIs(err, tt.err)
			req.Contains(buf.String(), `"level":"`+tt.wantLevel+`"`)
			req.Equal(tt.rejected, strings.Contains(buf.String(), "session rejected"))
			req.Empty(f.view.snapshot().authErrors)
		})
	}
}

func TestReloadRosterResetsPresence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.signIn(t)
	f.selectPeer(t, bob)
	f.handler(protocol.UserOnline{Presence: protocol.Presence{UserID: bob.ID}})

	f.backend.EXPECT().Users(gomock.Any(), anaToken).Return([]models.Identity{bob, cat}, nil)
	req.NoError(f.ctrl.LoadUsers(context.Background()))

	v := f.view.snapshot()
	req.Len(v.roster, 2)
	req.False(v.roster[0].Online)
	req.Equal(bob.ID, v.active)
}

func TestLostConnection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.backend.EXPECT().Login(gomock.Any(), ana.Email, "pw").Return(api.AuthResult{Token: anaToken, User: ana}, nil)
	f.backend.EXPECT().Users(gomock.Any(), anaToken).Return(nil, nil)
	var lost func(error)
	f.dialer.EXPECT().Dial(gomock.Any(), anaToken, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ realtime.Handler, onLost func(error)) (chat.Conn, error) {
			lost = onLost
			return f.conn, nil
		})
	req.NoError(f.ctrl.Login(context.Background(), ana.Email, "pw"))
	req.True(f.view.snapshot().connected)

	lost(errors.New("eof"))

	req.False(f.view.snapshot().connected)
}
