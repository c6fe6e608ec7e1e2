package chat

import (
	"time"

	"parley/models"
	"parley/render"
)

// Form identifies one of the two auth forms.
type Form int

const (
	FormLogin Form = iota
	FormSignup
)

func (f Form) String() string {
	if f == FormSignup {
		return "signup"
	}
	return "login"
}

// Texts shown on the auth forms.
const (
	MsgFillAllFields = "Please fill all fields"
	MsgSignupFailed  = "Signup failed"
	MsgLoginFailed   = "Login failed"
	MsgNetworkError  = "Network error. Please try again."
)

// View is everything the controller needs from the screen. Implementations
// may be called from any goroutine.
type View interface {
	// ShowForm toggles the visible auth form and clears both error lines.
	ShowForm(form Form)
	ShowAuthError(form Form, text string)
	ShowAuth()
	ClearLoginFields()

	// ShowChat switches to the chat page for self. expiresAt is zero when
	// the token carries no expiry.
	ShowChat(self models.Identity, expiresAt time.Time)
	// SetRoster replaces the roster. active is the highlighted entry, zero
	// for none.
	SetRoster(users []models.UserSummary, active int64)
	UpdateUser(user models.UserSummary)
	SetActivePeer(peer models.UserSummary, title string)
	SetComposerEnabled(enabled bool)
	ClearComposer()
	ReplaceConversation(lines []render.Line)
	AppendLine(line render.Line)
	SetConnected(connected bool)
}
