package ui

import (
	"context"

	"parley/chat"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func styleForm(form *tview.Form, title string) {
	form.SetBackgroundColor(ColorBg)
	form.SetFieldBackgroundColor(ColorFieldBg)
	form.SetFieldTextColor(ColorFg)
	form.SetLabelColor(ColorHighlight)
	form.SetButtonBackgroundColor(ColorBar)
	form.SetButtonTextColor(ColorTitle)
	form.SetBorder(true)
	form.SetBorderColor(ColorBorder)
	form.SetTitle(title)
	form.SetTitleColor(ColorTitle)
}

func newField(label string, masked bool) *tview.InputField {
	field := tview.NewInputField()
	field.SetLabel(label)
	field.SetFieldWidth(30)
	field.SetBackgroundColor(ColorBg)
	if masked {
		field.SetMaskCharacter('*')
	}
	return field
}

func newErrorLine() *tview.TextView {
	line := tview.NewTextView()
	line.SetBackgroundColor(ColorBg)
	line.SetTextColor(tcell.ColorRed)
	line.SetTextAlign(tview.AlignCenter)
	return line
}

// centered puts p in a fixed size box in the middle of the screen.
func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(p, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)
}

func (a *App) createAuthPage() tview.Primitive {
	a.loginForm = tview.NewForm()
	styleForm(a.loginForm, " parley: Login ")
	a.loginEmail = newField("Email: ", false)
	a.loginPassword = newField("Password: ", true)
	a.loginError = newErrorLine()
	a.loginForm.AddFormItem(a.loginEmail)
	a.loginForm.AddFormItem(a.loginPassword)
	a.loginForm.AddButton("Login", func() {
		email, password := a.loginEmail.GetText(), a.loginPassword.GetText()
		a.loginError.SetText("Signing in...")
		a.do("login", func(ctx context.Context) error {
			return a.ctrl.Login(ctx, email, password)
		})
	})
	a.loginForm.AddButton("Sign up", func() {
		if a.ctrl != nil {
			a.ctrl.ShowSignup()
		}
	})
	a.loginForm.AddButton("Quit", a.quit)

	a.signupForm = tview.NewForm()
	styleForm(a.signupForm, " parley: Sign up ")
	a.signupName = newField("Name: ", false)
	a.signupEmail = newField("Email: ", false)
	a.signupPass = newField("Password: ", true)
	a.signupError = newErrorLine()
	a.signupForm.AddFormItem(a.signupName)
	a.signupForm.AddFormItem(a.signupEmail)
	a.signupForm.AddFormItem(a.signupPass)
	a.signupForm.AddButton("Sign up", func() {
		name, email, password := a.signupName.GetText(), a.signupEmail.GetText(), a.signupPass.GetText()
		a.signupError.SetText("Creating account...")
		a.do("signup", func(ctx context.Context) error {
			return a.ctrl.Signup(ctx, name, email, password)
		})
	})
	a.signupForm.AddButton("Back to login", func() {
		if a.ctrl != nil {
			a.ctrl.ShowLogin()
		}
	})
	a.signupForm.AddButton("Quit", a.quit)

	loginBox := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.loginForm, 0, 1, true).
		AddItem(a.loginError, 1, 0, false)
	signupBox := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.signupForm, 0, 1, true).
		AddItem(a.signupError, 1, 0, false)

	a.authPages = tview.NewPages()
	a.authPages.AddPage(chat.FormLogin.String(), centered(loginBox, 54, 12), true, true)
	a.authPages.AddPage(chat.FormSignup.String(), centered(signupBox, 54, 14), true, false)

	hint := tview.NewTextView()
	hint.SetBackgroundColor(ColorBar)
	hint.SetTextColor(ColorTitle)
	hint.SetTextAlign(tview.AlignCenter)
	hint.SetText(" F2:Login/Sign up | F10:Quit ")

	page := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.authPages, 0, 1, true).
		AddItem(hint, 1, 0, false)

	page.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF2:
			if a.ctrl == nil {
				return nil
			}
			if a.form == chat.FormLogin {
				a.ctrl.ShowSignup()
			} else {
				a.ctrl.ShowLogin()
			}
			return nil
		case tcell.KeyF10, tcell.KeyEsc:
			a.quit()
			return nil
		}
		return event
	})
	return page
}

func (a *App) currentForm() *tview.Form {
	if a.form == chat.FormSignup {
		return a.signupForm
	}
	return a.loginForm
}

func (a *App) ShowForm(form chat.Form) {
	a.queue(func() {
		a.form = form
		a.loginError.SetText("")
		a.signupError.SetText("")
		a.authPages.SwitchToPage(form.String())
		a.app.SetFocus(a.currentForm())
	})
}

func (a *App) ShowAuthError(form chat.Form, text string) {
	a.queue(func() {
		if form == chat.FormSignup {
			a.signupError.SetText(text)
			return
		}
		a.loginError.SetText(text)
	})
}

func (a *App) ShowAuth() {
	a.queue(func() {
		a.stopStatusTicker()
		a.pages.RemovePage(pageHelp)
		a.pages.RemovePage(pageDialog)
		a.pages.SwitchToPage(pageAuth)
		a.app.SetFocus(a.currentForm())
	})
}

// ClearLoginFields empties the login email and password.
func (a *App) ClearLoginFields() {
	a.queue(func() {
		a.loginEmail.SetText("")
		a.loginPassword.SetText("")
	})
}
