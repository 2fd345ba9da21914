package notifications

import (
	"bytes"
	"fmt"
	"html/template"
)

const (
	TemplateConfirmEmail  = "confirm_email"
	TemplateResetPassword = "reset_password"
)

// Email is a rendered message ready for a Mailer
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

type content struct {
	subject string
	html    *template.Template
	text    string
}

var contents = map[string]content{
	TemplateConfirmEmail: {
		subject: "Confirm your email",
		html: template.Must(template.New(TemplateConfirmEmail).Parse(`
			<h2>Confirm your email</h2>
			<p>Hi,</p>
			<p>Follow the link below to confirm {{.Recipient}}:</p>
			<p><a href="{{.Link}}">{{.Link}}</a></p>
			<p>If you did not sign up, ignore this message.</p>
		`)),
		text: "Hi,\n\nFollow the link to confirm your email: %s\n\nIf you did not sign up, ignore this message.",
	},
	TemplateResetPassword: {
		subject: "Reset your password",
		html: template.Must(template.New(TemplateResetPassword).Parse(`
			<h2>Reset your password</h2>
			<p>Hi,</p>
			<p>Someone asked to reset the password for {{.Recipient}}.</p>
			<p><a href="{{.Link}}">Choose a new password</a></p>
			<p>If it was not you, ignore this message.</p>
		`)),
		text: "Hi,\n\nFollow the link to choose a new password: %s\n\nIf it was not you, ignore this message.",
	},
}

// TemplateFor returns the default template of kind
func TemplateFor(kind Kind) string {
	if kind == KindResetPassword {
		return TemplateResetPassword
	}
	return TemplateConfirmEmail
}

// Render turns a queued message into an Email. An unknown template name
// falls back to the default template of the message kind.
func Render(msg *ConfirmationMessage) (*Email, error) {
	c, ok := contents[msg.Template]
	if !ok {
		c = contents[TemplateFor(msg.Kind)]
	}

	link := msg.Link()
	var html bytes.Buffer
	err := c.html.Execute(&html, struct {
		Recipient string
		Link      string
	}{
		Recipient: msg.Recipient,
		Link:      link,
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", msg.Template, err)
	}

	return &Email{
		To:       msg.Recipient,
		Subject:  c.subject,
		HTMLBody: html.String(),
		TextBody: fmt.Sprintf(c.text, link),
	}, nil
}
