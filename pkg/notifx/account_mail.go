package notifx

import (
	"context"
	"time"
)

const (
	TemplatePasswordRecovery = "password_recovery"
	TemplateWelcome          = "welcome"
)

var accountTemplates = map[string]string{
	TemplatePasswordRecovery: `<p>Hello {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid for {{.ValidFor}}.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>`,

	TemplateWelcome: `<p>Hello {{.Name}},</p>
<p>An account was created for you in {{.Organization}}.</p>
{{if .Link}}<p><a href="{{.Link}}">Set your password</a></p>{{end}}`,
}

// RecoveryEmail is the data of the password recovery template
type RecoveryEmail struct {
	Name     string
	Link     string
	ValidFor time.Duration
}

// WelcomeEmail is the data of the welcome template
type WelcomeEmail struct {
	Name         string
	Organization string
	Link         string
}

// SendPasswordRecovery mails a recovery link to
func (c *Client) SendPasswordRecovery(ctx context.Context, to string, data RecoveryEmail) error {
	return c.SendTemplatedEmail(ctx, TemplatePasswordRecovery, data, EmailMessage{
		To:      []string{to},
		Subject: "Reset your password",
	}, WithTags(map[string]string{"kind": TemplatePasswordRecovery}))
}

// SendWelcome mails a newly created user
func (c *Client) SendWelcome(ctx context.Context, to string, data WelcomeEmail) error {
	return c.SendTemplatedEmail(ctx, TemplateWelcome, data, EmailMessage{
		To:      []string{to},
		Subject: "Welcome to " + data.Organization,
	}, WithTags(map[string]string{"kind": TemplateWelcome}))
}
