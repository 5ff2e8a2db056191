package notifx

import (
	"context"
	"strings"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

// Client is the main entry point for sending notifications.
type Client struct {
	provider  EmailSender
	from      string
	templates *TemplateRegistry
	defaults  []Option
}

// NewClient creates a client that sends through provider. from is used for
// messages without a sender. The account mail templates are preloaded.
func NewClient(provider EmailSender, from string) *Client {
	c := &Client{
		provider:  provider,
		from:      from,
		templates: NewTemplateRegistry(),
	}
	for name, body := range accountTemplates {
		if err := c.templates.Register(name, body); err != nil {
			panic(err)
		}
	}
	return c
}

// WithDefaults returns c applying opts to every send before per-call options
func (c *Client) WithDefaults(opts ...Option) *Client {
	c.defaults = append(c.defaults, opts...)
	return c
}

// SendEmail sends an email through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	for _, to := range msg.To {
		if !strings.Contains(to, "@") {
			return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "invalid recipient")
		}
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.from
	}
	if len(c.defaults) > 0 {
		opts = append(append([]Option{}, c.defaults...), opts...)
	}
	return c.provider.SendEmail(ctx, msg, opts...)
}

// RegisterTemplate parses and stores a named template for later use.
func (c *Client) RegisterTemplate(name, tmplString string) error {
	return c.templates.Register(name, tmplString)
}

// SendTemplatedEmail renders a template and sends the resulting email.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage, opts ...Option) error {
	body, err := c.templates.Render(templateName, data)
	if err != nil {
		return err
	}

	msg.HTMLBody = body
	return c.SendEmail(ctx, msg, opts...)
}
