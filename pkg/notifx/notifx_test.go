package notifx_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/notifx"
)

type captureSender struct {
	sent []notifx.EmailMessage
	opts []notifx.SendOptions
}

func (c *captureSender) SendEmail(_ context.Context, msg notifx.EmailMessage, opts ...notifx.Option) error {
	c.sent = append(c.sent, msg)
	c.opts = append(c.opts, notifx.ApplyOptions(opts))
	return nil
}

func TestSendEmailValidates(t *testing.T) {
	c := notifx.NewClient(&captureSender{}, "noreply@keystone.dev")
	ctx := context.Background()

	cases := []notifx.EmailMessage{
		{Subject: "x"},
		{To: []string{"not-an-address"}, Subject: "x"},
		{To: []string{"a@b.c"}},
	}
	for _, msg := range cases {
		if err := c.SendEmail(ctx, msg); !errx.HasCode(err, notifx.ErrInvalidMessage) {
			t.Fatalf("%+v: expected invalid message, got %v", msg, err)
		}
	}
}

func TestSendEmailFillsSender(t *testing.T) {
	s := &captureSender{}
	c := notifx.NewClient(s, "noreply@keystone.dev")

	if err := c.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@b.c"}, Subject: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if s.sent[0].From != "noreply@keystone.dev" {
		t.Fatalf("from = %q", s.sent[0].From)
	}
}

func TestPasswordRecoveryTemplate(t *testing.T) {
	s := &captureSender{}
	c := notifx.NewClient(s, "noreply@keystone.dev")

	err := c.SendPasswordRecovery(context.Background(), "ann@example.com", notifx.RecoveryEmail{
		Name:     "Ann",
		Link:     "https://app.example.com/reset?token=abc",
		ValidFor: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := s.sent[0]
	if !strings.Contains(msg.HTMLBody, "token=abc") || !strings.Contains(msg.HTMLBody, "30m0s") {
		t.Fatalf("unexpected body %q", msg.HTMLBody)
	}
	if s.opts[0].Tags["kind"] != notifx.TemplatePasswordRecovery {
		t.Fatalf("tags = %v", s.opts[0].Tags)
	}
}

func TestWelcomeTemplateEscapesInput(t *testing.T) {
	s := &captureSender{}
	c := notifx.NewClient(s, "noreply@keystone.dev")

	err := c.SendWelcome(context.Background(), "ann@example.com", notifx.WelcomeEmail{Name: "<b>Ann</b>", Organization: "Acme"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	body := s.sent[0].HTMLBody
	if strings.Contains(body, "<b>Ann</b>") {
		t.Fatalf("name not escaped: %q", body)
	}
	if strings.Contains(body, "Set your password") {
		t.Fatalf("link block rendered without link: %q", body)
	}
	if s.sent[0].Subject != "Welcome to Acme" {
		t.Fatalf("subject = %q", s.sent[0].Subject)
	}
}

func TestUnknownTemplate(t *testing.T) {
	c := notifx.NewClient(&captureSender{}, "noreply@keystone.dev")
	err := c.SendTemplatedEmail(context.Background(), "missing", nil, notifx.EmailMessage{To: []string{"a@b.c"}, Subject: "x"})
	if !errx.HasCode(err, notifx.ErrTemplateNotFound) {
		t.Fatalf("expected template not found, got %v", err)
	}
}

func TestClientDefaultsMergeWithCallOptions(t *testing.T) {
	sender := &captureSender{}
	c := notifx.NewClient(sender, "noreply@keystone.dev").WithDefaults(
		notifx.WithConfigID("keystone-mail"),
		notifx.WithTags(map[string]string{"env": "test", "kind": "generic"}),
	)

	err := c.SendPasswordRecovery(context.Background(), "jane@acme.test", notifx.RecoveryEmail{
		Name:     "Jane",
		Link:     "https://keystone.dev/recover?token=t",
		ValidFor: time.Minute,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	so := sender.opts[0]
	if so.ConfigID != "keystone-mail" {
		t.Errorf("config id = %q", so.ConfigID)
	}
	if so.Tags["env"] != "test" || so.Tags["kind"] != notifx.TemplatePasswordRecovery {
		t.Errorf("tags = %v", so.Tags)
	}
}

func TestRegisteredTemplatesShareLayout(t *testing.T) {
	s := &captureSender{}
	c := notifx.NewClient(s, "noreply@keystone.dev")

	if err := c.RegisterTemplate("broken", "{{.Name"); !errx.HasCode(err, notifx.ErrTemplateParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if err := c.RegisterTemplate("notice", "<p>{{.}}</p>"); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := c.SendTemplatedEmail(context.Background(), "notice", "maintenance tonight", notifx.EmailMessage{To: []string{"a@b.c"}, Subject: "Notice"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	body := s.sent[0].HTMLBody
	if !strings.HasPrefix(body, "<!DOCTYPE html>") || !strings.Contains(body, "<p>maintenance tonight</p>") {
		t.Fatalf("unexpected body %q", body)
	}
}
