package notifxses_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/notifx"
	"github.com/Abraxas-365/keystone/pkg/notifx/notifxses"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSendEmailBuildsInput(t *testing.T) {
	api := &fakeSES{}
	p := notifxses.NewSESProvider(api, "noreply@keystone.dev")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{
		To:       []string{"ann@example.com"},
		Subject:  "Hi",
		HTMLBody: "<p>hi</p>",
		ReplyTo:  "support@keystone.dev",
	}, notifx.WithConfigID("transactional"), notifx.WithTags(map[string]string{"kind": "welcome"}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	in := api.input
	if aws.ToString(in.Source) != "noreply@keystone.dev" {
		t.Fatalf("source = %q", aws.ToString(in.Source))
	}
	if aws.ToString(in.ConfigurationSetName) != "transactional" {
		t.Fatalf("config set = %q", aws.ToString(in.ConfigurationSetName))
	}
	if len(in.Tags) != 1 || aws.ToString(in.Tags[0].Name) != "kind" {
		t.Fatalf("tags = %+v", in.Tags)
	}
	if in.Message.Body.Text != nil || aws.ToString(in.Message.Body.Html.Data) != "<p>hi</p>" {
		t.Fatalf("unexpected body %+v", in.Message.Body)
	}
	if len(in.ReplyToAddresses) != 1 {
		t.Fatalf("reply-to = %v", in.ReplyToAddresses)
	}
}

func TestSendEmailWrapsFailure(t *testing.T) {
	p := notifxses.NewSESProvider(&fakeSES{err: errors.New("throttled")}, "noreply@keystone.dev")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@b.c"}, Subject: "x"})
	if !errx.HasCode(err, notifxses.ErrSendFailed) {
		t.Fatalf("expected send failure, got %v", err)
	}
}
