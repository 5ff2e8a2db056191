package logx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
)

func newJSONLogger(buf *bytes.Buffer, level logx.Level) *logx.Logger {
	cfg := logx.DefaultConfig()
	cfg.Format = logx.FormatJSON
	cfg.Output = buf
	cfg.Level = level
	return logx.NewLogger(cfg)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out); err != nil {
		t.Fatalf("invalid json line %q: %v", buf.String(), err)
	}
	return out
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, logx.LevelInfo)

	l.WithFields(logx.Fields{
		"email":    "ann@example.com",
		"Password": "hunter2",
		"api_key":  "k-1",
	}).Info("login")

	line := decodeLine(t, &buf)
	if line["email"] != "ann@example.com" {
		t.Fatalf("expected email to pass through, got %v", line["email"])
	}
	if line["Password"] != "[REDACTED]" || line["api_key"] != "[REDACTED]" {
		t.Fatalf("expected secrets redacted, got %v", line)
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatal("password leaked into output")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, logx.LevelWarn)

	l.WithField("k", "v").Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	l.WithField("k", "v").Warn("kept")
	if decodeLine(t, &buf)["msg"] != "kept" {
		t.Fatal("expected warn entry")
	}
}

func TestEntry_WithContext(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, logx.LevelInfo)
	logx.SetDefaultLogger(l)
	defer logx.SetDefaultLogger(logx.NewLogger(logx.DefaultConfig()))

	ctx := context.WithValue(context.Background(), kernel.RequestIDKey, "req-1")
	ctx = kernel.WithAuth(ctx, &kernel.AuthContext{
		Email:          "ann@example.com",
		OrganizationID: kernel.OrganizationID("ACME"),
	})

	logx.WithContext(ctx).Info("scoped")

	line := decodeLine(t, &buf)
	if line["request_id"] != "req-1" || line["user_email"] != "ann@example.com" || line["organization_id"] != "ACME" {
		t.Fatalf("context fields missing: %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logx.Level{
		"debug":   logx.LevelDebug,
		"WARNING": logx.LevelWarn,
		"off":     logx.LevelOff,
		"bogus":   logx.LevelInfo,
	}
	for in, want := range cases {
		if got := logx.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
