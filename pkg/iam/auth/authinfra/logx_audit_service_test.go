package authinfra_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	cfg := logx.DefaultConfig()
	cfg.Format = logx.FormatJSON
	cfg.Output = &buf

	previous := logx.GetDefaultLogger()
	logx.SetDefaultLogger(logx.NewLogger(cfg))
	t.Cleanup(func() { logx.SetDefaultLogger(previous) })
	return &buf
}

func TestLogxAuditService_LoginFailure(t *testing.T) {
	buf := captureLogs(t)
	ctx := context.WithValue(context.Background(), kernel.RequestIDKey, "req-1")

	authinfra.NewLogxAuditService().LogLoginAttempt(ctx, "ann@example.com", auth.MethodPassword, false, iam.WrongTfaCode)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if line["audit_event"] != "login_attempt" || line["failure"] != string(iam.WrongTfaCode) {
		t.Fatalf("unexpected audit line %v", line)
	}
	if line["level"] != "WARN" || line["request_id"] != "req-1" {
		t.Fatalf("expected WARN with request id, got %v", line)
	}
}

func TestLogxAuditService_RoleAssigned(t *testing.T) {
	buf := captureLogs(t)

	authinfra.NewLogxAuditService().LogRoleAssigned(context.Background(), "admin@example.com", "ann@example.com", "ACME", "USER")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if line["audit_event"] != "role_assigned" || line["organization_id"] != "ACME" {
		t.Fatalf("unexpected audit line %v", line)
	}
}
