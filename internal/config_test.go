package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/intelboard/pkg/config"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Auth.SessionSecret = "0123456789abcdef0123"
	return cfg
}

func TestDefaultConfig_NeedsSecret(t *testing.T) {
	t.Setenv("INTELBOARD_SESSION_SECRET", "")
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("default config without session secret should fail")
	}
	if !strings.Contains(err.Error(), "SessionSecret") {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("config with secret should pass: %v", err)
	}
}

func TestAuthConfig_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.SessionSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("short secret should fail validation")
	}
}

func TestAuthConfig_BootstrapOperator(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.BootstrapOperator = OperatorConfig{Email: "ops@example.com", Password: "correct-horse"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid operator should pass: %v", err)
	}

	cfg.Auth.BootstrapOperator.Email = "not-an-email"
	if err := cfg.Validate(); err == nil {
		t.Error("malformed operator email should fail")
	}

	cfg.Auth.BootstrapOperator = OperatorConfig{Email: "ops@example.com"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bootstrap_operator") {
		t.Errorf("operator without password: %v", err)
	}
}

func TestGitHubConfig_APIURL(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.APIURL = "api.github.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("api_url without scheme should fail")
	}
}

func TestInboxConfig_PathRequiredWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Inbox = InboxConfig{Enabled: false, Path: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled inbox needs no path: %v", err)
	}
	cfg.Inbox.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled inbox without path should fail")
	}
}

func TestDefaultsConfig_RejectsUnknownFrequency(t *testing.T) {
	cfg := validConfig()
	cfg.Defaults.Frequency = "Fortnightly"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown frequency should fail")
	}
}

func TestDefaultConfig_SecretFromEnv(t *testing.T) {
	t.Setenv("INTELBOARD_SESSION_SECRET", "env-secret-0123456789")
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("secret from env should pass: %v", err)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_SESSION_SECRET", "from-the-environment-123")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  http:
    port: 9090
auth:
  session_secret: ${TEST_SESSION_SECRET}
  session_ttl: 2h
status:
  dispatch_reset: 1s
inbox:
  enabled: true
  path: /tmp/inbox
defaults:
  frequency: Weekly
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("address = %s", cfg.App.HTTP.Address())
	}
	if cfg.Auth.SessionSecret != "from-the-environment-123" {
		t.Errorf("secret = %q", cfg.Auth.SessionSecret)
	}
	if cfg.Auth.SessionTTL != 2*time.Hour {
		t.Errorf("ttl = %s", cfg.Auth.SessionTTL)
	}
	if cfg.Status.DispatchReset != time.Second || cfg.Status.ExportReset != 3*time.Second {
		t.Errorf("status = %+v", cfg.Status)
	}
	if cfg.Defaults.Frequency != "Weekly" || cfg.Defaults.IntelligenceFreshness != "1 Month" {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.GitHub.WorkflowFile != "intelligence.yml" {
		t.Errorf("workflow file = %s", cfg.GitHub.WorkflowFile)
	}
}
