package internal

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/intelboard/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
	httpPattern  = regexp.MustCompile(`^https?://\S+$`)
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	GitHub   GitHubConfig      `yaml:"github"`
	Export   ExportConfig      `yaml:"export"`
	Inbox    InboxConfig       `yaml:"inbox"`
	Status   StatusConfig      `yaml:"status"`
	Defaults DefaultsConfig    `yaml:"defaults"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.SQLite, &c.Auth, &c.GitHub, &c.Export, &c.Inbox, &c.Status, &c.Defaults,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// OperatorConfig is an operator account created at startup if missing.
type OperatorConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Enabled reports whether a bootstrap operator is configured.
func (c *OperatorConfig) Enabled() bool {
	return c.Email != ""
}

// AuthConfig holds session and ingest authentication settings.
//
// IngestToken guards the /ingest routes. An empty token disables them.
type AuthConfig struct {
	SessionSecret     string         `yaml:"session_secret"`
	SessionTTL        time.Duration  `yaml:"session_ttl"`
	CookieName        string         `yaml:"cookie_name"`
	CookieSecure      bool           `yaml:"cookie_secure"`
	IngestToken       string         `yaml:"ingest_token"`
	BootstrapOperator OperatorConfig `yaml:"bootstrap_operator"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SessionSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.SessionTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.CookieName, validation.Required),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	op := &c.BootstrapOperator
	if !op.Enabled() {
		return nil
	}
	if err := validation.ValidateStruct(op,
		validation.Field(&op.Email, validation.Required, validation.Match(emailPattern)),
		validation.Field(&op.Password, validation.Required, validation.Length(8, 0)),
	); err != nil {
		return fmt.Errorf("auth: bootstrap_operator: %w", err)
	}
	return nil
}

// GitHubConfig configures the CI trigger client.
type GitHubConfig struct {
	APIURL       string        `yaml:"api_url"`
	WorkflowFile string        `yaml:"workflow_file"`
	Ref          string        `yaml:"ref"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Validate validates the GitHub configuration.
func (c *GitHubConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.Required, validation.Match(httpPattern)),
		validation.Field(&c.WorkflowFile, validation.Required),
		validation.Field(&c.Ref, validation.Required),
		validation.Field(&c.Timeout, validation.Required),
	); err != nil {
		return fmt.Errorf("github: %w", err)
	}
	return nil
}

// ExportConfig configures PDF export.
//
// ChromeURL points at the DevTools websocket of a running browser; empty
// launches a local headless Chrome. ArchivePath keeps a copy of every
// exported PDF when set.
type ExportConfig struct {
	ChromeURL   string        `yaml:"chrome_url"`
	Timeout     time.Duration `yaml:"timeout"`
	NoSandbox   bool          `yaml:"no_sandbox"`
	ArchivePath string        `yaml:"archive_path"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required),
	); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// InboxConfig configures the Markdown report inbox watcher.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	return nil
}

// StatusConfig holds the delays after which transient statuses return to idle.
type StatusConfig struct {
	DispatchReset time.Duration `yaml:"dispatch_reset"`
	ExportReset   time.Duration `yaml:"export_reset"`
}

// Validate validates the status configuration.
func (c *StatusConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DispatchReset, validation.Required),
		validation.Field(&c.ExportReset, validation.Required),
	); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}

// DefaultsConfig supplies SystemConfig values shown until the operator saves
// settings.
type DefaultsConfig struct {
	Frequency             models.Frequency `yaml:"frequency"`
	IntelligenceFreshness models.Freshness `yaml:"intelligence_freshness"`
	GHRepo                string           `yaml:"gh_repo"`
}

// Validate validates the defaults.
func (c *DefaultsConfig) Validate() error {
	freqs := make([]any, len(models.Frequencies))
	for i, f := range models.Frequencies {
		freqs[i] = f
	}
	fresh := make([]any, len(models.Freshnesses))
	for i, f := range models.Freshnesses {
		fresh[i] = f
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Frequency, validation.Required, validation.In(freqs...)),
		validation.Field(&c.IntelligenceFreshness, validation.Required, validation.In(fresh...)),
	); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

// SystemConfig converts the defaults to the record used before the first save.
func (c *DefaultsConfig) SystemConfig() models.SystemConfig {
	return models.SystemConfig{
		Frequency:             c.Frequency,
		IntelligenceFreshness: c.IntelligenceFreshness,
		GHRepo:                c.GHRepo,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./intelboard.db",
		},
		Auth: AuthConfig{
			SessionSecret: os.Getenv("INTELBOARD_SESSION_SECRET"),
			IngestToken:   os.Getenv("INTELBOARD_INGEST_TOKEN"),
			SessionTTL:    12 * time.Hour,
			CookieName:    "intelboard_session",
		},
		GitHub: GitHubConfig{
			APIURL:       "https://api.github.com",
			WorkflowFile: "intelligence.yml",
			Ref:          "main",
			Timeout:      15 * time.Second,
		},
		Export: ExportConfig{
			Timeout: 30 * time.Second,
		},
		Inbox: InboxConfig{
			Path: "./inbox",
		},
		Status: StatusConfig{
			DispatchReset: 5 * time.Second,
			ExportReset:   3 * time.Second,
		},
		Defaults: DefaultsConfig{
			Frequency:             models.FrequencyDaily,
			IntelligenceFreshness: models.Freshness1Month,
		},
	}
}
