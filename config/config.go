package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// DefaultPath is where the service looks for its TOML file.
	DefaultPath = "mailreminder.toml"

	defaultPort            = "3000"
	defaultCredentialsFile = "credentials.json"
	defaultConcurrency     = 10
	defaultConsentTimeout  = 5 * time.Minute
	defaultWebhookTimeout  = 10 * time.Second
	defaultMaxAttempts     = 3
	defaultUsername        = "Gmail Notifier"
	defaultEventName       = "Unreplied Emails"
	defaultStatus          = "warning"
)

// Config is the full service configuration.
type Config struct {
	HTTP       HTTPConfig       `toml:"http"`
	Gmail      GmailConfig      `toml:"gmail"`
	Webhook    WebhookConfig    `toml:"webhook"`
	Descriptor DescriptorConfig `toml:"descriptor"`
	Filters    Filters          `toml:"filters"`
	Storage    StorageConfig    `toml:"storage"`
	Log        LogConfig        `toml:"log"`
}

type HTTPConfig struct {
	Listen string `toml:"listen"`
	// RootDescriptor also serves the descriptor at /integration.json.
	RootDescriptor bool `toml:"root_descriptor"`
	// DisableUnreplied turns off GET /api/gmail/unreplied.
	DisableUnreplied bool `toml:"disable_unreplied_route"`
}

type GmailConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	// Concurrency bounds the number of parallel message fetches.
	Concurrency    int    `toml:"concurrency"`
	RawConsentWait string `toml:"consent_timeout"`

	ConsentTimeout time.Duration `toml:"-"`
	// CredentialsJSON and TokenJSON come from GOOGLE_CREDENTIALS and GOOGLE_TOKEN.
	CredentialsJSON []byte `toml:"-"`
	TokenJSON       []byte `toml:"-"`
}

type WebhookConfig struct {
	// URL is the webhook receiver. Empty disables notifications.
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	EventName   string `toml:"event_name"`
	Status      string `toml:"status"`
	MaxAttempts int    `toml:"max_attempts"`
	RawTimeout  string `toml:"timeout"`

	Timeout time.Duration `toml:"-"`
}

type DescriptorConfig struct {
	// Variant is either "interval" or "full".
	Variant         string `toml:"variant"`
	AppURL          string `toml:"app_url"`
	AppName         string `toml:"app_name"`
	AppDescription  string `toml:"app_description"`
	AppLogo         string `toml:"app_logo"`
	BackgroundColor string `toml:"background_color"`
	Author          string `toml:"author"`
	Interval        string `toml:"interval"`
}

type StorageConfig struct {
	Dir string `toml:"dir"`
}

type LogConfig struct {
	Output   string `toml:"output"`
	Severity string `toml:"severity"`
}

// Load reads the TOML file at path (a missing file means "all defaults"),
// applies .env and process environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, trace.Wrap(err, "loading .env")
	}

	conf := &Config{}
	if _, err := os.Stat(path); err == nil {
		t, err := toml.LoadFile(path)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if err := t.Unmarshal(conf); err != nil {
			return nil, trace.Wrap(err)
		}
	} else if !os.IsNotExist(err) {
		return nil, trace.ConvertSystemError(err)
	} else {
		log.WithField("path", path).Debug("Config file not found, using defaults")
	}

	if err := conf.ApplyEnv(os.Getenv); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return conf, nil
}

// ApplyEnv applies PORT, GOOGLE_CREDENTIALS and GOOGLE_TOKEN.
// The JSON variables treat "" and "{}" as unset. Malformed JSON is an error,
// well-formed JSON that cannot be used is logged and skipped.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return trace.BadParameter("PORT must be a port number, got %q", port)
		}
		c.HTTP.Listen = ":" + port
	}

	if raw := envJSON(getenv("GOOGLE_CREDENTIALS")); raw != "" {
		if !gjson.Valid(raw) {
			return trace.BadParameter("GOOGLE_CREDENTIALS is not valid JSON")
		}
		if gjson.Get(raw, "installed.client_id").Exists() || gjson.Get(raw, "web.client_id").Exists() {
			c.Gmail.CredentialsJSON = []byte(raw)
		} else {
			log.Warn("GOOGLE_CREDENTIALS holds no installed or web OAuth client, ignoring it.")
		}
	}

	if raw := envJSON(getenv("GOOGLE_TOKEN")); raw != "" {
		if !gjson.Valid(raw) {
			return trace.BadParameter("GOOGLE_TOKEN is not valid JSON")
		}
		if gjson.Get(raw, "refresh_token").String() != "" && gjson.Get(raw, "client_id").String() != "" {
			c.Gmail.TokenJSON = []byte(raw)
		} else {
			log.Warn("GOOGLE_TOKEN has no client_id and refresh_token, ignoring it.")
		}
	}
	return nil
}

func envJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "{}" {
		return ""
	}
	return raw
}

// CheckAndSetDefaults checks the config struct for any logical errors, and sets default values
// if some values are missing.
func (c *Config) CheckAndSetDefaults() error {
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":" + defaultPort
	}

	if c.Gmail.CredentialsFile == "" {
		c.Gmail.CredentialsFile = defaultCredentialsFile
	}
	if c.Gmail.Concurrency <= 0 {
		c.Gmail.Concurrency = defaultConcurrency
	}
	c.Gmail.ConsentTimeout = defaultConsentTimeout
	if c.Gmail.RawConsentWait != "" {
		d, err := time.ParseDuration(c.Gmail.RawConsentWait)
		if err != nil {
			return trace.BadParameter("invalid gmail.consent_timeout %q: %v", c.Gmail.RawConsentWait, err)
		}
		c.Gmail.ConsentTimeout = d
	}

	if c.Webhook.Username == "" {
		c.Webhook.Username = defaultUsername
	}
	if c.Webhook.EventName == "" {
		c.Webhook.EventName = defaultEventName
	}
	if c.Webhook.Status == "" {
		c.Webhook.Status = defaultStatus
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = defaultMaxAttempts
	}
	c.Webhook.Timeout = defaultWebhookTimeout
	if c.Webhook.RawTimeout != "" {
		d, err := time.ParseDuration(c.Webhook.RawTimeout)
		if err != nil {
			return trace.BadParameter("invalid webhook.timeout %q: %v", c.Webhook.RawTimeout, err)
		}
		c.Webhook.Timeout = d
	}

	switch c.Descriptor.Variant {
	case "":
		c.Descriptor.Variant = "interval"
	case "interval", "full":
	default:
		return trace.BadParameter("descriptor.variant must be \"interval\" or \"full\", got %q", c.Descriptor.Variant)
	}
	if c.Descriptor.AppURL == "" {
		if strings.HasPrefix(c.HTTP.Listen, ":") {
			c.Descriptor.AppURL = "http://localhost" + c.HTTP.Listen
		} else {
			c.Descriptor.AppURL = "http://" + c.HTTP.Listen
		}
	}
	c.Descriptor.AppURL = strings.TrimSuffix(c.Descriptor.AppURL, "/")

	if c.Storage.Dir == "" {
		c.Storage.Dir = "."
	}

	if c.Log.Output == "" {
		c.Log.Output = "stderr"
	}
	if c.Log.Severity == "" {
		c.Log.Severity = "info"
	}
	return nil
}
