package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// Options are the global command line options. Every option can also be set
// through its environment variable.
type Options struct {
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" default:"watchlist.db" description:"SQLite file path or postgres:// URL"`

	ClientID          string  `long:"ebay-client-id" env:"EBAY_CLIENT_ID" description:"eBay application client id"`
	ClientSecret      string  `long:"ebay-client-secret" env:"EBAY_CLIENT_SECRET" description:"eBay application client secret"`
	MarketplaceID     string  `long:"ebay-marketplace-id" env:"EBAY_MARKETPLACE_ID" default:"EBAY_GB" description:"eBay marketplace id"`
	RequestsPerSecond float64 `long:"ebay-requests-per-second" env:"EBAY_REQUESTS_PER_SECOND" default:"5" description:"Upper bound on Browse API calls per second (0 disables)"`
	HTTPTimeout       int     `long:"http-timeout" env:"HTTP_TIMEOUT" default:"30" description:"Timeout in seconds for outbound HTTP requests"`

	EnableNotifications bool   `long:"enable-notifications" env:"ENABLE_NOTIFICATIONS" description:"Publish new listings to ntfy"`
	NtfyServer          string `long:"ntfy-server" env:"NTFY_SERVER" default:"https://ntfy.sh" description:"ntfy server URL"`
	NtfyTopic           string `long:"ntfy-topic" env:"NTFY_TOPIC_ID" description:"ntfy topic for new listing notifications"`
	WebserviceURL       string `long:"webservice-url" env:"WEBSERVICE_URL" description:"Public base URL of this service (e.g., https://watch.example.com)"`

	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Resolve validates the options and freezes them into a Cfg.
func (o *Options) Resolve() (*Cfg, error) {
	c := &Cfg{
		DatabaseURL:          strings.TrimSpace(o.DatabaseURL),
		ClientID:             strings.TrimSpace(o.ClientID),
		ClientSecret:         strings.TrimSpace(o.ClientSecret),
		MarketplaceID:        strings.TrimSpace(o.MarketplaceID),
		RequestsPerSecond:    o.RequestsPerSecond,
		HTTPTimeout:          time.Duration(o.HTTPTimeout) * time.Second,
		NotificationsEnabled: o.EnableNotifications,
		NtfyServer:           strings.TrimRight(strings.TrimSpace(o.NtfyServer), "/"),
		NtfyTopic:            strings.TrimSpace(o.NtfyTopic),
		WebserviceURL:        strings.TrimRight(strings.TrimSpace(o.WebserviceURL), "/"),
		Port:                 strings.TrimSpace(o.Port),
		APIAccessKey:         o.APIAccessKey,
		Debug:                o.Debug,
		Version:              GetVersion(),
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}
	if c.MarketplaceID == "" {
		return nil, fmt.Errorf("marketplace id must not be empty")
	}
	if c.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests per second must not be negative, got %v", c.RequestsPerSecond)
	}
	if o.HTTPTimeout < 1 {
		return nil, fmt.Errorf("HTTP timeout must be at least 1 second, got %d", o.HTTPTimeout)
	}

	if c.NotificationsEnabled {
		if c.NtfyTopic == "" {
			return nil, fmt.Errorf("notifications are enabled but NTFY_TOPIC_ID is not set")
		}
		if err := checkURL("ntfy server", c.NtfyServer); err != nil {
			return nil, err
		}
	}
	if c.WebserviceURL != "" {
		if err := checkURL("webservice URL", c.WebserviceURL); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// RequireMarketplace reports missing marketplace credentials. Only commands
// that call the Browse API need them.
func (c *Cfg) RequireMarketplace() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "EBAY_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "EBAY_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing marketplace credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}
