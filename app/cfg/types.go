package cfg

import "time"

type Cfg struct {
	// Storage
	DatabaseURL string

	// Marketplace
	ClientID          string
	ClientSecret      string
	MarketplaceID     string
	RequestsPerSecond float64
	HTTPTimeout       time.Duration

	// Notifications
	NotificationsEnabled bool
	NtfyServer           string
	NtfyTopic            string
	WebserviceURL        string

	// HTTP server
	Port         string
	APIAccessKey string

	Debug   bool
	Version string
}
