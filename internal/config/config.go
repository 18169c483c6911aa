package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the doorphone client configuration.
type Config struct {
	// Backend settings
	BaseURL    string // REST backend base URL (JSON:API, /v3 prefix added per request)
	AccountURL string // OAuth account server base URL
	LogLevel   string

	// Device identity, used for credential fetches. Generated if empty.
	DeviceUUID string

	// Push webhook receiver settings
	WebhookAddr string

	// Bearer token for backend requests.
	AccessToken string

	// SIP provider settings
	SIPBindAddr  string
	SIPPort      int
	SIPTransport string
	SIPDomain    string // domain the door panels register under

	// WebRTC provider settings
	STUNServers []string
	SignalURL   string // SDP offer/answer exchange endpoint

	HTTPTimeout time.Duration
}

// Load loads configuration from command line flags and environment variables.
// Environment variables take precedence over flags.
func Load() *Config {
	cfg := &Config{
		HTTPTimeout: 15 * time.Second,
	}

	flag.StringVar(&cfg.BaseURL, "backend", "https://api.doorphone.example", "Backend base URL")
	flag.StringVar(&cfg.AccountURL, "account", "https://accounts.doorphone.example", "Account server base URL")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.DeviceUUID, "device", "", "Device UUID (generated if empty)")
	flag.StringVar(&cfg.WebhookAddr, "webhook", ":8089", "Push webhook listen address")
	flag.StringVar(&cfg.SIPBindAddr, "sip-bind", "0.0.0.0", "SIP bind address")
	flag.IntVar(&cfg.SIPPort, "sip-port", 5066, "SIP listening port")
	flag.StringVar(&cfg.SIPTransport, "sip-transport", "udp", "SIP transport (udp, tcp)")
	flag.StringVar(&cfg.SIPDomain, "sip-domain", "", "SIP domain for panel lines")
	flag.StringVar(&cfg.SignalURL, "signal", "", "WebRTC signaling exchange URL")

	var stun string
	flag.StringVar(&stun, "stun", "stun:stun.l.google.com:19302", "STUN servers (comma-separated)")

	flag.Parse()

	cfg.STUNServers = splitList(stun)

	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("ACCOUNT_URL"); v != "" {
		cfg.AccountURL = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DEVICE_UUID"); v != "" {
		cfg.DeviceUUID = v
	}
	if v := os.Getenv("WEBHOOK_ADDR"); v != "" {
		cfg.WebhookAddr = v
	}
	if v := os.Getenv("SIP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.SIPPort = p
		}
	}
	if v := os.Getenv("STUN_SERVERS"); v != "" {
		cfg.STUNServers = splitList(v)
	}
	if v := os.Getenv("ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv("SIP_DOMAIN"); v != "" {
		cfg.SIPDomain = v
	}
	if v := os.Getenv("SIGNAL_URL"); v != "" {
		cfg.SignalURL = v
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
