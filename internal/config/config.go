// Package config loads the application configuration from a JSON file,
// environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Backend names accepted by the "backend" setting.
const (
	BackendMemory = "memory"
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
)

// Config holds the application configuration.
type Config struct {
	// UsageDescription is the justification shown to the user when calendar
	// access is requested. The authorization gate refuses to prompt without
	// it.
	UsageDescription string `json:"calendars_usage_description,omitempty"`

	Backend string `json:"backend,omitempty"`

	GoogleCredentialsPath string `json:"google_credentials_path,omitempty"`
	GoogleTokenPath       string `json:"google_token_path,omitempty"`

	CalDAVServerURL string `json:"caldav_server_url,omitempty"`
	CalDAVUsername  string `json:"caldav_username,omitempty"`
	CalDAVPassword  string `json:"caldav_password,omitempty"`
}

// Flags carries the command-line overrides into Load.
type Flags struct {
	UsageDescription      string
	Backend               string
	GoogleCredentialsPath string
	GoogleTokenPath       string
	CalDAVServerURL       string
	CalDAVUsername        string
	CalDAVPassword        string
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Load loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Backend-specific settings are validated for the selected backend.
func Load(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	applyEnv(&config.UsageDescription, "CALENDARS_USAGE_DESCRIPTION")
	applyEnv(&config.Backend, "CALENDAR_BACKEND")
	applyEnv(&config.GoogleCredentialsPath, "GOOGLE_CREDENTIALS_PATH")
	applyEnv(&config.GoogleTokenPath, "GOOGLE_TOKEN_PATH")
	applyEnv(&config.CalDAVServerURL, "CALDAV_SERVER_URL")
	applyEnv(&config.CalDAVUsername, "CALDAV_USERNAME")
	applyEnv(&config.CalDAVPassword, "CALDAV_PASSWORD")

	// Step 3: Override with command-line flags (highest priority)
	applyFlag(&config.UsageDescription, flags.UsageDescription)
	applyFlag(&config.Backend, flags.Backend)
	applyFlag(&config.GoogleCredentialsPath, flags.GoogleCredentialsPath)
	applyFlag(&config.GoogleTokenPath, flags.GoogleTokenPath)
	applyFlag(&config.CalDAVServerURL, flags.CalDAVServerURL)
	applyFlag(&config.CalDAVUsername, flags.CalDAVUsername)
	applyFlag(&config.CalDAVPassword, flags.CalDAVPassword)

	// Step 4: Apply defaults and validate backend requirements
	if config.Backend == "" {
		config.Backend = BackendMemory
	}

	switch config.Backend {
	case BackendMemory:
	case BackendGoogle:
		if config.GoogleCredentialsPath == "" {
			return nil, fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
		}
		if config.GoogleTokenPath == "" {
			return nil, fmt.Errorf("google_token_path must be provided via --google-token-path flag, GOOGLE_TOKEN_PATH environment variable, or config file")
		}
	case BackendCalDAV:
		if config.CalDAVServerURL == "" || config.CalDAVUsername == "" || config.CalDAVPassword == "" {
			return nil, fmt.Errorf("caldav_server_url, caldav_username and caldav_password must all be provided for the caldav backend")
		}
	default:
		return nil, fmt.Errorf("unknown backend %q (expected %s, %s or %s)", config.Backend, BackendMemory, BackendGoogle, BackendCalDAV)
	}

	return &config, nil
}

func applyEnv(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func applyFlag(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// Lookup implements the string-keyed configuration lookup the authorization
// gate consults. Absent and empty values both report false.
func (c *Config) Lookup(key string) (string, bool) {
	var value string
	switch key {
	case "calendars_usage_description":
		value = c.UsageDescription
	case "backend":
		value = c.Backend
	default:
		return "", false
	}
	return value, value != ""
}

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}
