// Package config provides configuration management for fbxgrab.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

// Application identity presented to the device during authorization.
// The device owner grants the token to this identity, so changing app_id
// invalidates every existing credential.
const (
	DefaultAppID      = "fr.hardcoding.fbxgrab"
	DefaultAppName    = "fbxgrab download companion"
	DefaultAppVersion = "0.4"
	DefaultDiscovery  = "http://mafreebox.freebox.fr"
)

// Location strategy preference values.
const (
	StrategyAlwaysAsk  = "alwaysAsk"
	StrategyLearn      = "learn"
	StrategyUseDefault = "useDefault"
)

// Config is the full fbxgrab configuration.
//
// INI format, at ~/.config/fbxgrab/config:
//
//	[device]
//	discovery_url = http://mafreebox.freebox.fr
//	device_name = Workstation
//
//	[locations]
//	strategy = learn
//	default_location =
//
//	[notifications]
//	enabled = true
//	show_download_added = true
//	show_connection_lost = true
type Config struct {
	Device        DeviceConfig
	Locations     LocationsConfig
	Notifications NotificationConfig
}

// DeviceConfig identifies the device and this application to it.
type DeviceConfig struct {
	// DiscoveryURL is the fixed address the device answers on. The
	// api_version endpoint below it is the only unversioned call.
	DiscoveryURL string `ini:"discovery_url"`

	// DeviceName is shown to the owner in the authorization prompt.
	DeviceName string `ini:"device_name"`

	AppID      string `ini:"app_id"`
	AppName    string `ini:"app_name"`
	AppVersion string `ini:"app_version"`
}

// LocationsConfig governs remote destination folder resolution.
type LocationsConfig struct {
	// Strategy is one of alwaysAsk, learn, useDefault.
	Strategy string `ini:"strategy"`

	// DefaultLocation is the encoded path used by the useDefault
	// strategy and as the fallback before any history exists.
	DefaultLocation string `ini:"default_location"`
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	Enabled            bool `ini:"enabled"`
	ShowDownloadAdded  bool `ini:"show_download_added"`
	ShowConnectionLost bool `ini:"show_connection_lost"`
}

// Validation errors.
var (
	ErrMissingDiscoveryURL = errors.New("discovery_url is required")
	ErrInvalidStrategy     = errors.New("strategy must be alwaysAsk, learn or useDefault")
)

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "Workstation"
	}
	return &Config{
		Device: DeviceConfig{
			DiscoveryURL: DefaultDiscovery,
			DeviceName:   hostname,
			AppID:        DefaultAppID,
			AppName:      DefaultAppName,
			AppVersion:   DefaultAppVersion,
		},
		Locations: LocationsConfig{
			Strategy: StrategyLearn,
		},
		Notifications: NotificationConfig{
			Enabled:            true,
			ShowDownloadAdded:  true,
			ShowConnectionLost: true,
		},
	}
}

// Load reads configuration from an INI file. A missing file returns the
// defaults without error; an invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	device := iniFile.Section("device")
	cfg.Device.DiscoveryURL = device.Key("discovery_url").MustString(cfg.Device.DiscoveryURL)
	cfg.Device.DeviceName = device.Key("device_name").MustString(cfg.Device.DeviceName)
	cfg.Device.AppID = device.Key("app_id").MustString(cfg.Device.AppID)
	cfg.Device.AppName = device.Key("app_name").MustString(cfg.Device.AppName)
	cfg.Device.AppVersion = device.Key("app_version").MustString(cfg.Device.AppVersion)

	locations := iniFile.Section("locations")
	cfg.Locations.Strategy = locations.Key("strategy").MustString(cfg.Locations.Strategy)
	cfg.Locations.DefaultLocation = locations.Key("default_location").String()

	notify := iniFile.Section("notifications")
	cfg.Notifications.Enabled = notify.Key("enabled").MustBool(true)
	cfg.Notifications.ShowDownloadAdded = notify.Key("show_download_added").MustBool(true)
	cfg.Notifications.ShowConnectionLost = notify.Key("show_connection_lost").MustBool(true)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to an INI file, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return err
		}
	}

	iniFile := ini.Empty()

	device := iniFile.Section("device")
	device.Key("discovery_url").SetValue(cfg.Device.DiscoveryURL)
	device.Key("device_name").SetValue(cfg.Device.DeviceName)
	device.Key("app_id").SetValue(cfg.Device.AppID)
	device.Key("app_name").SetValue(cfg.Device.AppName)
	device.Key("app_version").SetValue(cfg.Device.AppVersion)

	locations := iniFile.Section("locations")
	locations.Key("strategy").SetValue(cfg.Locations.Strategy)
	locations.Key("default_location").SetValue(cfg.Locations.DefaultLocation)

	notify := iniFile.Section("notifications")
	notify.Key("enabled").SetValue(boolString(cfg.Notifications.Enabled))
	notify.Key("show_download_added").SetValue(boolString(cfg.Notifications.ShowDownloadAdded))
	notify.Key("show_connection_lost").SetValue(boolString(cfg.Notifications.ShowConnectionLost))

	if err := ensureConfigDir(); err != nil {
		return err
	}
	if err := iniFile.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Device.DiscoveryURL == "" {
		return ErrMissingDiscoveryURL
	}
	switch c.Locations.Strategy {
	case StrategyAlwaysAsk, StrategyLearn, StrategyUseDefault:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, c.Locations.Strategy)
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
