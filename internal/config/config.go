package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Device    DeviceConfig             `mapstructure:"device"`
	Server    ServerConfig             `mapstructure:"server"`
	Broker    BrokerConfig             `mapstructure:"broker"`
	Store     StoreConfig              `mapstructure:"store"`
	Log       LogConfig                `mapstructure:"log"`
	Reminders RemindersConfig          `mapstructure:"reminders"`
	Goals     map[string]time.Duration `mapstructure:"goals"`

	// DefaultGoal is the goal used when a remote start command does
	// not name one.
	DefaultGoal string `mapstructure:"default_goal"`
}

// DeviceConfig identifies this device within the paired set.
// ID may be left empty; a generated id is then persisted on first start.
type DeviceConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Pair string `mapstructure:"pair"`
}

// ServerConfig holds the local HTTP API configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// BrokerConfig holds the MQTT broker configuration
type BrokerConfig struct {
	URL            string        `mapstructure:"url"`
	ClientIDPrefix string        `mapstructure:"client_id_prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// StoreConfig holds the persistence configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RemindersConfig is the read-only settings surface consumed by the
// suggestion engine and the notification planner. BedtimeMinutes < 0
// means the user never configured a bedtime.
type RemindersConfig struct {
	SmartRemindersEnabled   bool   `mapstructure:"smart_reminders_enabled"`
	SmartReminderMode       string `mapstructure:"smart_reminder_mode"`
	BedtimeMinutes          int    `mapstructure:"bedtime_minutes"`
	BedtimeOffsetHours      int    `mapstructure:"bedtime_offset_hours"`
	FixedStartMinutes       int    `mapstructure:"fixed_start_minutes"`
	MovingAverageWindowDays int    `mapstructure:"moving_average_window_days"`
	MovingAverageMinSamples int    `mapstructure:"moving_average_min_samples"`
}

// GoalDuration resolves a goal id (e.g. "16:8") to its target fasting
// duration. Goal durations live in configuration, not in the store.
func (c *Config) GoalDuration(goalID string) (time.Duration, bool) {
	d, ok := c.Goals[goalID]
	return d, ok
}

// Load loads the configuration from the config.yaml file.
// CONFIG_PATH overrides the default lookup, mainly for tests.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetDefault("device.pair", "default")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("broker.client_id_prefix", "fastline")
	viper.SetDefault("broker.connect_timeout", "10s")
	viper.SetDefault("broker.publish_timeout", "5s")
	viper.SetDefault("store.path", "fastline.db")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("default_goal", "16:8")
	viper.SetDefault("reminders.smart_reminder_mode", "auto")
	viper.SetDefault("reminders.bedtime_minutes", -1)
	viper.SetDefault("reminders.bedtime_offset_hours", 3)
	viper.SetDefault("reminders.fixed_start_minutes", 20*60)
	viper.SetDefault("reminders.moving_average_window_days", 14)
	viper.SetDefault("reminders.moving_average_min_samples", 3)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Broker.URL == "" {
		return nil, fmt.Errorf("broker.url is required")
	}

	return &config, nil
}
