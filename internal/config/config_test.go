package config

import (
	"os"
	"testing"
	"time"
)

const sampleConfig = `
device:
  id: phone-1
  name: phone
  pair: household
broker:
  url: tcp://localhost:1883
store:
  path: /tmp/fastline-test.db
log:
  level: debug
reminders:
  smart_reminders_enabled: true
  smart_reminder_mode: moving_average
  bedtime_minutes: 1380
goals:
  "16:8": 16h
  "18:6": 18h
`

// TestLoad verifies that Load unmarshals the full configuration tree.
func TestLoad(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(sampleConfig); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Device.ID != "phone-1" || cfg.Device.Pair != "household" {
		t.Fatalf("device config not parsed: %+v", cfg.Device)
	}
	if cfg.Broker.URL != "tcp://localhost:1883" {
		t.Fatalf("unexpected broker url: %s", cfg.Broker.URL)
	}
	if !cfg.Reminders.SmartRemindersEnabled || cfg.Reminders.SmartReminderMode != "moving_average" {
		t.Fatalf("reminders not parsed: %+v", cfg.Reminders)
	}
	if cfg.Reminders.BedtimeMinutes != 1380 {
		t.Fatalf("bedtime minutes not parsed: %d", cfg.Reminders.BedtimeMinutes)
	}
	if d, ok := cfg.GoalDuration("16:8"); !ok || d != 16*time.Hour {
		t.Fatalf("goal lookup failed: %v %v", d, ok)
	}
	if _, ok := cfg.GoalDuration("20:4"); ok {
		t.Fatalf("unknown goal should not resolve")
	}
}

// TestLoad_Defaults verifies defaults for fields the file omits.
func TestLoad_Defaults(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString("broker:\n  url: tcp://localhost:1883\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Reminders.BedtimeMinutes != -1 {
		t.Fatalf("expected unset bedtime default, got %d", cfg.Reminders.BedtimeMinutes)
	}
	if cfg.Reminders.MovingAverageWindowDays != 14 || cfg.Reminders.MovingAverageMinSamples != 3 {
		t.Fatalf("moving average defaults wrong: %+v", cfg.Reminders)
	}
	if cfg.Broker.ConnectTimeout != 10*time.Second {
		t.Fatalf("connect timeout default wrong: %v", cfg.Broker.ConnectTimeout)
	}
}
