package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LBBNetwork/JeopardyRingInPublic/gpio"
	"github.com/LBBNetwork/JeopardyRingInPublic/player"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ringin.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timing.PollInterval != 10*time.Millisecond || cfg.Timing.PenaltyDelay != 250*time.Millisecond {
		t.Fatalf("timing = %+v", cfg.Timing)
	}
	if cfg.Serial.Baud != 9600 || cfg.Serial.Path != "/dev/ttyS0" || cfg.Serial.Banner != "SReady\r\n" {
		t.Fatalf("serial = %+v", cfg.Serial)
	}
	pins, err := cfg.PinMap()
	if err != nil {
		t.Fatalf("PinMap: %v", err)
	}
	if pins[gpio.Button2] != "GPIO27" || pins[gpio.Enabler] != "GPIO18" {
		t.Fatalf("pins = %v", pins)
	}
	if _, ok := pins[gpio.OperatorInterrupt]; ok {
		t.Fatalf("operator interrupt wired by default")
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
device_id: studio-a
gpio:
  backend: sim
  countdown_hardware: true
  pins:
    button1: GPIO23
    operator_interrupt: GPIO24
timing:
  countdown_step: 500ms
  penalty_mode: deferred
serial:
  enabled: false
`)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RINGIN_DEVICE_ID", "studio-b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeviceID != "studio-b" {
		t.Fatalf("device = %q, env should win", cfg.DeviceID)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("redis url = %q", cfg.RedisURL)
	}
	if cfg.Serial.Enabled {
		t.Fatalf("serial still enabled")
	}

	pc := cfg.Player()
	if pc.CountdownStep != 500*time.Millisecond || pc.PenaltyMode != player.PenaltyDeferred {
		t.Fatalf("player config = %+v", pc)
	}
	// Untouched fields keep their defaults.
	if pc.PenaltyDelay != 250*time.Millisecond || pc.CountdownSeconds != 5 {
		t.Fatalf("player config = %+v", pc)
	}

	pins, err := cfg.PinMap()
	if err != nil {
		t.Fatalf("PinMap: %v", err)
	}
	if pins[gpio.Button1] != "GPIO23" || pins[gpio.OperatorInterrupt] != "GPIO24" {
		t.Fatalf("overridden pins = %v", pins)
	}
	if pins[gpio.Segment5] != "GPIO26" {
		t.Fatalf("default pins lost: %v", pins)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"penalty mode": "timing:\n  penalty_mode: later\n",
		"backend":      "gpio:\n  backend: arduino\n",
		"signal":       "gpio:\n  pins:\n    button9: GPIO1\n",
		"duration":     "timing:\n  penalty_delay: 0s\n",
		"seconds":      "timing:\n  countdown_seconds: 9\n",
		"lockout pin":  "gpio:\n  countdown_hardware: false\n  pins:\n    lockout: \"\"\n",
		"yaml":         "timing: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("Load accepted %q", body)
			}
		})
	}
}

func TestRequiredSignalsFollowHardware(t *testing.T) {
	cfg := Default()
	if got := len(cfg.RequiredSignals()); got != 15 {
		t.Fatalf("segment board requires %d signals, want 15", got)
	}
	cfg.GPIO.CountdownHardware = false
	sigs := cfg.RequiredSignals()
	if len(sigs) != 8 || sigs[len(sigs)-1] != gpio.Lockout {
		t.Fatalf("lockout board requires %v", sigs)
	}
}
