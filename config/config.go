// Package config resolves the device configuration once at startup from
// .env, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/LBBNetwork/JeopardyRingInPublic/gpio"
	"github.com/LBBNetwork/JeopardyRingInPublic/player"
)

const DefaultPath = "ringin.yaml"

type Config struct {
	DeviceID  string `yaml:"device_id"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	GPIO   GPIO   `yaml:"gpio"`
	Timing Timing `yaml:"timing"`
	Serial Serial `yaml:"serial"`

	RedisURL    string        `yaml:"redis_url"`
	AblyAPIKey  string        `yaml:"ably_api_key"`
	AMQPURL     string        `yaml:"amqp_url"`
	AMQPQueue   string        `yaml:"amqp_queue"`
	NATSURL     string        `yaml:"nats_url"`
	MetricsAddr string        `yaml:"metrics_addr"`
	JournalTick time.Duration `yaml:"journal_tick"`
}

type GPIO struct {
	Backend           string            `yaml:"backend"`
	CountdownHardware bool              `yaml:"countdown_hardware"`
	Pins              map[string]string `yaml:"pins"`
}

type Timing struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	DelayTick        time.Duration `yaml:"delay_tick"`
	CountdownStep    time.Duration `yaml:"countdown_step"`
	CountdownSeconds int           `yaml:"countdown_seconds"`
	PenaltyDelay     time.Duration `yaml:"penalty_delay"`
	PenaltyMode      string        `yaml:"penalty_mode"`
}

type Serial struct {
	Enabled     bool          `yaml:"enabled"`
	Path        string        `yaml:"path"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	BackoffMin  time.Duration `yaml:"backoff_min"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	Banner      string        `yaml:"banner"`
}

// DefaultPins is the 40-pin board.
func DefaultPins() map[string]string {
	return map[string]string{
		"button1":            "GPIO17",
		"button2":            "GPIO27",
		"button3":            "GPIO22",
		"led1":               "GPIO5",
		"led2":               "GPIO6",
		"led3":               "GPIO13",
		"enable1":            "GPIO4",
		"enable2":            "GPIO3",
		"enable3":            "GPIO2",
		"segment1":           "GPIO10",
		"segment2":           "GPIO11",
		"segment3":           "GPIO9",
		"segment4":           "GPIO19",
		"segment5":           "GPIO26",
		"lockout":            "GPIO12",
		"enabler":            "GPIO18",
		"operator_interrupt": "",
	}
}

func Default() *Config {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ringin"
	}
	return &Config{
		DeviceID:  host,
		LogLevel:  "info",
		LogFormat: "json",
		GPIO: GPIO{
			Backend:           "periph",
			CountdownHardware: true,
			Pins:              DefaultPins(),
		},
		Timing: Timing{
			PollInterval:     10 * time.Millisecond,
			DelayTick:        10 * time.Millisecond,
			CountdownStep:    time.Second,
			CountdownSeconds: 5,
			PenaltyDelay:     250 * time.Millisecond,
			PenaltyMode:      "immediate",
		},
		Serial: Serial{
			Enabled:     true,
			Path:        "/dev/ttyS0",
			Baud:        9600,
			ReadTimeout: 50 * time.Millisecond,
			BackoffMin:  500 * time.Millisecond,
			BackoffMax:  30 * time.Second,
			Banner:      "SReady\r\n",
		},
		AMQPQueue:   "ringin-console",
		JournalTick: 2 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-boolean environment value")
	}
	return defaultValue
}

// Load reads .env, then the YAML file at path (RINGIN_CONFIG or
// ringin.yaml when path is empty), then the environment. A missing file
// leaves the defaults in place.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}
	if path == "" {
		path = getEnv("RINGIN_CONFIG", DefaultPath)
	}

	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", path).Msg("no config file, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	defaults := c.GPIO.Pins
	c.GPIO.Pins = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if c.GPIO.Pins == nil {
		c.GPIO.Pins = make(map[string]string, len(defaults))
	}
	for name, pin := range defaults {
		if _, ok := c.GPIO.Pins[name]; !ok {
			c.GPIO.Pins[name] = pin
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DeviceID = getEnv("RINGIN_DEVICE_ID", c.DeviceID)
	c.LogLevel = getEnv("RINGIN_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("RINGIN_LOG_FORMAT", c.LogFormat)
	c.GPIO.Backend = getEnv("RINGIN_GPIO_BACKEND", c.GPIO.Backend)
	c.Timing.PenaltyMode = getEnv("RINGIN_PENALTY_MODE", c.Timing.PenaltyMode)
	c.Serial.Enabled = getEnvAsBool("RINGIN_SERIAL_ENABLED", c.Serial.Enabled)
	c.Serial.Path = getEnv("RINGIN_SERIAL_PATH", c.Serial.Path)
	c.MetricsAddr = getEnv("RINGIN_METRICS_ADDR", c.MetricsAddr)

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.AblyAPIKey = getEnv("ABLY_API_KEY", c.AblyAPIKey)
	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
}

func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device_id is empty")
	}
	switch c.GPIO.Backend {
	case "periph", "sim":
	default:
		return fmt.Errorf("unknown gpio backend %q", c.GPIO.Backend)
	}
	if _, err := player.ParsePenaltyMode(c.Timing.PenaltyMode); err != nil {
		return err
	}

	durations := map[string]time.Duration{
		"timing.poll_interval":  c.Timing.PollInterval,
		"timing.delay_tick":     c.Timing.DelayTick,
		"timing.countdown_step": c.Timing.CountdownStep,
		"timing.penalty_delay":  c.Timing.PenaltyDelay,
		"journal_tick":          c.JournalTick,
	}
	if c.Serial.Enabled {
		durations["serial.read_timeout"] = c.Serial.ReadTimeout
		durations["serial.backoff_min"] = c.Serial.BackoffMin
		durations["serial.backoff_max"] = c.Serial.BackoffMax
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Timing.CountdownSeconds < 1 || c.Timing.CountdownSeconds > 5 {
		return fmt.Errorf("timing.countdown_seconds must be 1..5, got %d", c.Timing.CountdownSeconds)
	}
	if c.Serial.Enabled && c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}

	pins, err := c.PinMap()
	if err != nil {
		return err
	}
	for _, sig := range c.RequiredSignals() {
		if _, ok := pins[sig]; !ok {
			return fmt.Errorf("no pin for %s", sig)
		}
	}
	return nil
}

// RequiredSignals lists the signals the configured board must wire.
func (c *Config) RequiredSignals() []gpio.Signal {
	sigs := []gpio.Signal{
		gpio.Button1, gpio.Button2, gpio.Button3,
		gpio.LED1, gpio.LED2, gpio.LED3,
		gpio.Enabler,
	}
	if c.GPIO.CountdownHardware {
		sigs = append(sigs, gpio.Enable1, gpio.Enable2, gpio.Enable3)
		sigs = append(sigs, gpio.Segments()...)
	} else {
		sigs = append(sigs, gpio.Lockout)
	}
	return sigs
}

// PinMap resolves the configured pins to signals. Empty pins are unwired.
func (c *Config) PinMap() (map[gpio.Signal]string, error) {
	pins := make(map[gpio.Signal]string, len(c.GPIO.Pins))
	for name, pin := range c.GPIO.Pins {
		sig, err := gpio.ParseSignal(name)
		if err != nil {
			return nil, err
		}
		if pin != "" {
			pins[sig] = pin
		}
	}
	return pins, nil
}

func (c *Config) Player() player.Config {
	mode, _ := player.ParsePenaltyMode(c.Timing.PenaltyMode)
	return player.Config{
		CountdownStep:    c.Timing.CountdownStep,
		CountdownSeconds: c.Timing.CountdownSeconds,
		PenaltyDelay:     c.Timing.PenaltyDelay,
		PenaltyMode:      mode,
	}
}
