// Package config loads daemon configuration from YAML or TOML, with
// STIMRELAY_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/stim-relay/internal/logger"
	"github.com/sweeney/stim-relay/internal/logic"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STIMRELAY_"

// Source kinds.
const (
	SourceTCP     = "tcp"
	SourceConsole = "console"
	SourceMQTT    = "mqtt"
	SourceRedis   = "redis"
)

// Actuator kinds.
const (
	ActuatorNull  = "null"
	ActuatorPulse = "pulse"
)

// Output drivers.
const (
	DriverGPIO = "gpio"
	DriverIIO  = "iio"
	DriverFake = "fake"
)

// Config is the full daemon configuration.
type Config struct {
	Preset   string         `yaml:"preset,omitempty" toml:"preset,omitempty"`
	Source   SourceConfig   `yaml:"source" toml:"source"`
	Actuator ActuatorConfig `yaml:"actuator" toml:"actuator"`
	Output   OutputConfig   `yaml:"output" toml:"output"`
	Relay    RelayConfig    `yaml:"relay" toml:"relay"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	HTTP     HTTPConfig     `yaml:"http" toml:"http"`
	Events   EventsConfig   `yaml:"events" toml:"events"`
}

// SourceConfig selects and configures the event source.
type SourceConfig struct {
	Kind  string      `yaml:"kind" toml:"kind"`
	TCP   TCPConfig   `yaml:"tcp" toml:"tcp"`
	MQTT  MQTTConfig  `yaml:"mqtt" toml:"mqtt"`
	Redis RedisConfig `yaml:"redis" toml:"redis"`
}

// TCPConfig configures the TCP source.
type TCPConfig struct {
	Host        string   `yaml:"host" toml:"host"`
	Port        int      `yaml:"port" toml:"port"`
	Label       string   `yaml:"label" toml:"label"`
	Framing     string   `yaml:"framing" toml:"framing"`
	BufferSize  int      `yaml:"buffer_size" toml:"buffer_size"`
	DialTimeout Duration `yaml:"dial_timeout" toml:"dial_timeout"`
}

// MQTTConfig configures the MQTT source.
type MQTTConfig struct {
	Broker   string `yaml:"broker" toml:"broker"`
	Topic    string `yaml:"topic" toml:"topic"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	QoS      int    `yaml:"qos" toml:"qos"`
	Label    string `yaml:"label" toml:"label"`
}

// RedisConfig configures the Redis pub/sub source.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
	DB       int    `yaml:"db" toml:"db"`
	Channel  string `yaml:"channel" toml:"channel"`
	Label    string `yaml:"label" toml:"label"`
}

// ActuatorConfig selects the actuator and its pulse train.
type ActuatorConfig struct {
	Kind       string   `yaml:"kind" toml:"kind"`
	Voltage    float64  `yaml:"voltage" toml:"voltage"`
	PulseWidth Duration `yaml:"pulse_width" toml:"pulse_width"`
	PauseWidth Duration `yaml:"pause_width" toml:"pause_width"`
	PulseCount int      `yaml:"pulse_count" toml:"pulse_count"`
}

// OutputConfig selects the device driver behind a pulse actuator.
type OutputConfig struct {
	Driver string     `yaml:"driver" toml:"driver"`
	GPIO   GPIOConfig `yaml:"gpio" toml:"gpio"`
	IIO    IIOConfig  `yaml:"iio" toml:"iio"`
}

// GPIOConfig configures a GPIO character-device line.
type GPIOConfig struct {
	Chip      string `yaml:"chip" toml:"chip"`
	Line      int    `yaml:"line" toml:"line"`
	ActiveLow bool   `yaml:"active_low" toml:"active_low"`
}

// IIOConfig configures an IIO DAC channel.
type IIOConfig struct {
	Device          string  `yaml:"device" toml:"device"`
	Channel         int     `yaml:"channel" toml:"channel"`
	ScaleMVPerCount float64 `yaml:"scale_mv_per_count" toml:"scale_mv_per_count"`
	MaxRaw          int     `yaml:"max_raw" toml:"max_raw"`
}

// RelayConfig configures the relay loop.
type RelayConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Pretty bool   `yaml:"pretty" toml:"pretty"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// EventsConfig configures outcome publishing. An empty Broker disables it.
type EventsConfig struct {
	Broker   string `yaml:"broker" toml:"broker"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// Default returns a Config with the console source and null actuator.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind: SourceConsole,
			TCP: TCPConfig{
				Host:        "127.0.0.1",
				Port:        5690,
				Label:       "MotorIntention",
				Framing:     "read",
				BufferSize:  1024,
				DialTimeout: Duration(10 * time.Second),
			},
			MQTT: MQTTConfig{
				Broker:   "tcp://127.0.0.1:1883",
				Topic:    "lab/stim-relay/triggers",
				ClientID: "stim-relay-source",
				QoS:      1,
				Label:    "MotorIntention",
			},
			Redis: RedisConfig{
				Addr:    "127.0.0.1:6379",
				Channel: "stim-relay:triggers",
				Label:   "MotorIntention",
			},
		},
		Actuator: ActuatorConfig{
			Kind:       ActuatorNull,
			Voltage:    5,
			PulseWidth: Duration(2 * time.Millisecond),
			PauseWidth: Duration(2 * time.Millisecond),
			PulseCount: 5,
		},
		Output: OutputConfig{
			Driver: DriverGPIO,
			GPIO:   GPIOConfig{Chip: "gpiochip0", Line: 17},
			IIO:    IIOConfig{Device: "iio:device0"},
		},
		Relay:   RelayConfig{Debounce: Duration(logic.DefaultWindow)},
		Logging: LoggingConfig{Level: "info"},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Events:  EventsConfig{ClientID: "stim-relay"},
	}
}

// Load builds a Config from defaults, an optional file, a preset and the
// environment, then validates it. An empty path skips the file.
//
// A preset named in the file or in STIMRELAY_PRESET is applied over the
// defaults and the file is decoded again on top, so explicit file values
// win over the preset.
func Load(path string) (*Config, error) {
	cfg := Default()

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	preset := cfg.Preset
	if v := os.Getenv(EnvPrefix + "PRESET"); v != "" {
		preset = v
	}
	if preset != "" {
		cfg = Default()
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, err
		}
		if data != nil {
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
		cfg.Preset = preset
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Marshal renders cfg as TOML when toTOML is set, YAML otherwise.
func (c *Config) Marshal(toTOML bool) ([]byte, error) {
	if toTOML {
		return toml.Marshal(c)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ApplyPreset fills the source and actuator for a named pairing.
func (c *Config) ApplyPreset(name string) error {
	switch name {
	case "network-console":
		c.Source.Kind = SourceTCP
		c.Source.TCP.Host = "127.0.0.1"
		c.Source.TCP.Port = 5679
		c.Source.TCP.Label = "OVTK_GDF_Right"
		c.Actuator.Kind = ActuatorNull
	case "console-device":
		c.Source.Kind = SourceConsole
		c.Actuator = ActuatorConfig{
			Kind:       ActuatorPulse,
			Voltage:    5,
			PulseWidth: Duration(2 * time.Millisecond),
			PauseWidth: Duration(2 * time.Millisecond),
			PulseCount: 3,
		}
	case "network-device":
		c.Source.Kind = SourceTCP
		c.Source.TCP.Host = "127.0.0.1"
		c.Source.TCP.Port = 5690
		c.Source.TCP.Label = "MotorIntention"
		c.Actuator = ActuatorConfig{
			Kind:       ActuatorPulse,
			Voltage:    5,
			PulseWidth: Duration(2 * time.Millisecond),
			PauseWidth: Duration(2 * time.Millisecond),
			PulseCount: 5,
		}
	default:
		return fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
	}
	c.Preset = name
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"SOURCE_KIND":     &cfg.Source.Kind,
		"TCP_HOST":        &cfg.Source.TCP.Host,
		"TCP_LABEL":       &cfg.Source.TCP.Label,
		"TCP_FRAMING":     &cfg.Source.TCP.Framing,
		"MQTT_BROKER":     &cfg.Source.MQTT.Broker,
		"MQTT_TOPIC":      &cfg.Source.MQTT.Topic,
		"REDIS_ADDR":      &cfg.Source.Redis.Addr,
		"REDIS_PASSWORD":  &cfg.Source.Redis.Password,
		"REDIS_CHANNEL":   &cfg.Source.Redis.Channel,
		"ACTUATOR_KIND":   &cfg.Actuator.Kind,
		"OUTPUT_DRIVER":   &cfg.Output.Driver,
		"LOG_LEVEL":       &cfg.Logging.Level,
		"HTTP_ADDR":       &cfg.HTTP.Addr,
		"EVENTS_BROKER":   &cfg.Events.Broker,
		"EVENTS_CLIENTID": &cfg.Events.ClientID,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "TCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sTCP_PORT: %w", ErrInvalidConfig, EnvPrefix, err)
		}
		cfg.Source.TCP.Port = port
	}
	if v := os.Getenv(EnvPrefix + "DEBOUNCE"); v != "" {
		if err := cfg.Relay.Debounce.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: %sDEBOUNCE: %w", ErrInvalidConfig, EnvPrefix, err)
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sLOG_PRETTY: %w", ErrInvalidConfig, EnvPrefix, err)
		}
		cfg.Logging.Pretty = pretty
	}
	return nil
}

// Validate checks the sections that the selected kinds will use.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Source.Kind {
	case SourceTCP:
		t := c.Source.TCP
		if t.Host == "" {
			bad("source.tcp.host is required")
		}
		if t.Port < 1 || t.Port > 65535 {
			bad("source.tcp.port must be 1-65535, got %d", t.Port)
		}
		if t.Label == "" {
			bad("source.tcp.label is required")
		}
		if t.Framing != "read" && t.Framing != "line" {
			bad("source.tcp.framing must be read or line, got %q", t.Framing)
		}
		if t.BufferSize < 1 {
			bad("source.tcp.buffer_size must be > 0, got %d", t.BufferSize)
		}
	case SourceConsole:
	case SourceMQTT:
		m := c.Source.MQTT
		if m.Broker == "" || m.Topic == "" || m.Label == "" {
			bad("source.mqtt needs broker, topic and label")
		}
		if m.QoS < 0 || m.QoS > 2 {
			bad("source.mqtt.qos must be 0-2, got %d", m.QoS)
		}
	case SourceRedis:
		r := c.Source.Redis
		if r.Addr == "" || r.Channel == "" || r.Label == "" {
			bad("source.redis needs addr, channel and label")
		}
	default:
		bad("unknown source.kind %q", c.Source.Kind)
	}

	switch c.Actuator.Kind {
	case ActuatorNull:
	case ActuatorPulse:
		a := c.Actuator
		if a.PulseCount < 1 {
			bad("actuator.pulse_count must be >= 1, got %d", a.PulseCount)
		}
		if a.PulseWidth <= 0 {
			bad("actuator.pulse_width must be > 0, got %v", a.PulseWidth)
		}
		if a.PauseWidth < 0 {
			bad("actuator.pause_width must be >= 0, got %v", a.PauseWidth)
		}
		switch c.Output.Driver {
		case DriverGPIO:
			if c.Output.GPIO.Chip == "" || c.Output.GPIO.Line < 0 {
				bad("output.gpio needs chip and a non-negative line")
			}
		case DriverIIO:
			if c.Output.IIO.Device == "" || c.Output.IIO.Channel < 0 {
				bad("output.iio needs device and a non-negative channel")
			}
		case DriverFake:
		default:
			bad("unknown output.driver %q", c.Output.Driver)
		}
	default:
		bad("unknown actuator.kind %q", c.Actuator.Kind)
	}

	if c.Relay.Debounce < 0 {
		bad("relay.debounce must be >= 0, got %v", c.Relay.Debounce)
	}
	if _, ok := logger.ParseLevel(c.Logging.Level); !ok {
		bad("unknown logging.level %q", c.Logging.Level)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
