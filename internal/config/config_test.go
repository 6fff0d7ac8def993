package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
	if cfg.Relay.Debounce.D() != 5*time.Second {
		t.Errorf("debounce: got %v, want 5s", cfg.Relay.Debounce)
	}
	if cfg.Source.Kind != SourceConsole || cfg.Actuator.Kind != ActuatorNull {
		t.Errorf("default kinds: got %s/%s", cfg.Source.Kind, cfg.Actuator.Kind)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr: got %q", cfg.HTTP.Addr)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
source:
  kind: tcp
  tcp:
    host: 10.0.0.5
    port: 6000
    label: Go
    framing: line
actuator:
  kind: pulse
  voltage: 3.3
  pulse_width: 1ms
  pause_width: 500us
  pulse_count: 4
output:
  driver: fake
relay:
  debounce: 2500
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.TCP.Host != "10.0.0.5" || cfg.Source.TCP.Port != 6000 || cfg.Source.TCP.Label != "Go" {
		t.Errorf("tcp: got %+v", cfg.Source.TCP)
	}
	if cfg.Source.TCP.BufferSize != 1024 {
		t.Errorf("unset buffer_size should keep default, got %d", cfg.Source.TCP.BufferSize)
	}
	if cfg.Actuator.PulseWidth.D() != time.Millisecond || cfg.Actuator.PauseWidth.D() != 500*time.Microsecond {
		t.Errorf("widths: got %v/%v", cfg.Actuator.PulseWidth, cfg.Actuator.PauseWidth)
	}
	if cfg.Relay.Debounce.D() != 2500*time.Millisecond {
		t.Errorf("bare integer debounce: got %v, want 2.5s", cfg.Relay.Debounce)
	}
	if cfg.Actuator.Voltage != 3.3 {
		t.Errorf("voltage: got %v", cfg.Actuator.Voltage)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "relay.toml", `
[source]
kind = "redis"

[source.redis]
addr = "redis:6379"
channel = "bci"
label = "MotorIntention"

[actuator]
kind = "pulse"
pulse_width = "2ms"
pause_width = "2ms"
pulse_count = 3

[output]
driver = "iio"

[output.iio]
device = "iio:device1"
channel = 1

[relay]
debounce = "1s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Kind != SourceRedis || cfg.Source.Redis.Addr != "redis:6379" || cfg.Source.Redis.Channel != "bci" {
		t.Errorf("redis: got %+v", cfg.Source.Redis)
	}
	if cfg.Output.IIO.Device != "iio:device1" || cfg.Output.IIO.Channel != 1 {
		t.Errorf("iio: got %+v", cfg.Output.IIO)
	}
	if cfg.Relay.Debounce.D() != time.Second {
		t.Errorf("debounce: got %v", cfg.Relay.Debounce)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeFile(t, "bad.yaml", "source: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		port       int
		label      string
		actuator   string
		pulseCount int
	}{
		{"network-console", SourceTCP, 5679, "OVTK_GDF_Right", ActuatorNull, 0},
		{"console-device", SourceConsole, 0, "", ActuatorPulse, 3},
		{"network-device", SourceTCP, 5690, "MotorIntention", ActuatorPulse, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.ApplyPreset(tt.name); err != nil {
				t.Fatalf("ApplyPreset: %v", err)
			}
			if cfg.Source.Kind != tt.source || cfg.Actuator.Kind != tt.actuator {
				t.Errorf("kinds: got %s/%s", cfg.Source.Kind, cfg.Actuator.Kind)
			}
			if tt.source == SourceTCP {
				if cfg.Source.TCP.Host != "127.0.0.1" || cfg.Source.TCP.Port != tt.port || cfg.Source.TCP.Label != tt.label {
					t.Errorf("tcp: got %+v", cfg.Source.TCP)
				}
			}
			if tt.actuator == ActuatorPulse {
				a := cfg.Actuator
				if a.PulseCount != tt.pulseCount || a.Voltage != 5 ||
					a.PulseWidth.D() != 2*time.Millisecond || a.PauseWidth.D() != 2*time.Millisecond {
					t.Errorf("actuator: got %+v", a)
				}
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestUnknownPreset(t *testing.T) {
	err := Default().ApplyPreset("network-network")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestFileValuesWinOverPreset(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
preset: network-device
source:
  tcp:
    port: 7000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Preset != "network-device" {
		t.Errorf("preset: got %q", cfg.Preset)
	}
	if cfg.Source.TCP.Port != 7000 {
		t.Errorf("port: got %d, want file value 7000", cfg.Source.TCP.Port)
	}
	if cfg.Source.TCP.Label != "MotorIntention" || cfg.Actuator.PulseCount != 5 {
		t.Errorf("preset values lost: %+v %+v", cfg.Source.TCP, cfg.Actuator)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STIMRELAY_PRESET", "network-console")
	t.Setenv("STIMRELAY_TCP_PORT", "5800")
	t.Setenv("STIMRELAY_DEBOUNCE", "250ms")
	t.Setenv("STIMRELAY_LOG_LEVEL", "warn")
	t.Setenv("STIMRELAY_LOG_PRETTY", "true")
	t.Setenv("STIMRELAY_EVENTS_BROKER", "tcp://broker:1883")
	t.Setenv("STIMRELAY_HTTP_ADDR", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Kind != SourceTCP || cfg.Source.TCP.Label != "OVTK_GDF_Right" {
		t.Errorf("preset from env not applied: %+v", cfg.Source)
	}
	if cfg.Source.TCP.Port != 5800 {
		t.Errorf("port: got %d", cfg.Source.TCP.Port)
	}
	if cfg.Relay.Debounce.D() != 250*time.Millisecond {
		t.Errorf("debounce: got %v", cfg.Relay.Debounce)
	}
	if cfg.Logging.Level != "warn" || !cfg.Logging.Pretty {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
	if cfg.Events.Broker != "tcp://broker:1883" {
		t.Errorf("events broker: got %q", cfg.Events.Broker)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("empty STIMRELAY_HTTP_ADDR should disable http, got %q", cfg.HTTP.Addr)
	}
}

func TestEnvOverrideBadNumber(t *testing.T) {
	t.Setenv("STIMRELAY_TCP_PORT", "port")
	_, err := Load("")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown source", func(c *Config) { c.Source.Kind = "serial" }, "source.kind"},
		{"tcp port", func(c *Config) { c.Source.Kind = SourceTCP; c.Source.TCP.Port = 0 }, "source.tcp.port"},
		{"tcp label", func(c *Config) { c.Source.Kind = SourceTCP; c.Source.TCP.Label = "" }, "source.tcp.label"},
		{"tcp framing", func(c *Config) { c.Source.Kind = SourceTCP; c.Source.TCP.Framing = "json" }, "framing"},
		{"mqtt topic", func(c *Config) { c.Source.Kind = SourceMQTT; c.Source.MQTT.Topic = "" }, "source.mqtt"},
		{"mqtt qos", func(c *Config) { c.Source.Kind = SourceMQTT; c.Source.MQTT.QoS = 3 }, "qos"},
		{"redis channel", func(c *Config) { c.Source.Kind = SourceRedis; c.Source.Redis.Channel = "" }, "source.redis"},
		{"unknown actuator", func(c *Config) { c.Actuator.Kind = "laser" }, "actuator.kind"},
		{"pulse count", func(c *Config) { c.Actuator.Kind = ActuatorPulse; c.Actuator.PulseCount = 0 }, "pulse_count"},
		{"pulse width", func(c *Config) { c.Actuator.Kind = ActuatorPulse; c.Actuator.PulseWidth = 0 }, "pulse_width"},
		{"pause width", func(c *Config) { c.Actuator.Kind = ActuatorPulse; c.Actuator.PauseWidth = -1 }, "pause_width"},
		{"driver", func(c *Config) { c.Actuator.Kind = ActuatorPulse; c.Output.Driver = "pwm" }, "output.driver"},
		{"debounce", func(c *Config) { c.Relay.Debounce = -1 }, "relay.debounce"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("got %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestNullActuatorIgnoresOutput(t *testing.T) {
	cfg := Default()
	cfg.Output.Driver = "pwm"
	if err := cfg.Validate(); err != nil {
		t.Errorf("output is unused by the null actuator, got %v", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyPreset("network-device"); err != nil {
		t.Fatal(err)
	}
	for _, asTOML := range []bool{false, true} {
		data, err := cfg.Marshal(asTOML)
		if err != nil {
			t.Fatalf("Marshal(toml=%v): %v", asTOML, err)
		}
		name := "out.yaml"
		if asTOML {
			name = "out.toml"
		}
		got, err := Load(writeFile(t, name, string(data)))
		if err != nil {
			t.Fatalf("Load(toml=%v): %v\n%s", asTOML, err, data)
		}
		if got.Actuator != cfg.Actuator || got.Source.TCP != cfg.Source.TCP {
			t.Errorf("toml=%v: got %+v %+v", asTOML, got.Actuator, got.Source.TCP)
		}
	}
}

func TestLoadZeroDebounce(t *testing.T) {
	path := writeFile(t, "relay.yaml", "relay:\n  debounce: 0s\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relay.Debounce != 0 {
		t.Errorf("debounce: got %v, want 0", cfg.Relay.Debounce)
	}
}
