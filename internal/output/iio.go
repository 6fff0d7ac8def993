package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultSysfsRoot is where the kernel exposes IIO devices.
const DefaultSysfsRoot = "/sys/bus/iio/devices"

// IIOOutput drives a DAC channel exposed through the Linux Industrial I/O
// sysfs interface (out_voltageN_raw). Levels in volts are converted to raw
// counts using the channel scale in millivolts per count.
type IIOOutput struct {
	mu      sync.Mutex
	rawPath string
	scaleMV float64
	maxRaw  int
	closed  bool
}

// IIOConfig describes one DAC channel.
type IIOConfig struct {
	// Root overrides DefaultSysfsRoot. Used by tests.
	Root    string
	Device  string // e.g. "iio:device0"
	Channel int
	// ScaleMV is millivolts per raw count. Zero reads out_voltageN_scale.
	ScaleMV float64
	// MaxRaw clamps the raw value. Zero means no clamp.
	MaxRaw int
}

// NewIIOOutput opens the channel and drives it to 0.
func NewIIOOutput(cfg IIOConfig) (*IIOOutput, error) {
	root := cfg.Root
	if root == "" {
		root = DefaultSysfsRoot
	}
	dir := filepath.Join(root, cfg.Device)
	rawPath := filepath.Join(dir, fmt.Sprintf("out_voltage%d_raw", cfg.Channel))

	if _, err := os.Stat(rawPath); err != nil {
		return nil, fmt.Errorf("open iio channel: %w", err)
	}

	scale := cfg.ScaleMV
	if scale == 0 {
		s, err := readScale(filepath.Join(dir, fmt.Sprintf("out_voltage%d_scale", cfg.Channel)))
		if err != nil {
			return nil, err
		}
		scale = s
	}
	if scale <= 0 {
		return nil, fmt.Errorf("iio scale must be > 0, got %v", scale)
	}

	o := &IIOOutput{rawPath: rawPath, scaleMV: scale, maxRaw: cfg.MaxRaw}
	if err := o.write(0); err != nil {
		return nil, err
	}
	return o, nil
}

func readScale(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read iio scale: %w", err)
	}
	s, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse iio scale: %w", err)
	}
	return s, nil
}

// Raw converts a level in volts to the raw DAC value.
func (o *IIOOutput) Raw(level float64) int {
	raw := int(math.Round(level * 1000 / o.scaleMV))
	if raw < 0 {
		raw = 0
	}
	if o.maxRaw > 0 && raw > o.maxRaw {
		raw = o.maxRaw
	}
	return raw
}

// Set writes the raw value for level.
func (o *IIOOutput) Set(level float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	return o.write(o.Raw(level))
}

func (o *IIOOutput) write(raw int) error {
	if err := os.WriteFile(o.rawPath, []byte(strconv.Itoa(raw)), 0o644); err != nil {
		return fmt.Errorf("write iio raw: %w", err)
	}
	return nil
}

// Close drives the channel to 0. The sysfs file holds no open handle.
func (o *IIOOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.write(0)
}
