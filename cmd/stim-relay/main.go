// Command stim-relay waits for triggers from a source and fires a
// stimulation actuator, at most once per debounce window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/stim-relay/internal/actuator"
	"github.com/sweeney/stim-relay/internal/config"
	"github.com/sweeney/stim-relay/internal/logger"
	"github.com/sweeney/stim-relay/internal/mqtt"
	"github.com/sweeney/stim-relay/internal/output"
	"github.com/sweeney/stim-relay/internal/relay"
	"github.com/sweeney/stim-relay/internal/source"
	"github.com/sweeney/stim-relay/internal/status"
	"github.com/sweeney/stim-relay/internal/web"
)

// notifyQueue bounds outcomes waiting for the MQTT publisher.
const notifyQueue = 64

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
	printConfig := flag.Bool("print-config", false, "Print the resolved config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		data, err := cfg.Marshal(strings.EqualFold(filepath.Ext(*configPath), ".toml"))
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(data)
		return
	}

	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)
	if err != nil {
		log.Fatalf("fatal: init logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Sync()
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, lg logger.Logger) error {
	// The device is acquired once for the life of the process.
	act, closeAct, err := buildActuator(cfg, lg)
	if err != nil {
		return fmt.Errorf("init actuator: %w", err)
	}
	defer func() {
		if err := closeAct(); err != nil {
			lg.Warn("close actuator", logger.Error(err))
		}
	}()

	src, err := buildSource(cfg, lg, os.Stdin, os.Stdout)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg, src))

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Events.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.Events.Broker, cfg.Events.ClientID, lg.With(logger.String("component", "mqtt")))
		if err != nil {
			// Publishing is optional; the relay runs without it.
			lg.Warn("mqtt publisher unavailable", logger.String("broker", cfg.Events.Broker), logger.Error(err))
		} else {
			publisher, mqttStatus = p, p
			defer p.Close()
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("http server error", logger.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		lg.Info("http status server listening", logger.String("addr", cfg.HTTP.Addr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(loopDeps{
		src:        src,
		act:        act,
		window:     cfg.Relay.Debounce.D(),
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		now:        time.Now,
		sig:        sigCh,
	}, lg)
}

type loopDeps struct {
	src        source.Source
	act        actuator.Actuator
	window     time.Duration
	publisher  mqtt.Publisher // nil disables publishing
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
	newID      func() string
	sig        <-chan os.Signal
}

// runLoop runs the relay until the source ends, a signal arrives or a fault
// occurs, bracketing it with STARTUP and SHUTDOWN system events.
func runLoop(d loopDeps, lg logger.Logger) error {
	observers := []relay.Observer{d.tracker}
	var notifier *mqtt.Notifier
	if d.publisher != nil {
		notifier = mqtt.NewNotifier(d.publisher, notifyQueue, lg)
		observers = append(observers, notifier)
		publishSystem(d, lg, "STARTUP", "")
	}

	loop := relay.New(relay.Config{
		Source:    d.src,
		Actuator:  d.act,
		Window:    d.window,
		Now:       d.now,
		NewID:     d.newID,
		Observers: observers,
	}, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalled := make(chan string, 1)
	go func() {
		select {
		case s := <-d.sig:
			lg.Info("shutting down", logger.String("signal", s.String()))
			signalled <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	err := loop.Run(ctx)
	cancel()

	reason := "SOURCE_CLOSED"
	select {
	case r := <-signalled:
		reason = r
	default:
	}
	if err != nil {
		reason = "FAULT"
		lg.Error("relay stopped", logger.Error(err))
	}

	counts := loop.Counts()
	lg.Info("relay summary",
		logger.Int("triggers", counts.Triggers),
		logger.Int("stimulated", counts.Stimulated),
		logger.Int("prevented", counts.Prevented))

	if notifier != nil {
		notifier.Close()
		publishSystem(d, lg, "SHUTDOWN", reason)
	}
	return err
}

func publishSystem(d loopDeps, lg logger.Logger, event, reason string) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		lg.Warn("failed to publish system event", logger.String("event", event), logger.Error(err))
		return
	}
	lg.Info("published system event", logger.String("event", event))
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// buildActuator returns the actuator and a func releasing its device.
func buildActuator(cfg *config.Config, lg logger.Logger) (actuator.Actuator, func() error, error) {
	if cfg.Actuator.Kind == config.ActuatorNull {
		return actuator.NewNullActuator(lg), func() error { return nil }, nil
	}

	out, err := buildOutput(cfg.Output)
	if err != nil {
		return nil, nil, err
	}
	train := actuator.PulseTrain{
		Level: cfg.Actuator.Voltage,
		Width: cfg.Actuator.PulseWidth.D(),
		Pause: cfg.Actuator.PauseWidth.D(),
		Count: cfg.Actuator.PulseCount,
	}
	pt, err := actuator.NewPulseTrainActuator(out, train, lg.With(logger.String("output", cfg.Output.Driver)))
	if err != nil {
		out.Close()
		return nil, nil, err
	}
	return pt, pt.Close, nil
}

func buildOutput(cfg config.OutputConfig) (output.Output, error) {
	switch cfg.Driver {
	case config.DriverGPIO:
		return output.NewGPIOOutput(cfg.GPIO.Chip, cfg.GPIO.Line, cfg.GPIO.ActiveLow)
	case config.DriverIIO:
		return output.NewIIOOutput(output.IIOConfig{
			Device:  cfg.IIO.Device,
			Channel: cfg.IIO.Channel,
			ScaleMV: cfg.IIO.ScaleMVPerCount,
			MaxRaw:  cfg.IIO.MaxRaw,
		})
	case config.DriverFake:
		return output.NewFakeOutput(), nil
	default:
		return nil, fmt.Errorf("unknown output driver %q", cfg.Driver)
	}
}

func buildSource(cfg *config.Config, lg logger.Logger, in io.Reader, out io.Writer) (source.Source, error) {
	sc := cfg.Source
	lg = lg.With(logger.String("source", sc.Kind))
	switch sc.Kind {
	case config.SourceTCP:
		return source.NewTCPSource(source.TCPConfig{
			Host:        sc.TCP.Host,
			Port:        sc.TCP.Port,
			Label:       sc.TCP.Label,
			Framing:     source.Framing(sc.TCP.Framing),
			BufferSize:  sc.TCP.BufferSize,
			DialTimeout: sc.TCP.DialTimeout.D(),
		}, lg), nil
	case config.SourceConsole:
		return source.NewConsoleSource(in, out), nil
	case config.SourceMQTT:
		return source.NewMQTTSource(source.MQTTConfig{
			Broker:   sc.MQTT.Broker,
			ClientID: sc.MQTT.ClientID,
			Topic:    sc.MQTT.Topic,
			QoS:      byte(sc.MQTT.QoS),
			Label:    sc.MQTT.Label,
		}, lg), nil
	case config.SourceRedis:
		return source.NewRedisSource(source.RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Channel:  sc.Redis.Channel,
			Label:    sc.Redis.Label,
		}, lg), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

func statusConfig(cfg *config.Config, src source.Source) status.Config {
	sc := status.Config{
		Source:     src.String(),
		Actuator:   cfg.Actuator.Kind,
		DebounceMs: cfg.Relay.Debounce.D().Milliseconds(),
		Broker:     cfg.Events.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
	}
	if cfg.Actuator.Kind == config.ActuatorPulse {
		sc.Output = cfg.Output.Driver
		sc.PulseCount = cfg.Actuator.PulseCount
		sc.PulseMs = float64(cfg.Actuator.PulseWidth.D()) / float64(time.Millisecond)
		sc.PauseMs = float64(cfg.Actuator.PauseWidth.D()) / float64(time.Millisecond)
		sc.Level = cfg.Actuator.Voltage
	}
	return sc
}
