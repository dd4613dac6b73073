package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/framegrab/cmd"
	"github.com/smazurov/framegrab/internal/api"
	"github.com/smazurov/framegrab/internal/config"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/grabber"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/metrics/exporters"
	"github.com/smazurov/framegrab/internal/systemd"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Capture settings
	Device       string `help:"Video device node or stable identifier" short:"d" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	Width        uint32 `help:"Requested frame width" default:"640" toml:"capture.width" env:"CAPTURE_WIDTH"`
	Height       uint32 `help:"Requested frame height" default:"480" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	Formats      string `help:"Comma-separated fourcc preference order" default:"" toml:"capture.formats" env:"CAPTURE_FORMATS"`
	Buffers      uint32 `help:"Buffer pool size" default:"4" toml:"capture.buffers" env:"CAPTURE_BUFFERS"`
	OutputDir    string `help:"Frame ring output directory" default:"frames" toml:"capture.output_dir" env:"CAPTURE_OUTPUT_DIR"`
	SaveInterval string `help:"Minimum gap between saved frames" default:"1s" toml:"capture.save_interval" env:"CAPTURE_SAVE_INTERVAL"`
	RingSize     int    `help:"Frame files kept on disk" default:"20" toml:"capture.ring_size" env:"CAPTURE_RING_SIZE"`
	AutoStart    bool   `help:"Start capturing on boot" default:"false" toml:"capture.auto_start" env:"CAPTURE_AUTO_START"`

	// Profiles settings
	ProfilesFile string `help:"Capture profile definitions file" default:"profiles.toml" toml:"profiles.config_file" env:"PROFILES_CONFIG_FILE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingLinuxav string `help:"Device protocol logging level" default:"info" toml:"logging.linuxav" env:"LOGGING_LINUXAV"`
	LoggingGrabber string `help:"Capture loop logging level" default:"info" toml:"logging.grabber" env:"LOGGING_GRABBER"`
	LoggingDevices string `help:"Device discovery logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingWriter  string `help:"Frame writer logging level" default:"info" toml:"logging.writer" env:"LOGGING_WRITER"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var rootCmd *cobra.Command

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, rootCmd); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"linuxav": opts.LoggingLinuxav,
				"grabber": opts.LoggingGrabber,
				"devices": opts.LoggingDevices,
				"writer":  opts.LoggingWriter,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		})

		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Mirror log entries onto the bus so SSE clients can stream
		// them live.
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		saveInterval, err := time.ParseDuration(opts.SaveInterval)
		if err != nil {
			logger.Warn("Invalid save interval, using 1s", "value", opts.SaveInterval)
			saveInterval = time.Second
		}

		captureOpts := grabber.Options{
			Device:       opts.Device,
			Width:        opts.Width,
			Height:       opts.Height,
			Buffers:      opts.Buffers,
			OutputDir:    opts.OutputDir,
			SaveInterval: saveInterval,
			RingSize:     opts.RingSize,
		}
		if opts.Formats != "" {
			captureOpts.Formats = strings.Split(opts.Formats, ",")
		}

		// A matching enabled profile overrides the flat capture
		// settings.
		profiles := config.NewProfileManager(opts.ProfilesFile)
		if err := profiles.Load(); err != nil {
			logger.Warn("Failed to load capture profiles", "error", err, "path", opts.ProfilesFile)
		} else if enabled := profiles.GetEnabledProfiles(); len(enabled) > 0 {
			for id, profile := range enabled {
				logger.Info("Using capture profile", "profile", id, "device", profile.Device)
				captureOpts = profileToOptions(profile, captureOpts)
				break
			}
		}

		grab := grabber.New(captureOpts, eventBus)

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Grabber:           grab,
			EventBus:          eventBus,
			PrometheusHandler: exporters.HTTPHandler(),
		})

		// Reloading the profiles file logs the change; the new
		// settings apply on the next capture start.
		profileWatcher := config.NewConfigWatcher(
			opts.ProfilesFile,
			func(path string) (config.CaptureConfig, error) {
				pm := config.NewProfileManager(path)
				if err := pm.Load(); err != nil {
					return config.CaptureConfig{}, err
				}
				return config.CaptureConfig{Profiles: pm.GetProfiles()}, nil
			},
			logging.GetLogger("config"),
		)
		profileWatcher.OnReload(func(cfg config.CaptureConfig) {
			logger.Info("Capture profiles reloaded", "count", len(cfg.Profiles))
			// Save interval is the one knob a running session can
			// adopt without renegotiating the device.
			for _, profile := range cfg.Profiles {
				if !profile.Enabled || profile.Device != captureOpts.Device {
					continue
				}
				if d, perr := time.ParseDuration(profile.SaveInterval); perr == nil {
					grab.SetSaveInterval(d)
				}
				break
			}
		})

		watchdogCtx, stopWatchdog := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if err := profileWatcher.Start(); err != nil {
				logger.Warn("Profile watcher unavailable, hot-reload disabled", "error", err)
			}

			systemd.NotifyReady()
			go systemd.RunWatchdog(watchdogCtx)

			if opts.AutoStart {
				if err := grab.Start(context.Background()); err != nil {
					logger.Error("Auto-start capture failed", "error", err)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			systemd.NotifyStopping()
			stopWatchdog()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if stopErr := grab.Stop(); stopErr != nil {
				logger.Error("Error stopping capture", "error", stopErr)
			}

			if stopErr := profileWatcher.Stop(); stopErr != nil {
				logger.Error("Error stopping profile watcher", "error", stopErr)
			}
		})
	})

	rootCmd = cli.Root()
	rootCmd.AddCommand(cmd.CreateCaptureCmd())
	rootCmd.AddCommand(cmd.CreateListCmd())

	cli.Run()
}

// profileToOptions merges a capture profile over the base options.
func profileToOptions(profile config.CaptureProfile, base grabber.Options) grabber.Options {
	opts := base
	opts.Device = profile.Device
	if profile.Width > 0 {
		opts.Width = profile.Width
	}
	if profile.Height > 0 {
		opts.Height = profile.Height
	}
	if len(profile.Formats) > 0 {
		opts.Formats = profile.Formats
	}
	if profile.Buffers > 0 {
		opts.Buffers = profile.Buffers
	}
	if profile.OutputDir != "" {
		opts.OutputDir = profile.OutputDir
	}
	if profile.SaveInterval != "" {
		if d, err := time.ParseDuration(profile.SaveInterval); err == nil {
			opts.SaveInterval = d
		}
	}
	if profile.RingSize > 0 {
		opts.RingSize = profile.RingSize
	}
	return opts
}
