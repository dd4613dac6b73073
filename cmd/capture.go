package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/grabber"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/spf13/cobra"
)

// CreateCaptureCmd creates the standalone capture command.
func CreateCaptureCmd() *cobra.Command {
	var (
		width        uint32
		height       uint32
		formats      string
		buffers      uint32
		outputDir    string
		saveInterval string
		ringSize     int
		duration     string
		logJSON      bool
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "capture [device]",
		Short: "Run a capture session without the API server",
		Long: `Opens the given device, negotiates a format, maps the buffer pool, and ` +
			`captures frames until interrupted. Frames are saved to the output directory ` +
			`as a rotating ring of files.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			device := args[0]

			loggingConfig := logging.Config{
				Level:  logLevel,
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("capture").With("device", device)

			interval, err := time.ParseDuration(saveInterval)
			if err != nil {
				logger.Error("Invalid save interval", "value", saveInterval, "error", err)
				os.Exit(1)
			}

			opts := grabber.Options{
				Device:       device,
				Width:        width,
				Height:       height,
				Buffers:      buffers,
				OutputDir:    outputDir,
				SaveInterval: interval,
				RingSize:     ringSize,
			}
			if formats != "" {
				opts.Formats = strings.Split(formats, ",")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if duration != "" && duration != "0" {
				d, derr := time.ParseDuration(duration)
				if derr != nil {
					logger.Error("Invalid duration", "value", duration, "error", derr)
					os.Exit(1)
				}
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			g := grabber.New(opts, events.New())
			if err := g.Start(ctx); err != nil {
				logger.Error("Failed to start capture", "error", err)
				os.Exit(1)
			}

			<-ctx.Done()

			if err := g.Stop(); err != nil {
				logger.Error("Capture teardown failed", "error", err)
				os.Exit(1)
			}

			st := g.Status()
			logger.Info("Capture finished", "frames", st.Frames, "saved", st.Saved)
		},
	}

	cmd.Flags().Uint32Var(&width, "width", 640, "Requested frame width")
	cmd.Flags().Uint32Var(&height, "height", 480, "Requested frame height")
	cmd.Flags().StringVar(&formats, "formats", "", "Comma-separated fourcc preference order (e.g. YUYV,MJPG)")
	cmd.Flags().Uint32Var(&buffers, "buffers", 4, "Buffer pool size")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "frames", "Output directory for the frame ring")
	cmd.Flags().StringVar(&saveInterval, "save-interval", "1s", "Minimum gap between saved frames")
	cmd.Flags().IntVar(&ringSize, "ring-size", 20, "Frame files kept on disk")
	cmd.Flags().StringVar(&duration, "duration", "", "Stop after this long (e.g. 30s); empty runs until interrupted")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}
