package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sensorbench/sensorbench/internal/config"
	"github.com/sensorbench/sensorbench/internal/device"
	"github.com/sensorbench/sensorbench/internal/metrics"
	"github.com/sensorbench/sensorbench/internal/recorder"
	"github.com/sensorbench/sensorbench/internal/server"
	"github.com/sensorbench/sensorbench/internal/store"
)

const (
	defaultLogLevel    = "info"
	deviceOpenMaxRetry = 30 * time.Second
)

var (
	configFile string
	baseDir    string
	logLevel   string
	portName   string
	baudRate   int

	recordLabel    string
	recordCount    int
	recordDuration time.Duration

	samplesLabel string
	exportOut    string
	listAllPorts bool

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sensorbench",
	Short: "Labeled serial sample recorder",
	Long: `sensorbench records fixed-duration, labeled samples of 6-axis IMU data
streamed over a serial port, stores them as labeled CSV files, and serves
them over an HTTP API with smoothed previews.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sensorbench %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and highlight the detected device",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		cfg := mustLoadConfig(log)

		ports, err := device.ListPorts()
		if err != nil {
			log.Error("Operation failed: list_ports", "error", err)
			os.Exit(1)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Port", "USB", "VID", "PID", "Serial", "Target"})
		table.SetAutoWrapText(false)
		found := false
		for _, p := range ports {
			if !listAllPorts && !p.IsUSB {
				continue
			}
			target := ""
			if p.Matches(cfg.Device.VID, cfg.Device.PID) {
				target = "*"
				found = true
			}
			table.Append([]string{p.Name, fmt.Sprintf("%t", p.IsUSB), p.VID, p.PID, p.SerialNumber, target})
		}
		table.Render()

		if !found {
			log.Warn("No port matches the configured device",
				slog.String("vid", cfg.Device.VID),
				slog.String("pid", cfg.Device.PID))
		}
	},
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage label directories",
}

var labelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List labels with sample counts",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		st := mustOpenStore(log)

		labels, err := st.Labels()
		if err != nil {
			log.Error("Operation failed: list_labels", "error", err)
			os.Exit(1)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Label", "Samples"})
		for _, l := range labels {
			table.Append([]string{l.Name, fmt.Sprintf("%d", l.Samples)})
		}
		table.Render()
	},
}

var labelsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a label directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		st := mustOpenStore(log)

		name, err := st.CreateLabel(args[0])
		if err != nil {
			log.Error("Operation failed: add_label", "error", err)
			os.Exit(1)
		}
		fmt.Println(name)
	},
}

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Inspect and manage stored recordings",
}

var samplesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		st := mustOpenStore(log)

		labels, err := selectLabels(st, samplesLabel)
		if err != nil {
			log.Error("Operation failed: list_samples", "error", err)
			os.Exit(1)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Label", "Recording", "Frames"})
		table.SetAutoWrapText(false)
		for _, label := range labels {
			names, err := st.List(label)
			if err != nil {
				log.Error("Operation failed: list_samples", "label", label, "error", err)
				os.Exit(1)
			}
			for _, name := range names {
				rec, err := st.Load(label, name)
				if err != nil {
					log.Warn("Skipping unreadable recording", "label", label, "file", name, "error", err)
					continue
				}
				table.Append([]string{label, name, fmt.Sprintf("%d", len(rec.Frames))})
			}
		}
		table.Render()
	},
}

var samplesShowCmd = &cobra.Command{
	Use:   "show <label> <file>",
	Short: "Show per-channel statistics of a recording, raw and smoothed",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		cfg := mustLoadConfig(log)
		st := mustOpenStore(log)

		if err := showRecording(st, cfg, args[0], args[1]); err != nil {
			log.Error("Operation failed: show_sample", "error", err)
			os.Exit(1)
		}
	},
}

var samplesDeleteCmd = &cobra.Command{
	Use:   "delete <label> <file>",
	Short: "Delete a recording",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		st := mustOpenStore(log)

		next, err := st.Delete(args[0], args[1])
		if err != nil {
			log.Error("Operation failed: delete_sample", "error", err)
			os.Exit(1)
		}
		if next != "" {
			fmt.Printf("deleted %s, next: %s\n", args[1], next)
		} else {
			fmt.Printf("deleted %s\n", args[1])
		}
	},
}

var samplesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Merge all recordings into a single labeled CSV",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		st := mustOpenStore(log)

		log.Info("Operation started: export_samples", slog.String("out", exportOut))
		n, err := exportSamples(log, st, exportOut)
		if err != nil {
			log.Error("Operation failed: export_samples", "error", err)
			os.Exit(1)
		}
		log.Info("Operation completed: export_samples",
			slog.Int("recordings", n),
			slog.String("out", exportOut))
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record labeled samples from the device",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		cfg := mustLoadConfig(log)
		st := mustOpenStore(log)

		if recordLabel == "" {
			log.Error("Operation failed: record", "error", "--label is required")
			os.Exit(1)
		}
		if recordDuration > 0 {
			cfg.Recording.Duration = recordDuration
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rec, err := recorder.New(log, recorder.Config{
			Store: st,
			Dial: func(ctx context.Context) (device.Conn, error) {
				return dialDevice(log, cfg)
			},
			Duration: cfg.Recording.Duration,
			Clock:    clockwork.NewRealClock(),
		})
		if err != nil {
			log.Error("Operation failed: new_recorder", "error", err)
			os.Exit(1)
		}
		defer rec.Close()

		label, err := st.CreateLabel(recordLabel)
		if err != nil {
			log.Error("Operation failed: record", "error", err)
			os.Exit(1)
		}

		for i := 0; i < recordCount; i++ {
			if ctx.Err() != nil {
				log.Info("Operation cancelled by signal")
				return
			}
			recording, name, err := rec.Record(ctx, label)
			if err != nil {
				if ctx.Err() != nil {
					log.Info("Operation cancelled by signal")
					return
				}
				log.Error("Operation failed: record", "error", err)
				os.Exit(1)
			}
			fmt.Printf("saved %s/%s (%d frames)\n", label, name, len(recording.Frames))
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the HTTP API and recorder (service mode)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(logLevel)
		cfg := mustLoadConfig(log)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := runService(ctx, log, cfg); err != nil {
			log.Error("Operation failed: run_service", "error", err)
			os.Exit(1)
		}
		log.Info("Operation completed: run_service")
	},
}

func mustLoadConfig(log *slog.Logger) config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Error("Operation failed: load_config", "error", err)
		os.Exit(1)
	}
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if portName != "" {
		cfg.Device.Port = portName
	}
	if baudRate > 0 {
		cfg.Device.Baud = baudRate
	}
	return cfg
}

func mustOpenStore(log *slog.Logger) *store.Store {
	cfg := mustLoadConfig(log)
	st, err := store.New(log, cfg.BaseDir, clockwork.NewRealClock())
	if err != nil {
		log.Error("Operation failed: open_store", "error", err)
		os.Exit(1)
	}
	return st
}

// dialDevice resolves the serial port, by explicit path or VID/PID scan, and
// opens it.
func dialDevice(log *slog.Logger, cfg config.Config) (device.Conn, error) {
	name := cfg.Device.Port
	if name == "" {
		detected, err := device.Detect(cfg.Device.VID, cfg.Device.PID)
		if err != nil {
			return nil, err
		}
		log.Info("Device detected", slog.String("port", detected))
		name = detected
	}
	return device.Open(name, cfg.Device.Baud, cfg.Device.ReadTimeout)
}

func selectLabels(st *store.Store, only string) ([]string, error) {
	if only != "" {
		return []string{only}, nil
	}
	labels, err := st.Labels()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names, nil
}

func runService(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	log.Info("Starting sensorbench service",
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("metrics_addr", cfg.MetricsAddr),
		slog.String("base_dir", cfg.BaseDir))

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	// Prometheus metrics endpoint.
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("Metrics server listening", slog.String("address", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	st, err := store.New(log, cfg.BaseDir, clockwork.NewRealClock())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	rec, err := recorder.New(log, recorder.Config{
		Store: st,
		Dial: func(ctx context.Context) (device.Conn, error) {
			name := cfg.Device.Port
			if name == "" {
				detected, derr := device.Detect(cfg.Device.VID, cfg.Device.PID)
				if derr != nil {
					return nil, derr
				}
				name = detected
			}
			return device.OpenWithRetry(ctx, log, name, cfg.Device.Baud, cfg.Device.ReadTimeout, deviceOpenMaxRetry)
		},
		Duration: cfg.Recording.Duration,
		Clock:    clockwork.NewRealClock(),
	})
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	defer rec.Close()

	srv, err := server.New(server.Config{
		Logger:          log,
		Store:           st,
		Recorder:        rec,
		SmoothingWindow: cfg.Smoothing.Window,
		SmoothingOrder:  cfg.Smoothing.Order,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	defer listener.Close()

	log.Info("API server listening", slog.String("address", listener.Addr().String()))
	return srv.Serve(ctx, listener)
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
		AddSource:  slogLevel == slog.LevelDebug,
	}))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Directory holding label folders (default \"samples\")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&portName, "port", "", "Serial port path (skips VID/PID auto-detection)")
	rootCmd.PersistentFlags().IntVar(&baudRate, "baud", 0, "Serial baud rate (default 115200)")

	portsCmd.Flags().BoolVar(&listAllPorts, "all", false, "Include non-USB serial ports")

	recordCmd.Flags().StringVar(&recordLabel, "label", "", "Label to record under (required)")
	recordCmd.Flags().IntVar(&recordCount, "count", 1, "Number of recordings to take")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Capture window per recording (default 2.5s)")

	samplesListCmd.Flags().StringVar(&samplesLabel, "label", "", "Restrict listing to one label")
	samplesExportCmd.Flags().StringVar(&exportOut, "out", "dataset.csv", "Output CSV path")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(runCmd)

	labelsCmd.AddCommand(labelsListCmd)
	labelsCmd.AddCommand(labelsAddCmd)

	samplesCmd.AddCommand(samplesListCmd)
	samplesCmd.AddCommand(samplesShowCmd)
	samplesCmd.AddCommand(samplesDeleteCmd)
	samplesCmd.AddCommand(samplesExportCmd)
}

func main() {
	// A .env file can supply SENSORBENCH_* overrides; absence is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
