package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	rdebug "runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cjeanneret/sdcam/internal/config"
	"github.com/cjeanneret/sdcam/internal/debug"
	"github.com/cjeanneret/sdcam/internal/hw/camera"
	"github.com/cjeanneret/sdcam/internal/hw/gpio"
	"github.com/cjeanneret/sdcam/internal/logic/capture"
	"github.com/cjeanneret/sdcam/internal/storage"
	"github.com/cjeanneret/sdcam/internal/web"
)

// options holds the command-line flags. Only flags the user actually set
// override the config file.
type options struct {
	configPath  string
	port        int
	storageRoot string
	debugLevel  int
}

func getVersion() string {
	if info, ok := rdebug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "sdcam",
		Short:        "Serve a still camera and its SD card over HTTP",
		Example:      "  sdcam --config configs/default.yaml\n  sdcam --config configs/dev.toml --port 8080 --debug-level 3",
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			cfg, err := loadConfig(opts, changed)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, opts.configPath)
		},
	}

	f := root.Flags()
	f.StringVarP(&opts.configPath, "config", "c", filepath.Join("configs", "default.yaml"), "path to config file (.yaml, .yml or .toml)")
	f.IntVarP(&opts.port, "port", "p", 0, "override server port")
	f.StringVar(&opts.storageRoot, "storage-root", "", "override storage medium directory")
	f.IntVarP(&opts.debugLevel, "debug-level", "d", 0, "override debug level (0-4)")

	return root
}

// loadConfig reads the config file and applies explicitly set flags on top.
func loadConfig(opts *options, changed map[string]bool) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if changed["port"] {
		cfg.Server.Port = opts.port
	}
	if changed["storage-root"] {
		cfg.Storage.Root = opts.storageRoot
	}
	if changed["debug-level"] {
		cfg.Defaults.DebugLevel = opts.debugLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid override: %w", err)
	}
	return cfg, nil
}

// run boots the appliance and serves until ctx is cancelled.
// Failing to open the medium or its counter record stops the boot before the server starts.
func run(ctx context.Context, cfg *config.Config, cfgPath string) error {
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Step(1, "Opening storage medium")
	medium, err := storage.OpenMedium(cfg.Storage.Root)
	if err != nil {
		debug.Error(err)
		return fmt.Errorf("storage init: %w", err)
	}
	defer medium.Close()
	debug.Info("Storage medium mounted at %s", medium.Dir())

	counter := storage.NewCounter(medium, cfg.Storage.CounterFile)
	if err := counter.Init(); err != nil {
		debug.Error(err)
		return fmt.Errorf("counter init: %w", err)
	}
	files := storage.NewFileStore(medium, counter.Reserved()...)
	if n, err := counter.Read(); err == nil {
		debug.Value("Next sequence", n)
	}

	debug.Step(2, "Initializing GPIO driver")
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Errorf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(3, "Initializing camera")
	sensor, err := newSensorFromConfig(gpioDriver, cfg)
	if err != nil {
		return fmt.Errorf("init camera: %w", err)
	}
	debug.PrintStruct("Camera config", cfg.Camera)

	workflow := capture.NewWorkflow(sensor, counter, files, cfg.FileName)

	debug.Step(4, "Starting web server")
	srv := web.NewServer(cfg.ServerAddress(), cfg.ReadTimeout(), workflow, files)
	debug.Summary(fmt.Sprintf("sdcam ready on %s, medium %s", cfg.ServerAddress(), medium.Dir()))
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// newSensorFromConfig selects a sensor implementation based on configuration.
// Every sensor is driven through the power-down and flash lines; unwired pins are 0.
func newSensorFromConfig(g gpio.Driver, cfg *config.Config) (camera.Sensor, error) {
	var inner camera.Sensor
	switch cfg.Camera.Type {
	case config.CameraCommand:
		s, err := camera.NewCommandSensor(cfg.Camera.Command)
		if err != nil {
			return nil, err
		}
		inner = s
	case config.CameraTestPattern:
		inner = camera.NewTestPatternSensor(cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.JPEGQuality)
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}

	return camera.NewPoweredSensor(
		inner,
		g,
		cfg.Camera.PowerDownPin,
		cfg.Camera.FlashPin,
		cfg.Warmup(),
		cfg.Camera.KeepAwake,
	), nil
}
