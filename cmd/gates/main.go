// Package main is the entry point for the touch-gate installation controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bbernstein/lacylights-gates/internal/config"
	"github.com/bbernstein/lacylights-gates/internal/services/audio"
	"github.com/bbernstein/lacylights-gates/internal/services/dmx"
	"github.com/bbernstein/lacylights-gates/internal/services/installation"
	"github.com/bbernstein/lacylights-gates/internal/services/metrics"
	"github.com/bbernstein/lacylights-gates/internal/services/network"
	"github.com/bbernstein/lacylights-gates/internal/services/pubsub"
	"github.com/bbernstein/lacylights-gates/internal/services/sensor"
	"github.com/bbernstein/lacylights-gates/internal/services/status"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var errInputEnded = errors.New("sensor input ended")

type options struct {
	layout   string
	logLevel string
	simulate bool
	seed     int64
	strict   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "gates",
		Short: "Touch-gate installation controller",
		Long: `gates drives a circular sequence of touch gates. Each gate lights one
target pad; touching it plays the pad's sound and moves the wave of light
to the next gate.

Configuration is read from the environment (and a .env file if present).
Use "gates run --simulate" to play from the keyboard with PIN:<id>:1 lines.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debug("No .env file found, using environment variables")
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.layout, "layout", "l", "", "layout file (overrides LAYOUT_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the installation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(opts)
			if err := configureLogging(cfg.LogLevel); err != nil {
				return err
			}
			printBanner(cmd.OutOrStdout(), cfg)

			src, err := sensor.Open(sensor.Config{
				Port:        cfg.SensorPort,
				Baud:        cfg.SensorBaud,
				OpenTimeout: cfg.SensorRetry,
			})
			if err != nil {
				return fmt.Errorf("failed to open sensor input: %w", err)
			}
			defer src.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, src)
		},
	}
	runCmd.Flags().BoolVar(&opts.simulate, "simulate", false, "read sensors from stdin with no DMX or audio output")
	runCmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed for target selection (overrides RANDOM_SEED)")

	validateCmd := &cobra.Command{
		Use:   "validate [layout]",
		Short: "Check a layout file and its sounds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(opts)
			path := cfg.LayoutFile
			if len(args) == 1 {
				path = args[0]
			}
			return validate(cmd.OutOrStdout(), path, cfg.SoundDir, opts.strict)
		},
	}
	validateCmd.Flags().BoolVar(&opts.strict, "strict", false, "fail when a sound file is missing")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gates %s (build %s, commit %s)\n", Version, BuildTime, GitCommit)
		},
	}

	interfacesCmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List networks usable for Art-Net broadcast",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listInterfaces(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(runCmd, validateCmd, versionCmd, interfacesCmd)
	return rootCmd
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig(opts *options) *config.Config {
	cfg := config.Load()
	if opts.layout != "" {
		cfg.LayoutFile = opts.layout
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.seed != 0 {
		cfg.RandomSeed = opts.seed
	}
	if opts.simulate {
		cfg.SensorPort = "-"
		cfg.DMXOutput = dmx.OutputNone
		cfg.AudioBackend = audio.BackendNone
	}
	return cfg
}

func configureLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

// run wires the services together and blocks until ctx is cancelled or the
// sensor input ends. Every pad is dark when it returns.
func run(ctx context.Context, cfg *config.Config, src io.ReadCloser) error {
	layout, err := config.LoadLayout(cfg.LayoutFile)
	if err != nil {
		return err
	}

	broadcast := cfg.ArtNetBroadcast
	if cfg.DMXOutput == dmx.OutputArtNet {
		if broadcast, err = network.ResolveBroadcast(broadcast); err != nil {
			return err
		}
	}
	output, err := dmx.Open(dmx.OutputConfig{
		Kind:          cfg.DMXOutput,
		BroadcastAddr: broadcast,
		Port:          cfg.ArtNetPort,
		Universe:      cfg.ArtNetUniverse,
		SerialPort:    cfg.EnttecPort,
		OpenTimeout:   cfg.EnttecRetry,
	})
	if err != nil {
		return fmt.Errorf("failed to open DMX output: %w", err)
	}
	dmxService := dmx.NewService(dmx.Config{IdleRateHz: cfg.DMXIdleRate}, output)
	dmxService.Start()
	defer dmxService.Stop()

	player, err := audio.Open(audio.Config{
		Backend:  cfg.AudioBackend,
		SoundDir: cfg.SoundDir,
		Player:   cfg.AudioPlayer,
	})
	if err != nil {
		return fmt.Errorf("failed to open audio: %w", err)
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.WithField("seed", seed).Debug("target selection seeded")

	ps := pubsub.New()
	m := metrics.New()
	svc, err := installation.NewService(layout, installation.Deps{
		Lighting: dmxService,
		Audio:    player,
		Rand:     rand.New(rand.NewSource(seed)),
		PubSub:   ps,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error {
		// Status clients are dropped once the final blackout is published.
		<-svc.Done()
		ps.Close()
		return nil
	})
	g.Go(func() error {
		err := sensor.Run(gctx, src, svc.Events())
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return fmt.Errorf("sensor input failed: %w", err)
		default:
			return errInputEnded
		}
	})
	if cfg.WatchLayout {
		g.Go(func() error { return svc.WatchLayout(gctx, cfg.LayoutFile, installation.DefaultSettleDelay) })
	}
	if cfg.StatusAddr != "" {
		srv := status.NewServer(status.Config{
			Addr:       cfg.StatusAddr,
			CORSOrigin: cfg.CORSOrigin,
			Version:    Version,
			Debug:      log.IsLevelEnabled(log.DebugLevel),
		}, svc, ps, m)
		g.Go(func() error { return srv.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, errInputEnded) {
		log.Info("sensor input ended, shutting down")
		return nil
	}
	if err == nil {
		log.Info("installation stopped")
	}
	return err
}

// validate loads a layout and reports sounds missing from soundDir.
func validate(w io.Writer, path, soundDir string, strict bool) error {
	layout, err := config.LoadLayout(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	pads := 0
	sounds := map[string]bool{layout.ErrorCue(): true}
	for _, gate := range layout.Gates {
		pads += len(gate.Pads)
		for _, pad := range gate.Pads {
			sounds[pad.Sound] = true
		}
	}
	fmt.Fprintf(w, "%s: %d gates, %d pads, pre %d, keep %d\n", path, len(layout.Gates), pads, layout.Pre, layout.Keep)

	var missing int
	for sound := range sounds {
		if _, err := audio.Resolve(soundDir, sound); err != nil {
			fmt.Fprintf(w, "  missing sound %q in %s\n", sound, soundDir)
			missing++
		}
	}
	if strict && missing > 0 {
		return fmt.Errorf("%d sound(s) missing", missing)
	}
	return nil
}

// listInterfaces prints the broadcast candidates in preference order.
func listInterfaces(w io.Writer) error {
	cands, err := network.Candidates()
	if err != nil {
		return err
	}
	for _, c := range cands {
		fmt.Fprintf(w, "%-12s %-9s %-15s broadcast %s\n", c.Interface, c.Kind, c.Address, c.Broadcast)
	}
	fmt.Fprintf(w, "%-12s %-9s %-15s broadcast %s\n", "(global)", "", "", network.GlobalBroadcast)
	return nil
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "============================================")
	fmt.Fprintln(w, "  Touch Gates")
	fmt.Fprintf(w, "  Version: %s\n", Version)
	fmt.Fprintf(w, "  Build:   %s\n", BuildTime)
	fmt.Fprintf(w, "  Commit:  %s\n", GitCommit)
	fmt.Fprintln(w, "============================================")
	fmt.Fprintf(w, "  Layout:  %s\n", cfg.LayoutFile)
	fmt.Fprintf(w, "  Sensors: %s\n", cfg.SensorPort)
	fmt.Fprintf(w, "  DMX:     %s\n", cfg.DMXOutput)
	fmt.Fprintf(w, "  Audio:   %s\n", cfg.AudioBackend)
	fmt.Fprintf(w, "  Status:  %s\n", cfg.StatusAddr)
	fmt.Fprintln(w, "============================================")
}
