// Exhibition — timed Point-E generation for a gallery installation
//
// Usage:
//
//	exhibition run
//	exhibition run --prompts prompts.csv --interval 30 --no-browser
//	exhibition detect
//	exhibition generate
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/api"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/browser"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/config"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/exhibit"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/metrics"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/pointe"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/prompts"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/viewer"
)

const banner = `
███████╗██╗  ██╗██╗  ██╗██╗██████╗ ██╗████████╗██╗ ██████╗ ███╗   ██╗
██╔════╝╚██╗██╔╝██║  ██║██║██╔══██╗██║╚══██╔══╝██║██╔═══██╗████╗  ██║
█████╗   ╚███╔╝ ███████║██║██████╔╝██║   ██║   ██║██║   ██║██╔██╗ ██║
██╔══╝   ██╔██╗ ██╔══██║██║██╔══██╗██║   ██║   ██║██║   ██║██║╚██╗██║
███████╗██╔╝ ██╗██║  ██║██║██████╔╝██║   ██║   ██║╚██████╔╝██║ ╚████║
╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝╚═════╝ ╚═╝   ╚═╝   ╚═╝ ╚═════╝ ╚═╝  ╚═══╝

  no one is there  ·  Point-E exhibition controller
`

var (
	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true).Render("✓")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true).Render("✗")
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// flags shared across subcommands; zero values mean "use the config file".
type options struct {
	configPath  string
	promptsPath string
	interval    int
	port        int
	host        string
	order       string
	noBrowser   bool
}

func main() {
	// A .env next to the binary can carry EXHIBITION_* overrides.
	_ = godotenv.Load()

	var opts options

	root := &cobra.Command{
		Use:   "exhibition",
		Short: "Exhibition — timed Point-E generation with a local web viewer",
		Long:  banner,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", envOrDefault("EXHIBITION_CONFIG", "exhibition_config.json"),
		"Path to the persisted configuration file")
	pf.StringVar(&opts.promptsPath, "prompts", envOrDefault("EXHIBITION_PROMPTS", "prompts.csv"),
		"Path to the prompts CSV (Description, Material, Object columns)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the exhibition: timer loop + viewer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExhibition(&opts)
		},
	}
	f := run.Flags()
	f.IntVar(&opts.interval, "interval", 0, "Seconds between generations (overrides config)")
	f.IntVarP(&opts.port, "port", "p", 0, "Viewer HTTP port (overrides config)")
	f.StringVar(&opts.host, "host", "", "Bind address (overrides config)")
	f.StringVar(&opts.order, "order", "", `Prompt order: "cyclic" or "random" (overrides config)`)
	f.BoolVar(&opts.noBrowser, "no-browser", false, "Do not open a browser window")

	detect := &cobra.Command{
		Use:   "detect",
		Short: "Auto-detect Point-E, viewer and python environment paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadAndDetect(opts.configPath)
			return err
		},
	}

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(&opts)
		},
	}

	root.AddCommand(run, detect, generate)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadAndDetect loads the persisted config, fills any "auto" fields by
// probing the filesystem, validates the result and writes it back.
func loadAndDetect(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, config.ErrNotFound):
		fmt.Printf("  %s no config at %s, detecting paths\n", dimStyle.Render("·"), path)
	case err != nil:
		return config.Config{}, err
	}

	cwd, _ := os.Getwd()
	if err := config.Detect(&cfg, cwd); err != nil {
		fmt.Printf("  %s %v\n", failMark, err)
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  %s %v\n", failMark, err)
		return config.Config{}, err
	}

	fmt.Printf("  %s Point-E:  %s\n", okMark, cfg.PointEDir)
	fmt.Printf("  %s viewer:   %s\n", okMark, cfg.ViewerDir)
	if cfg.PointEEnv != "" {
		fmt.Printf("  %s %s env: %s\n", okMark, cfg.EnvType, cfg.PointEEnv)
	} else {
		fmt.Printf("  %s no python env found, using system python\n", dimStyle.Render("·"))
	}

	if err := config.Save(path, cfg); err != nil {
		return config.Config{}, err
	}
	fmt.Printf("  %s config saved to %s\n\n", okMark, path)
	return cfg, nil
}

func runExhibition(opts *options) error {
	fmt.Print(banner)

	cfg, err := loadAndDetect(opts.configPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}

	rows, err := prompts.Load(opts.promptsPath)
	if err != nil {
		return err
	}
	fmt.Printf("  %s %d prompts from %s\n", okMark, len(rows), opts.promptsPath)

	var source *prompts.Source
	if cfg.PromptOrder == config.OrderRandom {
		source = prompts.NewRandomSource(rows, time.Now().UnixNano())
	} else {
		source = prompts.NewSource(rows)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	mc := metrics.NewCollector()
	runner := pointe.NewPipeline(cfg, logger.Named("pointe"))
	pub := viewer.NewPublisher(cfg.ViewerModelsDir, logger.Named("viewer"))
	loop := exhibit.New(source, runner, pub, mc,
		time.Duration(cfg.IntervalSeconds)*time.Second, logger.Named("exhibit"))
	srv := api.NewServer(cfg, source, loop, mc, logger.Named("api"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Preflight the python side once, while someone is still watching the
	// terminal. Failure is advisory; the loop reports per-tick errors anyway.
	if err := runner.CheckDeps(ctx); err != nil {
		fmt.Printf("  %s %v\n", failMark, err)
		logger.Warn("dependency preflight", zap.Error(err))
	} else {
		fmt.Printf("  %s python dependencies ok\n", okMark)
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	url := fmt.Sprintf("http://localhost:%d", cfg.Port)
	fmt.Printf("\n  viewer:    %s\n", url)
	fmt.Printf("  dashboard: %s/dashboard\n", url)
	fmt.Printf("  interval:  %ds  ·  Ctrl+C to stop\n\n", cfg.IntervalSeconds)

	if cfg.OpenBrowser && !opts.noBrowser {
		go func() {
			// Give the listener a moment before pointing a browser at it.
			time.Sleep(2 * time.Second)
			if err := browser.Open(url, cfg.Browser); err != nil {
				logger.Warn("browser", zap.Error(err))
			}
		}()
	}

	err = srv.Run(ctx, addr)
	<-loopDone
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runOnce performs one generation cycle without the server or the timer.
// Useful as a smoke test before opening night.
func runOnce(opts *options) error {
	cfg, err := loadAndDetect(opts.configPath)
	if err != nil {
		return err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}
	rows, err := prompts.Load(opts.promptsPath)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	runner := pointe.NewPipeline(cfg, logger.Named("pointe"))
	loop := exhibit.New(
		prompts.NewSource(rows),
		runner,
		viewer.NewPublisher(cfg.ViewerModelsDir, logger.Named("viewer")),
		metrics.NewCollector(),
		time.Duration(cfg.IntervalSeconds)*time.Second,
		logger.Named("exhibit"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.CheckDeps(ctx); err != nil {
		fmt.Printf("  %s %v\n", failMark, err)
	}
	return loop.Cycle(ctx)
}

func applyOverrides(cfg *config.Config, opts *options) {
	if opts.interval > 0 {
		cfg.IntervalSeconds = opts.interval
	}
	if opts.port > 0 {
		cfg.Port = opts.port
	}
	if opts.host != "" {
		cfg.Host = opts.host
	}
	if opts.order != "" {
		cfg.PromptOrder = opts.order
	}
}

func newLogger() (*zap.Logger, error) {
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	return c.Build()
}

// envOrDefault returns the value of an env var, or fallback if unset.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
