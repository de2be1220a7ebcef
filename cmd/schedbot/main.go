package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/nimslack/schedbot/pkg/bot"
	"github.com/nimslack/schedbot/pkg/config"
	"github.com/nimslack/schedbot/pkg/handlers"
	"github.com/nimslack/schedbot/pkg/nim"
	"github.com/nimslack/schedbot/pkg/store"
	"github.com/nimslack/schedbot/server"
)

// Opts with all CLI options
type Opts struct {
	EnvFile string `long:"env-file" env:"ENV_FILE" description:"env file preloaded before reading configuration"`

	// Common options
	Dbg     bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		log.Printf("[ERROR] configuration: %v", err)
		os.Exit(1)
	}

	setupLog(cfg.Debug || opts.Dbg, cfg.Slack.BotToken, cfg.Slack.SigningSecret, cfg.NIM.APIKey)

	log.Printf("[INFO] starting %s version %s", server.ServiceName, revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		log.Printf("[INFO] received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	err = run(ctx, cfg)
	cancel()

	if err != nil {
		log.Printf("[ERROR] failed to start app: %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

// run wires the components and serves in the configured mode until ctx
// is cancelled. The deferred store close is the shutdown cleanup hook.
func run(ctx context.Context, cfg *config.Settings) error {
	st, err := store.Open(ctx, cfg.GetDatabaseConfig(), cfg.GetRedisConfig())
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.Close()

	nimClient := nim.New(cfg.GetNIMConfig())
	slashHandlers := handlers.NewSlashCommandHandlers(nimClient, st.Cache(cfg.Redis.TTL))
	interactionHandlers := handlers.NewInteractionHandlers(nimClient)

	router := bot.New(cfg, slashHandlers, interactionHandlers)

	if cfg.HTTPMode {
		srv := server.New(router, server.Config{
			Listen:        cfg.ListenAddr(),
			SigningSecret: cfg.Slack.SigningSecret,
			Version:       revision,
			Debug:         cfg.Debug,
		})
		return srv.Run(ctx)
	}

	log.Printf("[INFO] ⚡️ bot running in socket mode")
	return router.Run(ctx)
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Out(os.Stdout), lgr.Err(os.Stderr)}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
