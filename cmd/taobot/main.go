// Taobot is the Shop Táo Ngon sales assistant: a tool-augmented chat loop
// over Gemini or OpenRouter, served on the terminal or over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/shoptaongon/taobot/internal/agent"
	"github.com/shoptaongon/taobot/internal/channels/terminal"
	"github.com/shoptaongon/taobot/internal/config"
	"github.com/shoptaongon/taobot/internal/core"
	"github.com/shoptaongon/taobot/internal/gateway"
	"github.com/shoptaongon/taobot/internal/health"
	"github.com/shoptaongon/taobot/internal/logging"
	"github.com/shoptaongon/taobot/internal/memory"
	"github.com/shoptaongon/taobot/internal/session"
	"github.com/shoptaongon/taobot/internal/store"
	"github.com/shoptaongon/taobot/internal/tools"
	"github.com/shoptaongon/taobot/internal/wiring"

	_ "github.com/shoptaongon/taobot/internal/gemini"
	_ "github.com/shoptaongon/taobot/internal/openrouter"
)

type options struct {
	configPath string
	serve      bool
	addr       string
	logLevel   string
}

func main() {
	var opts options
	pflag.StringVar(&opts.configPath, "config", "", "path to config file (default: config.{json,yaml} in the config dir)")
	pflag.BoolVar(&opts.serve, "serve", false, "serve the HTTP chat API instead of the terminal")
	pflag.StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides server.addr)")
	pflag.StringVar(&opts.logLevel, "log-level", "", "log level (overrides log.level)")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	logger := logging.New(cfg.Log, os.Stderr)

	client, err := wiring.LoadClient(ctx, cfg.LLM, logging.Component(logger, "llm"))
	switch {
	case errors.Is(err, core.ErrNotConfigured):
		logger.Warn().Err(err).Msg("assistant not configured; every message will get the configuration notice")
		client = nil
	case err != nil:
		return fmt.Errorf("llm client: %w", err)
	}

	executor, err := wiring.LoadExecutor(cfg.Tools, logging.Component(logger, "tools"))
	if err != nil {
		return fmt.Errorf("tool executor: %w", err)
	}

	db, err := store.Open(ctx, cfg.Session.DBPath)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer db.Close()

	persona, err := agent.LoadPersona(cfg.ConfigDir, cfg.Assistant.Name, cfg.Assistant.Store)
	if err != nil {
		logger.Warn().Err(err).Msg("using built-in persona")
	}

	profiles := session.NewStaticProfiles()
	if !opts.serve && (cfg.User.Name != "" || len(cfg.User.Preferences) > 0) {
		profiles.Fallback = &session.Profile{Name: cfg.User.Name, Preferences: cfg.User.Preferences}
	}
	sessions := session.NewStore(profiles)

	loop := &agent.Loop{
		Client:   client,
		Sessions: sessions,
		Executor: executor,
		Tools:    tools.DefaultRegistry().Specs(),
		Preamble: agent.NewPreamble(persona),
		Logger:   logging.Component(logger, "agent"),
	}

	healthReg := health.NewRegistry()
	healthReg.Register("llm", loop)
	healthReg.Register("database", db)
	if client != nil {
		compactor := memory.NewCompactor(client, sessions, cfg.Session.CompactThreshold, logging.Component(logger, "memory"))
		loop.Compactor = compactor
		healthReg.Register("compactor", compactor)
		if c, ok := client.(health.Checker); ok {
			healthReg.Register("llm_backend", c)
		}
	}

	gw := gateway.New(logging.Component(logger, "gateway"))
	healthReg.Register("gateway", gw)
	if opts.serve {
		gw.Register(&gateway.Server{
			Addr:     cfg.Server.Addr,
			Chat:     loop,
			Health:   healthReg,
			Profiles: profiles,
			Logger:   logging.Component(logger, "http"),
		})
	} else {
		// Console logs would interleave with the REPL.
		if cfg.Log.Level == "" || cfg.Log.Level == "info" {
			loop.Logger = loop.Logger.Level(zerolog.WarnLevel)
		}
		gw.Register(&terminal.Channel{
			Chat:      loop,
			Device:    db,
			Assistant: cfg.Assistant.Name,
			Welcome:   agent.WelcomeMessage(cfg.Assistant.Name),
			In:        os.Stdin,
			Out:       os.Stdout,
			Logger:    logging.Component(logger, "terminal"),
		})
	}

	return gw.StartAll(ctx)
}
