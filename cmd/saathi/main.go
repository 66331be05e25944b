// Command saathi is the entry point for the Saathi voice companion.
//
// Usage:
//
//	saathi [-config path] serve          run the HTTP and websocket service
//	saathi [-config path] chat           talk to Saathi in the terminal
//	saathi [-config path] name <name>    explain the meaning of a name
//	saathi [-config path] quiz <topic>   run a topic quiz in the terminal
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/saathi/internal/app"
	"github.com/MrWong99/saathi/internal/config"
	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/internal/quiz"
	"github.com/MrWong99/saathi/internal/server"
	sttconsole "github.com/MrWong99/saathi/pkg/provider/stt/console"
	ttsconsole "github.com/MrWong99/saathi/pkg/provider/tts/console"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "dotenv file loaded before the configuration")
	flag.Usage = usage
	flag.Parse()

	cmd, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "saathi: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "saathi: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "saathi: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "saathi",
		ServiceVersion: version,
		Registry:       reg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	registry := config.NewRegistry()
	registerBuiltinProviders(registry)
	providers, err := buildProviders(cfg, registry)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	switch cmd {
	case "serve":
		printStartupSummary(cfg)
		err = serve(ctx, application, cfg, *configPath, reg)
	case "chat":
		err = chat(ctx, application, providers)
	case "name":
		err = nameMeaning(ctx, application, strings.Join(args, " "))
	case "quiz":
		err = runQuiz(ctx, application, strings.Join(args, " "), os.Stdin, os.Stdout)
	default:
		usage()
		return 2
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("saathi failed", "command", cmd, "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: saathi [flags] <serve|chat|name <name>|quiz <topic>>\n\nFlags:\n")
	flag.PrintDefaults()
}

// serve runs the HTTP service, the background workers and the config
// watcher until ctx is cancelled.
func serve(ctx context.Context, a *app.App, cfg *config.Config, path string, reg *prometheus.Registry) error {
	watcher, err := config.NewWatcher(path, func(old, new *config.Config) {
		if config.ConversationChanged(old, new) {
			slog.Info("conversation settings reloaded", "persona", new.Conversation.Persona, "locale", new.Conversation.Locale)
			a.SetConversation(new.Conversation)
		}
	})
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	srv := server.New(a, server.WithRegistry(reg))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Server.ListenAddr) })

	slog.Info("server ready, press Ctrl+C to shut down")
	return g.Wait()
}

// chat runs a console conversation over the configured transcript source
// and synthesizer, defaulting to the terminal.
func chat(ctx context.Context, a *app.App, providers *app.Providers) error {
	src, synth := providers.STT, providers.TTS
	if src == nil {
		src = sttconsole.New(os.Stdin, sttconsole.WithPrompt(os.Stdout, "you> "))
	}
	if synth == nil {
		synth = ttsconsole.New(os.Stdout)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	err := a.Chat(ctx, src, synth, os.Stderr)
	cancel()
	<-runDone
	return err
}

func nameMeaning(ctx context.Context, a *app.App, name string) error {
	meaning, err := quiz.NameMeaning(ctx, a.Generator(), name, a.Locale())
	if err != nil {
		return err
	}
	fmt.Println(meaning)
	return nil
}

// runQuiz defines topic, then alternates questions and answers read from in
// until the input ends or the user types "exit".
func runQuiz(ctx context.Context, a *app.App, topic string, in io.Reader, out io.Writer) error {
	tutor := quiz.NewTutor(a.Generator(),
		quiz.WithSynthesizer(ttsconsole.New(out, ttsconsole.WithPrefix(""))),
		quiz.WithLocale("en-US"),
		quiz.WithMetrics(a.Metrics()),
	)
	if _, err := tutor.Definition(ctx, topic); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		if _, err := tutor.NextQuestion(ctx); err != nil {
			return err
		}
		var answer string
		for answer == "" {
			fmt.Fprint(out, "answer> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			answer = strings.TrimSpace(scanner.Text())
		}
		if answer == "exit" {
			return nil
		}
		if _, err := tutor.CheckAnswer(ctx, answer); err != nil {
			return err
		}
	}
}
