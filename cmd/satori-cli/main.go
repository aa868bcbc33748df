// Command satori-cli connects to one or more Satori gateways, logs every
// event it receives and answers "ping" with "pong".
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	satori "github.com/nonebot/adapter-satori"
	"github.com/nonebot/adapter-satori/config"
	"github.com/nonebot/adapter-satori/message"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	var (
		configPath string
		envFile    string
		logLevel   string
		logFormat  string
	)
	flagSet := pflag.NewFlagSet("satori-cli", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML or JSONC config file")
	flagSet.StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flagSet.StringVar(&logFormat, "log-format", "", "override the configured log format (text, json)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(stderr, cfg)
	if err != nil {
		return err
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = logger
	clientCfg.Handler = handle(logger)
	client, err := satori.New(clientCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return client.Run(ctx)
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(satori.NewRedactingHandler(handler, cfg.Tokens()...)), nil
}

func handle(logger *slog.Logger) satori.Handler {
	return func(ctx context.Context, bot *satori.Bot, ev *satori.Event) {
		logger.Info("event",
			"bot", bot.Identity(),
			"type", ev.Type,
			"session", ev.SessionID(),
			"to_me", ev.IsToMe(),
			"content", ev.Content.String(),
		)
		if ev.Category != satori.CategoryMessage || ev.Type != satori.EventMessageCreated {
			return
		}
		if ev.UserID() == bot.SelfID() {
			return
		}
		if strings.TrimSpace(ev.PlainText()) != "ping" {
			return
		}
		if _, err := bot.Reply(ctx, ev, message.New(message.NewText("pong")), true); err != nil {
			logger.Warn("reply failed", "bot", bot.Identity(), "error", err)
		}
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `satori-cli connects to Satori gateways and logs their events.

Endpoints come from --config, or from SATORI_HOST, SATORI_PORT,
SATORI_PATH and SATORI_TOKEN when the config names none.

Usage:
  satori-cli [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
