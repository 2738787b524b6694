package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrymomot/togglekit/pkg/config"
	"github.com/dmitrymomot/togglekit/pkg/feature"
	"github.com/dmitrymomot/togglekit/pkg/logger"
	"github.com/dmitrymomot/togglekit/pkg/redis"
)

var errUsage = errors.New("usage: togglectl [-env-file path] list|get|check|create|enable|disable|delete|seed|watch [args]")

type appConfig struct {
	Env             string        `env:"APP_ENV" envDefault:"development"`
	Service         string        `env:"APP_NAME" envDefault:"togglectl"`
	FlagsKey        string        `env:"FEATURE_FLAGS_KEY" envDefault:"feature:flags"`
	RefreshInterval time.Duration `env:"FEATURE_REFRESH_INTERVAL" envDefault:"5s"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("togglectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env-file", "", "load environment variables from this file")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	if *envFile != "" {
		if err := config.LoadEnv(*envFile); err != nil {
			return err
		}
	}

	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}
	var storeCfg redis.Config
	if err := config.Load(&storeCfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, app.Service),
		logger.WithOutput(stderr),
	)
	logger.SetAsDefault(log)

	client := redis.New(storeCfg, redis.WithLogger(log))
	defer client.Close()

	provider, err := feature.NewRedisProvider(ctx, client,
		feature.WithKey(app.FlagsKey),
		feature.WithRefreshInterval(app.RefreshInterval),
		feature.WithStrategy("pre-production",
			feature.NewEnvironmentStrategy([]string{"development", "staging"}, feature.StaticEnvironment(app.Env))),
		feature.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer provider.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return list(ctx, provider, stdout, rest)
	case "watch":
		return watch(ctx, client, provider, stdout, log)
	case "seed":
		if len(rest) != 1 {
			return errUsage
		}
		return seed(ctx, provider, stdout, rest[0])
	case "create":
		if len(rest) < 1 {
			return errUsage
		}
		return provider.CreateFlag(ctx, &feature.Flag{Name: rest[0], Description: strings.Join(rest[1:], " ")})
	}

	if len(rest) != 1 {
		return errUsage
	}
	name := rest[0]

	switch cmd {
	case "get":
		f, err := provider.GetFlag(ctx, name)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	case "check":
		enabled, err := provider.IsEnabled(ctx, name)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, enabled)
		return err
	case "enable", "disable":
		f, err := provider.GetFlag(ctx, name)
		if err != nil {
			return err
		}
		f.Enabled = cmd == "enable"
		return provider.UpdateFlag(ctx, f)
	case "delete":
		return provider.DeleteFlag(ctx, name)
	default:
		return errUsage
	}
}

func list(ctx context.Context, p *feature.RedisProvider, out io.Writer, tags []string) error {
	flags, err := p.ListFlags(ctx, tags...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENABLED\tSTRATEGY\tTAGS\tDESCRIPTION")
	for _, f := range flags {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", f.Name, f.Enabled, f.Strategy, strings.Join(f.Tags, ","), f.Description)
	}
	return w.Flush()
}

func seed(ctx context.Context, p *feature.RedisProvider, out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	flags, err := feature.LoadFlags(f)
	if err != nil {
		return err
	}
	created, err := p.Seed(ctx, flags...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "created %d of %d flags\n", created, len(flags))
	return err
}

func watch(ctx context.Context, client *redis.Client, p *feature.RedisProvider, out io.Writer, log *slog.Logger) error {
	msgs := make(chan feature.ChangeMessage, 16)
	p.Subscribe(func(msg feature.ChangeMessage) {
		select {
		case msgs <- msg:
		default:
			log.Warn("change message dropped, output is too slow", logger.MessageID(msg.ID))
		}
	})
	log.InfoContext(ctx, "watching flag changes",
		logger.Channel(p.Channel()),
		slog.Int("handlers", client.HandlerCount(p.Channel())),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			if _, err := fmt.Fprintf(out, "%s %s %s\n", msg.ID, msg.Action, msg.Flag); err != nil {
				return err
			}
		}
	}
}
