package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"exeskin/export"
	"exeskin/info"
	"exeskin/parallel"
	"exeskin/patch"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Workers   int    `help:"Number of parallel workers, 0 for one per CPU" default:"0"`
	LogLevel  string `help:"Log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string `help:"Log format" enum:"text,json" default:"text"`

	Info   info.CLICmd   `cmd:"" help:"List the bitmap resources of an executable"`
	Export export.CLICmd `cmd:"" help:"Save the bitmap resources of an executable as images"`
	Patch  patch.CLICmd  `cmd:"" help:"Replace bitmaps and colour constants in an executable"`
}

func (c *CLI) AfterApply() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch c.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("exeskin"),
		kong.Description("Inspect and re-skin the bitmap resources of Windows executables."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil)),
	)

	pool := parallel.Start(cli.Workers)
	defer pool.Close()

	err := kctx.Run(pool)
	kctx.FatalIfErrorf(err)
}
