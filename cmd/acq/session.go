package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/biosignals/cmd/acq/console"
	"github.com/mklimuk/biosignals/config"
	"github.com/mklimuk/biosignals/session"
	"github.com/mklimuk/biosignals/snsctx"
)

var deviceFlag = &cli.StringFlag{
	Name:    "device",
	Aliases: []string{"d"},
	Usage:   "device name from the configuration; defaults to the first device",
}

func loadConfig(c *cli.Context) (config.Session, error) {
	path := c.String("config")
	if path == "" {
		slog.Debug("no configuration file given, using defaults")
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Session{}, console.Exit(1, "could not load configuration: %v", err)
	}
	return cfg, nil
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

// openSession loads the configuration and opens the bus session described by
// it. The caller closes the session.
func openSession(c *cli.Context) (context.Context, config.Session, *session.Session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, config.Session{}, nil, err
	}
	ctx := commandContext(c)
	sess, err := cfg.Open(ctx)
	if err != nil {
		return nil, config.Session{}, nil, console.Exit(1, "could not open %s session: %v", cfg.Platform, err)
	}
	return ctx, cfg, sess, nil
}

func closeSession(ctx context.Context, sess *session.Session) {
	if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("could not close session", "error", err)
	}
}

// openDriver opens a session and builds the driver of the device named by the
// --device flag.
func openDriver(c *cli.Context) (context.Context, config.Device, *session.Session, config.Driver, error) {
	ctx, cfg, sess, err := openSession(c)
	if err != nil {
		return nil, config.Device{}, nil, nil, err
	}
	dev, err := cfg.Device(c.String("device"))
	if err != nil {
		closeSession(ctx, sess)
		return nil, config.Device{}, nil, nil, console.Exit(1, "%v", err)
	}
	drv, err := dev.Source(sess)
	if err != nil {
		closeSession(ctx, sess)
		return nil, config.Device{}, nil, nil, console.Exit(1, "%v", err)
	}
	return ctx, dev, sess, drv, nil
}
