package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/biosignals/acquire"
	"github.com/mklimuk/biosignals/cmd/acq/console"
	"github.com/mklimuk/biosignals/sink"
)

var streamCmd = cli.Command{
	Name:  "stream",
	Usage: "check, initialize and stream samples as CSV until interrupted",
	Flags: []cli.Flag{
		deviceFlag,
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "CSV file; '-' writes to stdout",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "stop after that many samples",
		},
		&cli.BoolFlag{
			Name:  "no-header",
			Usage: "omit the CSV header row",
		},
		&cli.BoolFlag{
			Name:  "log-samples",
			Usage: "log every sample at debug level",
		},
	},
	Action: func(c *cli.Context) error {
		ctx, cfg, sess, err := openSession(c)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		src, err := cfg.Stream(sess, c.String("device"))
		if err != nil {
			closeSession(ctx, sess)
			return console.Exit(1, "%v", err)
		}

		output := cfg.Output
		if c.IsSet("output") {
			output = c.String("output")
		}
		var w io.Writer = os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				closeSession(ctx, sess)
				return console.Exit(1, "could not create output: %v", err)
			}
			defer f.Close()
			w = f
		}
		var csvOpts []sink.CSVOpt
		if !c.Bool("no-header") {
			csvOpts = append(csvOpts, sink.WithHeader())
		}
		sinks := sink.Multi{sink.NewCSV(w, csvOpts...)}
		if c.Bool("log-samples") {
			sinks = append(sinks, sink.NewLog(slog.Default(), slog.LevelDebug))
		}

		loop := acquire.NewLoop(sess, src, sinks,
			acquire.WithLimit(c.Int("limit")),
			acquire.WithStateHook(func(st acquire.State) {
				slog.Debug("acquisition state", "source", src.Name(), "state", st)
			}),
		)
		err = loop.Run(ctx)
		if err != nil && !errors.Is(err, ctx.Err()) {
			return console.Exit(1, "acquisition from %s stopped: %s", src.Name(), console.Red(err))
		}
		if output != "" && output != "-" {
			console.PInfof(console.PictoFinish, "%d samples written to %s", loop.Samples(), output)
		}
		return nil
	},
}
