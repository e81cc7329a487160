package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/biosignals/cmd/acq/console"
	"github.com/mklimuk/biosignals/config"
)

var checkCmd = cli.Command{
	Name:  "check",
	Usage: "verify the device answers with its identity",
	Flags: []cli.Flag{deviceFlag},
	Action: func(c *cli.Context) error {
		ctx, dev, sess, drv, err := openDriver(c)
		if err != nil {
			return err
		}
		defer closeSession(ctx, sess)
		ok, err := drv.Check(ctx)
		if err != nil {
			return console.Exit(1, "device check on %s failed: %s", drv.Device(), console.Red(err))
		}
		if !ok {
			console.PInfof(console.PictoStop, "%s: %s", drv.Device(), console.Red("unexpected identity"))
			return console.Exit(2, "")
		}
		console.PInfof(console.Picto(dev.Type), "%s: %s", drv.Device(), console.Green("ok"))
		return nil
	},
}

var initCmd = cli.Command{
	Name:  "init",
	Usage: "check the device and run its initialization sequence",
	Flags: []cli.Flag{deviceFlag},
	Action: func(c *cli.Context) error {
		ctx, dev, sess, drv, err := openDriver(c)
		if err != nil {
			return err
		}
		defer closeSession(ctx, sess)
		ok, err := drv.Check(ctx)
		if err != nil || !ok {
			return console.Exit(1, "device %s not detected: %v", drv.Device(), err)
		}
		if err := drv.Init(ctx); err != nil {
			return console.Exit(1, "could not initialize %s: %s", drv.Device(), console.Red(err))
		}
		console.PInfof(console.Picto(dev.Type), "%s: %s", drv.Device(), console.Green("initialized"))
		return nil
	},
}

var configCmd = cli.Command{
	Name:  "config",
	Usage: "session configuration",
	Subcommands: cli.Commands{
		&configShowCmd,
	},
}

var configShowCmd = cli.Command{
	Name:  "show",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		return printYAML(cfg)
	},
}

func printYAML(cfg config.Session) error {
	b, err := cfg.Marshal()
	if err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	_, err = os.Stdout.Write(b)
	return err
}
