package main

import (
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/adapter"
	"github.com/mklimuk/biosignals/cmd/acq/console"
)

var adapterFlag = &cli.IntFlag{
	Name:  "adapter",
	Usage: "adapter id as listed by 'usb detect'",
}

func adapterID(c *cli.Context) []int {
	if c.IsSet("adapter") {
		return []int{c.Int("adapter")}
	}
	return nil
}

func encodeYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "USB adapter driving the select lines",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221GPIOCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Flags: []cli.Flag{adapterFlag},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		status, err := a.Status(commandContext(c), adapterID(c)...)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encodeYAML(status)
	},
}

var mcp2221GPIOCmd = cli.Command{
	Name: "gpio",
	Subcommands: cli.Commands{
		&mcp2221GPIOReadCmd,
		&mcp2221GPIOParamsCmd,
		&mcp2221GPIOSetCmd,
	},
}

var mcp2221GPIOReadCmd = cli.Command{
	Name:  "read",
	Usage: "read pin modes and levels",
	Flags: []cli.Flag{adapterFlag},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		values, err := a.ReadGPIO(commandContext(c), adapterID(c)...)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encodeYAML(values)
	},
}

var mcp2221GPIOParamsCmd = cli.Command{
	Name:  "params",
	Usage: "read pin designations",
	Flags: []cli.Flag{adapterFlag},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		params, err := a.GetGPIOParameters(commandContext(c), adapterID(c)...)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encodeYAML(params)
	},
}

var mcp2221GPIOSetCmd = cli.Command{
	Name:      "set",
	Usage:     "configure a pin as output and drive it",
	ArgsUsage: "<GPn> <0|1>",
	Flags:     []cli.Flag{adapterFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		line := biosignals.LineID(c.Args().Get(0))
		level, err := strconv.ParseBool(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "invalid level %q", c.Args().Get(1))
		}
		ctx := commandContext(c)
		lines := adapter.NewMCP2221Lines(adapter.NewMCP2221(), adapterID(c)...)
		if err := lines.Configure(ctx, line); err != nil {
			return console.Exit(1, "could not configure %s: %s", line, console.Red(err))
		}
		if err := lines.SetLine(ctx, line, biosignals.Level(level)); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "%s %s", line, biosignals.Level(level))
		return nil
	},
}
