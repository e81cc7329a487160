package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/biosignals/cmd/acq/console"
	"github.com/mklimuk/biosignals/register"
)

var regCmd = cli.Command{
	Name:  "reg",
	Usage: "raw register access",
	Subcommands: cli.Commands{
		&regReadCmd,
		&regWriteCmd,
		&regBitsCmd,
	},
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return byte(v), nil
}

var regReadCmd = cli.Command{
	Name:      "read",
	Usage:     "read one register or a burst starting at it",
	ArgsUsage: "<address>",
	Flags: []cli.Flag{
		deviceFlag,
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "number of bytes"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		ctx, _, sess, drv, err := openDriver(c)
		if err != nil {
			return err
		}
		defer closeSession(ctx, sess)
		data, err := register.ReadBurst(ctx, sess, drv.Device(), register.Address(addr), c.Int("count"))
		if err != nil {
			return console.Exit(1, "could not read %s register %#02x: %s", drv.Device(), addr, console.Red(err))
		}
		if len(data) == 1 {
			console.Printf("%#02x: %s\n", addr, console.White(fmt.Sprintf("%#02x (%08b)", data[0], data[0])))
			return nil
		}
		console.Printf("%s", hex.Dump(data))
		return nil
	},
}

var regWriteCmd = cli.Command{
	Name:      "write",
	Usage:     "write one register",
	ArgsUsage: "<address> <value>",
	Flags: []cli.Flag{
		deviceFlag,
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		value, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("write %#02x to register %#02x?", value, addr))
			if err != nil || !ok {
				return console.Exit(1, "aborted")
			}
		}
		ctx, _, sess, drv, err := openDriver(c)
		if err != nil {
			return err
		}
		defer closeSession(ctx, sess)
		if err := register.WriteByte(ctx, sess, drv.Device(), register.Address(addr), value); err != nil {
			return console.Exit(1, "could not write %s register %#02x: %s", drv.Device(), addr, console.Red(err))
		}
		console.Printf("wrote %s to %#02x\n", console.White(fmt.Sprintf("%#02x", value)), addr)
		return nil
	},
}

var regBitsCmd = cli.Command{
	Name:      "bits",
	Usage:     "read or update a bit-field leaving the other bits untouched",
	ArgsUsage: "<address> <position> <width> [value]",
	Flags:     []cli.Flag{deviceFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 && c.NArg() != 4 {
			return console.Exit(1, "expected 3 or 4 arguments, got %d", c.NArg())
		}
		var raw [4]byte
		for i := 0; i < c.NArg(); i++ {
			b, err := parseByte(c.Args().Get(i))
			if err != nil {
				return console.Exit(1, "%v", err)
			}
			raw[i] = b
		}
		field := register.Bitfield{Reg: register.Address(raw[0]), Pos: raw[1], Width: raw[2]}
		if err := field.Validate(); err != nil {
			return console.Exit(1, "%v", err)
		}
		ctx, _, sess, drv, err := openDriver(c)
		if err != nil {
			return err
		}
		defer closeSession(ctx, sess)
		if c.NArg() == 4 {
			if err := register.WriteBitfield(ctx, sess, drv.Device(), field, raw[3]); err != nil {
				return console.Exit(1, "could not write %s: %s", field, console.Red(err))
			}
		}
		v, err := register.ReadBitfield(ctx, sess, drv.Device(), field)
		if err != nil {
			return console.Exit(1, "could not read %s: %s", field, console.Red(err))
		}
		console.Printf("%s: %s\n", field, console.White(fmt.Sprintf("%#x", v)))
		return nil
	},
}
