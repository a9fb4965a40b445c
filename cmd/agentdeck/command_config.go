package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"agentdeck/internal/config"
)

func configCommand(wiring commandWiring) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration as TOML",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "defaults", Usage: "print built-in defaults instead of the loaded file"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Default()
			if !c.Bool("defaults") {
				loaded, err := wiring.loadConfig(c.String("config"))
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			data, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			_, err = wiring.stdout.Write(data)
			return err
		},
	}
}
