package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"agentdeck/internal/types"
)

func psCommand(wiring commandWiring) *cli.Command {
	return &cli.Command{
		Name:  "ps",
		Usage: "list sessions",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print sessions as JSON"},
		},
		Action: func(c *cli.Context) error {
			env, err := wiring.env(c, false)
			if err != nil {
				return err
			}
			client, err := wiring.client(env)
			if err != nil {
				return err
			}
			sessions, err := client.ListSessions(c.Context)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if c.Bool("json") {
				encoder := json.NewEncoder(wiring.stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(sessions)
			}
			printSessions(wiring.stdout, sessions)
			return nil
		},
	}
}

func printSessions(output io.Writer, sessions []types.Session) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSTATUS\tAGENT\tTITLE\tDIRECTORY")
	for _, session := range sessions {
		status := string(session.Status)
		if status == "" {
			status = "-"
		}
		agent := session.Agent
		if agent == "" {
			agent = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", session.ID, status, agent, session.Title, session.Directory)
	}
	_ = writer.Flush()
}
