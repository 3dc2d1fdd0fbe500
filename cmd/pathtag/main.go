// Command pathtag shows how stackz names spans: it runs the path tag
// extraction engine and the route matcher over paths given on the command
// line.
//
//	pathtag tags /users/8f14e45f-ceea-467a-9af1-0123456789ab
//	pathtag match --route "GET /users/{id}" GET /users/42
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// Version can be set with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

func main() {
	os.Exit(run(context.Background(), os.Args))
}

func run(ctx context.Context, args []string) int {
	if err := createApp().Run(ctx, args); err != nil {
		var noMatch *noMatchError
		if errors.As(err, &noMatch) {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return 0
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "pathtag",
		Usage:   "preview span names and tags produced from request paths",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON tracer configuration",
			},
		},
		Commands: []*cli.Command{
			createTagsCommand(),
			createMatchCommand(),
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}
