package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/zoobzio/stackz"
)

type noMatchError struct {
	method, path string
}

func (e *noMatchError) Error() string {
	return fmt.Sprintf("no route matches %s %s", e.method, e.path)
}

func createTagsCommand() *cli.Command {
	return &cli.Command{
		Name:      "tags",
		Usage:     "rewrite paths with the pattern table and print the extracted tags",
		ArgsUsage: "<path>...",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "pattern",
				Aliases: []string{"p"},
				Usage:   "extra pattern as TAG=EXPR, applied before the configured ones",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return fmt.Errorf("at least one path is required")
			}
			tracer, err := loadTracer(cmd)
			if err != nil {
				return err
			}
			patterns, err := parsePatterns(cmd.StringSlice("pattern"))
			if err != nil {
				return err
			}
			patterns = append(patterns, tracer.Patterns()...)

			for _, path := range cmd.Args().Slice() {
				pt := stackz.ExtractPathTags(path, patterns)
				printResult(cmd.Root().Writer, pt.Path, pt.Tags)
			}
			return nil
		},
	}
}

func createMatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "match",
		Usage:     "match a request against route templates",
		ArgsUsage: "<method> <path>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "route",
				Aliases: []string{"r"},
				Usage:   `route as "METHOD /template", tried before the configured ones`,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("expected <method> <path>, got %d arguments", cmd.NArg())
			}
			tracer, err := loadTracer(cmd)
			if err != nil {
				return err
			}
			routes, err := parseRoutes(cmd.StringSlice("route"))
			if err != nil {
				return err
			}
			routes = append(routes, tracer.ClientRoutes()...)

			method, path := cmd.Args().Get(0), cmd.Args().Get(1)
			route, res, ok := stackz.MatchRoutes(routes, method, path)
			if !ok {
				return &noMatchError{method: method, path: path}
			}
			fmt.Fprintf(cmd.Root().Writer, "route: %s %s\n", route.Method, route.Template)
			printResult(cmd.Root().Writer, strings.ToUpper(method)+" "+res.Path, res.Tags)
			return nil
		},
	}
}

// loadTracer builds a tracer from --config, or a default one without it.
func loadTracer(cmd *cli.Command) (*stackz.Tracer, error) {
	path := cmd.String("config")
	if path == "" {
		return stackz.New(stackz.NoopBackend{}), nil
	}
	fc, err := stackz.LoadFile(path)
	if err != nil {
		return nil, err
	}
	opts, err := fc.Options()
	if err != nil {
		return nil, err
	}
	return stackz.New(stackz.NoopBackend{}, opts...), nil
}

func parsePatterns(specs []string) ([]stackz.Pattern, error) {
	out := make([]stackz.Pattern, 0, len(specs))
	for _, s := range specs {
		tag, expr, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("pattern %q: want TAG=EXPR", s)
		}
		p, err := stackz.NewPattern(tag, expr)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseRoutes(specs []string) ([]stackz.Route, error) {
	out := make([]stackz.Route, 0, len(specs))
	for _, s := range specs {
		method, template, ok := strings.Cut(strings.TrimSpace(s), " ")
		if !ok {
			method, template = "", s
		}
		r, err := stackz.ParseRoute(method, strings.TrimSpace(template))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func printResult(w io.Writer, path string, tags map[string]string) {
	fmt.Fprintln(w, path)
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		fmt.Fprintf(w, "  %s=%s\n", k, tags[k])
	}
}
