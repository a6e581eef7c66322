package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/okian/biotica/pkg/logger"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs",
	}

	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"o"},
		Usage:   "Output format [json, yaml]",
		Value:   formatJSON,
	}
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:            "ibrctl",
		Version:         fmt.Sprintf("%s (%s)", version, commit),
		Usage:           "Index of Biotic Resilience scoring and diagnostics",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			debugFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			computeCmd,
			validateCmd,
			batchCmd,
			sensitivityCmd,
			describeCmd,
			correlateCmd,
			weightsCmd,
			tippingCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool(debugFlag.Name) {
				_ = logger.SetLevelString("debug")
			}
			switch f := strings.ToLower(cmd.String(formatFlag.Name)); f {
			case formatJSON, formatYAML, "yml":
			default:
				return ctx, fmt.Errorf("unsupported format %q, want json or yaml", f)
			}
			return ctx, nil
		},
	}
}

// encode writes v to the root command's writer in the selected format.
func encode(cmd *cli.Command, v any) error {
	root := cmd.Root()
	w := root.Writer
	if w == nil {
		w = os.Stdout
	}
	return encodeTo(w, root.String(formatFlag.Name), v)
}

func encodeTo(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case formatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(v)
	}
}

// argPath returns the single file argument; "-" means stdin.
func argPath(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s expects exactly one file argument", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func openInput(cmd *cli.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		r := cmd.Root().Reader
		if r == nil {
			r = os.Stdin
		}
		return io.NopCloser(r), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
