package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/keyshift/internal"
	"github.com/starford/keyshift/internal/chartservice"
	pkgconfig "github.com/starford/keyshift/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// cliLogger keeps stdout free for command output.
func cliLogger(cfg *internal.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// convertOptions merges --seed into the --options JSON object.
func convertOptions(raw string, seed int64, seedSet bool) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if !seedSet {
		if raw == "" {
			return nil, nil
		}
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("--options is not valid JSON")
		}
		return json.RawMessage(raw), nil
	}
	m := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("--options must be a JSON object: %w", err)
		}
	}
	m["seed"] = seed
	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func convert(ctx context.Context, cmd *cli.Command) error {
	sources := cmd.Args().Slice()
	if len(sources) == 0 {
		return fmt.Errorf("at least one source chart is required")
	}
	target := cmd.String("target")
	if target != "" && len(sources) > 1 {
		return fmt.Errorf("--target cannot be used with more than one source")
	}
	options, err := convertOptions(cmd.String("options"), cmd.Int("seed"), cmd.IsSet("seed"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	comp, err := internal.Open(cfg, cliLogger(cfg))
	if err != nil {
		return err
	}
	defer comp.Close()

	reqs := make([]chartservice.Request, len(sources))
	for i, src := range sources {
		reqs[i] = chartservice.Request{
			Kind:      chartservice.Kind(cmd.String("kind")),
			Source:    src,
			Target:    target,
			Options:   options,
			Overwrite: cmd.Bool("overwrite"),
		}
	}

	items, batchErr := comp.Service.ConvertBatch(ctx, reqs, int(cmd.Int("workers")))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, it := range items {
		if it.Result != nil {
			if err := enc.Encode(it.Result.Conversion); err != nil {
				return err
			}
		}
	}
	return batchErr
}

func exportMIDI(ctx context.Context, cmd *cli.Command) error {
	src := cmd.Args().First()
	if src == "" {
		return fmt.Errorf("a source chart is required")
	}
	out := cmd.String("out")
	if out == "" {
		base := path.Base(src)
		out = strings.TrimSuffix(base, path.Ext(base)) + ".mid"
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	comp, err := internal.Open(cfg, cliLogger(cfg))
	if err != nil {
		return err
	}
	defer comp.Close()

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := comp.Service.ExportMIDI(ctx, src, f); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "keyshift",
		Usage:  "Rhythm game chart library with key-count, double-play and long-note converters",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with SSE events and the library watcher",
				Action: serve,
			},
			{
				Name:      "convert",
				Usage:     "Convert one or more library charts",
				ArgsUsage: "<source> [source...]",
				Action:    convert,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kind",
						Aliases:  []string{"k"},
						Usage:    "Converter: keys, doubleplay or longnote",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "target",
						Usage: "Output path inside the library (single source only)",
					},
					&cli.StringFlag{
						Name:  "options",
						Usage: `Converter options as JSON, e.g. '{"target_keys": 7}'`,
					},
					&cli.IntFlag{
						Name:  "seed",
						Usage: "Random seed (overrides the seed in --options)",
					},
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "Replace existing targets",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent conversions (0 uses the configured value)",
					},
				},
			},
			{
				Name:      "export-midi",
				Usage:     "Write a library chart as a Standard MIDI File",
				ArgsUsage: "<source>",
				Action:    exportMIDI,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file (defaults to <chart>.mid)",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
