package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/config"
	"github.com/custodia-labs/marginalia/internal/logging"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "marginalia",
		Usage:   "Anchored comment threads with offline-first sync",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"MARGINALIA_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			threadsCommand(),
			reanchorCommand(),
			resolveCommand(),
			initConfigCommand(),
			hashKeyCommand(),
			tokenCommand(),
		},
	}
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Production: cfg.Log.Production,
	})
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write a sample configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path",
				Value:   "marginalia.toml",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("output")
			if err := config.InitConfig(path); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", path)
			return nil
		},
	}
}
