package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"ruangkelas/internal/app"
	"ruangkelas/internal/config"
	"ruangkelas/internal/logging"
)

// shutdownTimeout bounds graceful shutdown after SIGINT/SIGTERM
const shutdownTimeout = 30 * time.Second

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "ruangkelas",
		Usage: "Real-time classroom discussion server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Configuration file path (.toml or .json)",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			userCommand(),
			roomCommand(),
			materialCommand(),
			tokenCommand(),
		},
	}
}

// loadConfig applies file > environment > defaults, then the --debug flag
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWithPrecedence(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.Bool("debug") {
		cfg.Log.Debug = true
	}
	logging.SetGlobalDebug(cfg.Log.Debug)
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP and WebSocket server",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

// serve runs the application until SIGINT/SIGTERM or ctx cancellation
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func serve(ctx context.Context, cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	shutdown := func() error {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := application.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}

	if err := application.Start(ctx); err != nil {
		_ = shutdown()
		return fmt.Errorf("application error: %w", err)
	}

	select {
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)
	case <-ctx.Done():
	}
	return shutdown()
}
