package main // Entry point package

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/service"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "point-of-sale and raffle API",
		Commands: []*cli.Command{
			serveCommand(),
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "roll back every migration instead"},
				},
				Action: runMigrate,
			},
			{
				Name:  "seed",
				Usage: "insert the demo catalog",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reset", Usage: "delete all existing data first"},
				},
				Action: runSeed,
			},
			{
				Name:   "consume",
				Usage:  "write sale and ticket events from RabbitMQ to the activity log",
				Action: runConsume,
			},
			raffleStatusCommand("close-raffle", "stop ticket sales for a raffle", false),
			raffleStatusCommand("open-raffle", "resume ticket sales for a raffle", true),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and the logger every command starts from.
func bootstrap() (config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	l, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, l, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runMigrate(c *cli.Context) error {
	cfg, l, err := bootstrap()
	if err != nil {
		return err
	}
	if c.Bool("down") {
		if err := database.MigrateDown(cfg.DB); err != nil {
			return err
		}
		l.WithField("driver", cfg.DB.Driver).Info("migrations rolled back")
		return nil
	}
	if err := database.Migrate(cfg.DB); err != nil {
		return err
	}
	l.WithField("driver", cfg.DB.Driver).Info("migrations applied")
	return nil
}

func runSeed(c *cli.Context) error {
	cfg, l, err := bootstrap()
	if err != nil {
		return err
	}
	if err := database.Migrate(cfg.DB); err != nil {
		return err
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := service.New(db, service.WithLogger(l))
	res, err := svc.Seed(c.Context, c.Bool("reset"))
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d products and %d raffles\n", len(res.Products), len(res.Raffles))
	return nil
}

func runConsume(c *cli.Context) error {
	cfg, l, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	l.WithField("dir", cfg.ActivityLogDir).Info("consumer starting")
	return queue.NewConsumer(cfg.RabbitMQURL, cfg.ActivityLogDir, l).Run(ctx)
}

func raffleStatusCommand(name, usage string, active bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<raffle-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one raffle id", 2)
			}
			cfg, l, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			return service.New(db, service.WithLogger(l)).SetRaffleActive(c.Context, c.Args().First(), active)
		},
	}
}
