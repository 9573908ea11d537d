package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/realtime"
	"github.com/iliyamo/storefront/internal/router"
	"github.com/iliyamo/storefront/internal/service"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "skip-migrate", Usage: "do not apply migrations on startup"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, l, err := bootstrap()
	if err != nil {
		return err
	}

	if !c.Bool("skip-migrate") {
		if err := database.Migrate(cfg.DB); err != nil {
			return err
		}
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis is optional; a nil client disables caching and rate limiting
	var rdb *redis.Client
	if cfg.Cache.Enabled || cfg.RateLimit.Enabled {
		if rdb = config.NewRedisClient(cfg.Redis); rdb == nil {
			l.WithField("addr", cfg.Redis.Addr).Warn("redis unavailable, cache and rate limit disabled")
		} else {
			defer rdb.Close()
		}
	}

	opts := []service.Option{
		service.WithLogger(l),
		service.WithMaxRetries(cfg.TxMaxRetries),
	}
	if cfg.EventsEnabled {
		opts = append(opts, service.WithEventPublisher(queue.NewPublisher(cfg.RabbitMQURL, l)))
	}
	if cfg.PubNub.Enabled() {
		opts = append(opts, service.WithNotifier(realtime.New(cfg.PubNub, l)))
	}
	svc := service.New(db, opts...)

	e := router.New(router.Deps{
		Config:  cfg,
		Handler: handler.New(svc, l),
		Redis:   rdb,
		Log:     l,
	})

	ctx, stop := signalContext(c.Context)
	defer stop()

	addr := ":" + cfg.Port
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.WithFields(log.Fields{"addr": addr, "env": cfg.Env, "driver": cfg.DB.Driver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		l.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}
