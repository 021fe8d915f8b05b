package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/cppla/socialbbs/config"
	"github.com/cppla/socialbbs/routes"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:  "socialbbs",
		Usage: "social micro-posting server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the JSON configuration file",
				Value:   "config/config.json",
				EnvVars: []string{"SOCIALBBS_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCmd,
			migrateCmd,
			moderateCmd,
		},
	}
	return app.Run(args)
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP API",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "migrate",
			Usage: "apply schema migrations before serving",
			Value: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, db, err := boot(cctx)
		if err != nil {
			return err
		}
		if cctx.Bool("migrate") {
			if err := config.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		opts := []services.Option{services.WithLogger(utils.Sugar)}
		rc, err := utils.NewRedisClient(cfg)
		if err != nil {
			utils.Sugar.Warnf("redis unavailable, using in-process activity tracking: %v", err)
			_ = rc.Close()
			rc = nil
		} else {
			opts = append(opts,
				services.WithTracker(utils.NewRedisTracker(rc)),
				services.WithNotifier(utils.NewRedisNotifier(rc, cfg.NotifyChannel)),
			)
		}

		var nc *nats.Conn
		if cfg.NatsURL != "" {
			nc, err = utils.ConnectNats(cfg.NatsURL)
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			opts = append(opts, services.WithModerationQueue(utils.NewNatsModerationQueue(nc, cfg.ModerationSubject)))
		}

		cache := memberCache(rc)
		if cache != nil {
			if cctx.Bool("migrate") {
				// projections cached before a schema change may be missing fields
				cache.InvalidateByPrefix(cctx.Context, utils.MemberCachePrefix)
			}
			opts = append(opts, services.WithProfileCache(cache))
		}

		core := services.NewCore(db, engineSettings(cfg), opts...)
		r := routes.SetupRouter(cfg, core, cache)

		utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
		return utils.GraceServer(cctx.Context, ":"+cfg.AppPort, r, func(context.Context) {
			if nc != nil {
				_ = nc.Drain()
			}
			if rc != nil {
				_ = rc.Close()
			}
			_ = utils.Logger.Sync()
		})
	},
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "create or update the database schema",
	Action: func(cctx *cli.Context) error {
		_, db, err := boot(cctx)
		if err != nil {
			return err
		}
		if err := config.Migrate(db); err != nil {
			return err
		}
		utils.Sugar.Info("schema migrated")
		return nil
	},
}

var moderateCmd = &cli.Command{
	Name:  "moderate",
	Usage: "analyze posts queued for moderation",
	Action: func(cctx *cli.Context) error {
		cfg, db, err := boot(cctx)
		if err != nil {
			return err
		}
		nc, err := utils.ConnectNats(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		threads := services.NewThreadService(services.NewCore(db, engineSettings(cfg), services.WithLogger(utils.Sugar)))
		utils.Sugar.Infof("consuming %s", cfg.ModerationSubject)
		return utils.ConsumeModeration(cctx.Context, nc, cfg.ModerationSubject, func(ctx context.Context, m utils.ModerationMessage) error {
			return threads.Moderate(ctx, m.PostID)
		})
	},
}

func boot(cctx *cli.Context) (config.AppConfig, *gorm.DB, error) {
	cfg, err := config.LoadFrom(cctx.String("config"))
	if err != nil {
		return cfg, nil, fmt.Errorf("invalid %s: %w", cctx.String("config"), err)
	}
	if cfg.JWTSecret == "" {
		return cfg, nil, fmt.Errorf("JWT_SECRET must be set in environment variables")
	}
	if err := utils.InitLogger(cfg); err != nil {
		return cfg, nil, err
	}
	db, err := config.OpenDatabase(cfg)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, db, nil
}

func engineSettings(cfg config.AppConfig) services.Settings {
	return services.Settings{
		AnonymousPosting:     cfg.AnonymousPosting,
		TrustedPosterBalance: int64(cfg.TrustedPosterBalance),
		SingleVote:           cfg.SingleVote,
		RequireVoteBalance:   cfg.RequireVoteBalance,
		PostReward:           int64(cfg.PostReward),
		VoteCost:             int64(cfg.VoteCost),
		FeedMaxLimit:         cfg.FeedMaxLimit,
		FeedDefaultLimit:     cfg.FeedDefaultLimit,
		PostTypeMaxAge:       cfg.PostTypeMaxAge,
		SystemAdminID:        cfg.SystemAdminID,
	}
}

func memberCache(rc *redis.Client) *utils.Cache {
	if rc == nil {
		return nil
	}
	return utils.NewCache(rc, 5*time.Minute)
}
