package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callmgr/internal/auth"
	"callmgr/internal/callcontrol"
	"callmgr/internal/calltrack"
	"callmgr/internal/cdr"
	"callmgr/internal/config"
	"callmgr/internal/fsnode"
	"callmgr/internal/httpapi"
	"callmgr/internal/notify"
	"callmgr/internal/registry"
	"callmgr/internal/switchio"
	"callmgr/pkg/logger"
	"callmgr/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"
)

// nodeRestartBackoff paces controller restarts after a bring-up failure or a
// lost switch link. Restart policy lives here, never inside the controller.
const nodeRestartBackoff = 5 * time.Second

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// CDR persistence is optional; without postgres records stay in memory
	// for the life of the process.
	var cdrRepo cdr.Repository = cdr.NewMemoryRepo()
	if cfg.DB.Enabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		cdrRepo = cdr.NewPostgresRepo(db)
	}
	cdrService := cdr.NewService(cdrRepo)

	// Notifications go to redis pub/sub when configured, otherwise to the
	// in-memory publisher.
	var publisher fsnode.Publisher = notify.NewMemoryPublisher()
	if cfg.Redis.Enabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		publisher = notify.NewRedisPublisher(rdb)
	}

	nodes := registry.New()
	legs := calltrack.New()
	sessions := callcontrol.NewSupervisor(0, logger.Component(log, "callcontrol"))

	startupCommands := make([]fsnode.StartupCommand, 0, len(cfg.Switch.StartupCommands))
	for _, c := range cfg.Switch.StartupCommands {
		startupCommands = append(startupCommands, fsnode.StartupCommand{Command: c.Command, Arg: c.Arg})
	}

	deps := fsnode.Deps{
		Legs:     legs,
		Sessions: sessions,
		Lookup:   sessions,
		CDR:      cdrService,
		Notify:   publisher,
		Registry: nodes,
		Startup: fsnode.StartupCommandsFunc(func(fsnode.Identity) []fsnode.StartupCommand {
			return startupCommands
		}),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireToken(authManager), httpapi.Handlers{Registry: nodes})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)

	for _, nc := range cfg.Switch.Nodes {
		nc := nc
		g.Go(func() error {
			return superviseNode(gctx, nc, cfg.Switch.DefaultMaxChannels, deps, nodes, log)
		})
	}

	g.Go(func() error {
		log.Info("admin api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("controller exited", "err", err)
		os.Exit(1)
	}
}

// superviseNode owns the restart loop for one switch: dial, run the
// controller to termination, back off, repeat. Bring-up failures and lost
// links both land here; the controller itself never retries.
func superviseNode(ctx context.Context, nc config.NodeConfig, defaultMaxChannels int, deps fsnode.Deps, nodes *registry.Registry, log *slog.Logger) error {
	identity := fsnode.Identity{Host: nc.Host, Instance: nc.Instance}
	opts := fsnode.Options{MaxChannels: nc.MaxChannels}
	if opts.MaxChannels == 0 {
		opts.MaxChannels = defaultMaxChannels
	}

	for {
		client, err := switchio.DefaultDialer(ctx, nc.Addr, nc.Password)
		if err != nil {
			log.Error("switch dial failed", "node", identity.String(), "err", err)
		} else {
			node := fsnode.New(identity, client, opts, deps, log)
			nodes.Register(node)
			err = node.Run(ctx)
			_ = client.Close()
			if err != nil {
				log.Error("node terminated", "node", identity.String(), "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(nodeRestartBackoff):
		}
	}
}
