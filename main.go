package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
)

func main() {
	app := &cli.App{
		Name:   "storefront",
		Usage:  "order, coupon and payment backend",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "ensure-indexes",
				Usage:  "create the MongoDB indexes and exit",
				Action: ensureIndexes,
			},
			{
				Name:  "create-admin",
				Usage: "create an administrator account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"ADMIN_PASSWORD"}},
				},
				Action: createAdmin,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// deps holds what every command needs: validated config, the logger and
// an open database.
type deps struct {
	cfg    config.Config
	log    *zap.Logger
	client *mongo.Client
	db     *mongo.Database
}

func setup(ctx context.Context) (*deps, error) {
	config.Load()
	cfg := config.AppEnv
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(zlog)

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.DBName)
	zlog.Info("mongodb connected", zap.String("db", db.Name()))

	return &deps{cfg: cfg, log: zlog, client: client, db: db}, nil
}

func (rt *deps) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.client.Disconnect(ctx); err != nil {
		rt.log.Warn("mongodb disconnect failed", zap.Error(err))
	}
	_ = rt.log.Sync()
}

func serve(c *cli.Context) error {
	rt, err := setup(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := database.EnsureIndexes(c.Context, rt.db, rt.log); err != nil {
		rt.log.Warn("index setup incomplete", zap.Error(err))
	}

	gin.SetMode(rt.cfg.GinMode)
	app, err := newApp(rt.cfg, rt.client, rt.db, rt.log)
	if err != nil {
		return err
	}
	app.enableTransactions(c.Context, rt.client)

	srv := &http.Server{
		Addr:              ":" + rt.cfg.Port,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		rt.log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	rt.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func ensureIndexes(c *cli.Context) error {
	rt, err := setup(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	return database.EnsureIndexes(c.Context, rt.db, rt.log)
}

func createAdmin(c *cli.Context) error {
	rt, err := setup(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	app, err := newApp(rt.cfg, rt.client, rt.db, rt.log)
	if err != nil {
		return err
	}
	admin, err := app.identity.CreateAdmin(c.Context, c.String("email"), c.String("name"), c.String("password"))
	if err != nil {
		return err
	}
	rt.log.Info("admin created", zap.String("adminId", admin.ID.Hex()), zap.String("email", admin.Email))
	return nil
}
