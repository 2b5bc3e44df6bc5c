package main

import (
	"MedVault/config"
	"MedVault/internal/accesslog"
	"MedVault/internal/handler"
	"MedVault/internal/logging"
	"MedVault/internal/metrics"
	"MedVault/internal/mq"
	"MedVault/internal/repo"
	"MedVault/internal/service"
	"MedVault/internal/storage"
	"MedVault/router"
	"MedVault/utils"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "medvault",
		Short:         "MedVault medical record sharing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				logrus.WithError(err).Error("load config failed")
				return err
			}
			log := logging.Setup(cfg.LogLevel, cfg.LogFormat)
			if err := runServer(cmd.Context(), cfg, log); err != nil {
				log.WithError(err).Error("server stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "optional config file (yaml, json, toml)")
	cmd.Flags().String("listen", ":8000", "HTTP listen address")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("log-format", "text", "log format: text or json")
	return cmd
}

// runServer wires the services and serves HTTP until a signal arrives.
func runServer(parent context.Context, cfg *config.Config, log *logrus.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.InitMysql(cfg, log)
	if err != nil {
		return err
	}
	rdb, err := repo.InitRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	store, err := storage.InitMinio(ctx, cfg, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	cache := utils.NewRedisCache(rdb)
	jwt := utils.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	var sink accesslog.Sink
	switch cfg.AccessLogMode {
	case "queue":
		publisher := mq.NewPublisher(cfg.RabbitMQURL)
		defer publisher.Close()
		sink = accesslog.NewQueueSink(publisher)
	default:
		sink = accesslog.NewDBSink(repo.NewAccessLogRepo(db))
	}
	accessLogger := accesslog.New(sink, cfg.AccessLogTimeout, m, log)
	defer accessLogger.Wait()

	shareLinks := repo.NewShareLinkRepo(db)
	resolver := service.NewURLResolver(store, storage.NewHTTPProber(cfg.ProbeTimeout), service.URLResolverOptions{
		Bucket:              cfg.BucketName,
		Expiry:              cfg.SignedURLExpiry,
		AnonymousSignedURLs: cfg.AnonSignedURLs,
		Metrics:             m,
		Log:                 log,
	})
	h := &handler.Handler{
		Users: service.NewUserService(
			repo.NewUserRepo(db),
			repo.NewRedisActivationStore(rdb),
			utils.NewMailer(cfg),
			jwt,
			log,
		),
		Records: service.NewRecordService(repo.NewRecordRepo(db), store, resolver, cache, service.RecordServiceOptions{
			Bucket:   cfg.BucketName,
			MaxBytes: cfg.UploadMaxBytes,
			CacheTTL: cfg.RecordCacheTTL,
			Metrics:  m,
			Log:      log,
		}),
		Shares: service.NewShareService(shareLinks, repo.NewProcedureRecordReader(db), accessLogger, cache, service.ShareServiceOptions{
			DefaultDays:     cfg.ShareDefaultDays,
			AtomicIncrement: cfg.ShareAtomicIncrement,
			CacheTTL:        cfg.ShareCacheTTL,
			Metrics:         m,
			Log:             log,
		}),
		AccessLogs:         service.NewAccessLogService(repo.NewAccessLogRepo(db), shareLinks),
		Resolver:           resolver,
		BaseURL:            cfg.AppBaseURL,
		PlatformConfigured: cfg.PlatformConfigured(),
		Log:                log,
	}

	engine, err := router.InitRouter(h, router.Options{
		JWT:            jwt,
		Metrics:        m,
		ShareLimiter:   utils.NewIPRateLimiter(cfg.ShareRate, cfg.ShareBurst),
		CORSOrigin:     cfg.CORSOrigin,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"listen":       cfg.Listen,
			"access_log":   cfg.AccessLogMode,
			"atomic_count": cfg.ShareAtomicIncrement,
		}).Info("medvault api started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
