package main

import (
	"MedVault/config"
	"MedVault/internal/logging"
	"MedVault/internal/metrics"
	"MedVault/internal/mq"
	"MedVault/internal/repo"
	"MedVault/internal/worker"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:           "medvault-worker",
		Short:         "Consumes queued share access logs and writes them to MySQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().String("config", "", "optional config file (yaml, json, toml)")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("log-format", "text", "log format: text or json")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		logrus.WithError(err).Error("load config failed")
		return err
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.InitMysql(cfg, log)
	if err != nil {
		log.WithError(err).Error("init mysql failed")
		return err
	}
	client, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.WithError(err).Error("dial rabbitmq failed")
		return err
	}
	defer client.Close()

	w := worker.NewAccessLogWorker(repo.NewAccessLogRepo(db), client, worker.Options{
		Prefetch:    cfg.RabbitMQPrefetch,
		Concurrency: cfg.WorkerConcurrency,
		Rate:        cfg.WorkerRate,
		Burst:       cfg.WorkerBurst,
		RetryMax:    cfg.WorkerRetryMax,
		RetryDelays: cfg.WorkerRetryDelays,
	}, metrics.New(), log)

	log.WithField("queue", mq.QueueAccessLog).Info("access log worker started")
	if err := w.Run(ctx, client); err != nil {
		log.WithError(err).Error("access log worker stopped")
		return err
	}
	return nil
}
