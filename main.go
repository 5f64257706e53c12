package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/cloudhut/kmirror/exporter"
	"github.com/cloudhut/kmirror/kafka"
	"github.com/cloudhut/kmirror/logging"
	"github.com/cloudhut/kmirror/mirror"
)

func main() {
	startupLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	cfg, err := newConfig(startupLogger)
	if err != nil {
		startupLogger.Fatal("failed to parse config", zap.Error(err))
	}
	logger := logging.NewLogger(cfg.Logger, cfg.Exporter.Namespace)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sourceSvc, err := kafka.NewService(cfg.Source, logger.Named("source_kafka"), nil)
	if err != nil {
		logger.Fatal("failed to create source kafka service", zap.Error(err))
	}

	// The target client produces replicated records. Records must land on the
	// same partition they were fetched from, hence the manual partitioner, and
	// must be fully acknowledged before their source offsets are committed.
	targetOpts := []kgo.Opt{
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	targetSvc, err := kafka.NewService(cfg.Target, logger.Named("target_kafka"), targetOpts)
	if err != nil {
		logger.Fatal("failed to create target kafka service", zap.Error(err))
	}

	registry := mirror.NewMetricsRegistry(cfg.Exporter.Namespace, prometheus.DefaultRegisterer)
	mirrorSvc, err := mirror.NewService(cfg.Mirror, logger.Named("mirror"), sourceSvc, targetSvc, registry)
	if err != nil {
		logger.Fatal("failed to create mirror service", zap.Error(err))
	}

	go func() {
		e := exporter.NewExporter(cfg.Exporter, logger.Named("exporter"))
		if err := e.ListenAndServe(); err != nil {
			logger.Fatal("metrics endpoint failed", zap.Error(err))
		}
	}()

	if err := mirrorSvc.Start(ctx); err != nil {
		logger.Fatal("mirror service failed", zap.Error(err))
	}

	logger.Info("replication flow stopped")
	_ = logger.Sync()
	os.Exit(0)
}
