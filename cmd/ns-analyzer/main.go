package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2NetShield/internal/analyzer"
	"Go2NetShield/internal/archive"
	"Go2NetShield/internal/classifier"
	"Go2NetShield/internal/config"
	"Go2NetShield/internal/escalation"
	"Go2NetShield/internal/logging"
	"Go2NetShield/internal/metrics"
	"Go2NetShield/internal/secure"
	"Go2NetShield/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Key material and classifier artifacts. Both are fatal when missing.
	var opener *secure.Opener
	if cfg.Security.Enabled {
		opener, err = secure.LoadOpener(cfg.Security)
		if err != nil {
			log.Fatalf("Failed to load key material: %v", err)
		}
	} else {
		log.Warn("Security disabled, accepting plain {ip, data} bodies")
	}
	primary, err := classifier.Load(cfg.Classifier.Primary)
	if err != nil {
		log.Fatalf("Failed to load primary classifier: %v", err)
	}
	log.WithField("labels", primary.Labels()).Info("Primary classifier loaded")

	// 2. Escalation store
	store, err := escalation.NewStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatalf("Failed to open escalation store: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(closeCtx)
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	service := analyzer.NewService(opener, primary, store, log, m)

	// 3. Optional analytics archive
	var querier archive.Querier
	writer, err := archive.NewWriter(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to create archive writer: %v", err)
	}
	if writer != nil {
		batcher := archive.NewBatcher(writer, cfg.Archive.MaxPending, log)
		service.WithArchiver(batcher)
		batcher.Start()
		defer func() {
			batcher.Stop()
			if c, ok := writer.(io.Closer); ok {
				c.Close()
			}
		}()
		log.WithField("type", cfg.Archive.Type).Info("Archiving classified events")
	}
	if cfg.Archive.Type == "clickhouse" {
		querier, err = archive.NewClickHouseQuerier(ctx, cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to create archive querier: %v", err)
		}
	}

	// 4. Optional NATS intake
	if cfg.Analyzer.SubscribeNATS {
		sub, err := transport.NewSubscriber(cfg.NATS, log)
		if err != nil {
			log.Fatalf("Failed to create NATS subscriber: %v", err)
		}
		defer sub.Close()
		if err := sub.Start(ctx, service.HandleMessage); err != nil {
			log.Fatalf("Failed to start NATS subscriber: %v", err)
		}
	}

	server := analyzer.NewServer(cfg.Analyzer.ListenAddr, cfg.Analyzer.MaxBodyBytes, service, store, querier, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Analyzer exited with error")
		os.Exit(1)
	}
	log.Info("Shutdown complete.")
}
