package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2NetShield/internal/ai"
	"Go2NetShield/internal/alerter"
	"Go2NetShield/internal/classifier"
	"Go2NetShield/internal/config"
	"Go2NetShield/internal/enforcement"
	"Go2NetShield/internal/escalation"
	"Go2NetShield/internal/logging"
	"Go2NetShield/internal/metrics"
	"Go2NetShield/internal/model"
	"Go2NetShield/internal/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	once := flag.Bool("once", false, "Run a single review cycle and exit.")
	provision := flag.Bool("provision", false, "Create the store indexes and exit.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := escalation.NewStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatalf("Failed to open escalation store: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(closeCtx)
	}()
	if *provision {
		// NewStore already ensured the indexes.
		log.Info("Store provisioned.")
		return
	}

	secondary, err := classifier.Load(cfg.Classifier.Secondary)
	if err != nil {
		log.Fatalf("Failed to load secondary classifier: %v", err)
	}
	enforcer, err := enforcement.New(cfg.Enforcement, log)
	if err != nil {
		log.Fatalf("Failed to create enforcement gateway: %v", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	reviewer := escalation.NewReviewer(store, secondary, enforcer, escalation.OptionsFromConfig(cfg.Reviewer), log, m)

	if *once {
		stats, err := reviewer.RunCycle(ctx)
		if err != nil {
			log.Fatalf("Review cycle failed: %v", err)
		}
		log.WithFields(logrus.Fields{
			"fetched": stats.Fetched, "whitelisted": stats.Whitelisted,
			"confirmed": stats.Confirmed, "deferred": stats.Deferred, "failed": stats.Failed,
		}).Info("Review cycle complete")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Alerter.Enabled {
		var analyzer model.Analyzer
		if cfg.AI.Enabled {
			a, err := ai.NewIncidentAnalyzer(cfg.AI)
			if err != nil {
				log.Fatalf("Failed to create AI analyzer: %v", err)
			}
			analyzer = a
		}
		alerts := alerter.New(config.Duration(cfg.Alerter.CheckInterval), notification.NewEmailNotifier(cfg.SMTP), analyzer, log)
		reviewer.WithIncidentSink(alerts)
		g.Go(func() error { return alerts.Run(gctx) })
	}
	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.ListenAddr, log) })
	}
	g.Go(func() error { return reviewer.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Reviewer exited with error")
		os.Exit(1)
	}
	log.Info("Shutdown complete.")
}
