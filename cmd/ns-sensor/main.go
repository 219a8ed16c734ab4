package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"Go2NetShield/internal/config"
	"Go2NetShield/internal/engine/flowtable"
	"Go2NetShield/internal/logging"
	"Go2NetShield/internal/metrics"
	"Go2NetShield/internal/model"
	"Go2NetShield/internal/secure"
	"Go2NetShield/internal/sensor"
	"Go2NetShield/internal/transport"
	"Go2NetShield/pkg/pcap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Interface to capture from. Overrides sensor.interface.")
	pcapFile := flag.String("pcap", "", "Replay a pcap file instead of capturing live.")
	calibrate := flag.String("calibrate", "", "Write feature vectors to this CSV file.")
	calibrateOnly := flag.Bool("calibrate-only", false, "With -calibrate, do not send vectors to the analyzer.")
	plain := flag.Bool("plain", false, "Send unsealed {ip, data} bodies regardless of security.enabled.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.Log)
	if *iface != "" {
		cfg.Sensor.Interface = *iface
	}
	if *calibrate != "" {
		cfg.Sensor.CalibrationCSV = *calibrate
	}
	if *plain {
		cfg.Security.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Packet source
	var reader *pcap.Reader
	if *pcapFile != "" {
		reader, err = pcap.NewReader(*pcapFile, log)
	} else {
		reader, err = pcap.NewLiveReader(cfg.Sensor.Interface, cfg.Sensor.SnapshotLen, cfg.Sensor.Promiscuous, log)
	}
	if err != nil {
		log.Fatalf("Failed to open packet source: %v", err)
	}
	defer reader.Close()
	if err := reader.SetFilter(cfg.Sensor.BPFFilter); err != nil {
		log.Fatalf("Failed to apply BPF filter: %v", err)
	}

	// 2. Encoder. Missing or mismatched keys are fatal in secure mode.
	var encoder sensor.Encoder = sensor.PlainEncoder{}
	if cfg.Security.Enabled {
		sealer, err := secure.LoadSealer(cfg.Security)
		if err != nil {
			log.Fatalf("Failed to load key material: %v", err)
		}
		encoder = sensor.SealedEncoder{Sealer: sealer}
	} else {
		log.Warn("Security disabled, vectors are sent in plain text")
	}

	// 3. Sinks
	var sender transport.Sender
	if !*calibrateOnly || cfg.Sensor.CalibrationCSV == "" {
		sender, err = transport.NewSender(cfg, log)
		if err != nil {
			log.Fatalf("Failed to create transport: %v", err)
		}
		defer sender.Close()
	}
	var calibration *sensor.CalibrationWriter
	if cfg.Sensor.CalibrationCSV != "" {
		calibration, err = sensor.NewCalibrationWriter(cfg.Sensor.CalibrationCSV)
		if err != nil {
			log.Fatalf("Failed to open calibration file: %v", err)
		}
		defer func() {
			if err := calibration.Close(); err != nil {
				log.WithError(err).Error("Failed to close calibration file")
			}
			log.WithFields(logrus.Fields{"file": cfg.Sensor.CalibrationCSV, "rows": calibration.Rows()}).Info("Calibration baseline written")
		}()
	}

	// 4. Pipeline
	table := flowtable.New(flowtable.Config{
		Timeout:        config.Duration(cfg.Sensor.FlowTimeout),
		TimeWindow:     config.Duration(cfg.Sensor.TimeWindow),
		HostWindowSize: cfg.Sensor.HostWindowSize,
	})
	m := metrics.New(prometheus.DefaultRegisterer)
	s := sensor.New(table, encoder, sender, calibration, sensor.Options{
		SweepInterval: config.Duration(cfg.Sensor.SweepInterval),
		NumSenders:    cfg.Sensor.NumSenders,
		QueueSize:     cfg.Sensor.QueueSize,
		SendTimeout:   config.Duration(cfg.Transport.Timeout),
		Offline:       !reader.Live(),
	}, log, m)

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error { return metrics.Serve(metricsCtx, cfg.Metrics.ListenAddr, log) })
	}
	g.Go(func() error {
		defer stopMetrics()
		packets := make(chan *model.PacketInfo, cfg.Sensor.QueueSize)
		go reader.ReadPackets(gctx, packets)
		s.Run(gctx, packets)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Sensor exited with error")
		os.Exit(1)
	}
	log.Info("Shutdown complete.")
}
