package main

import (
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/cdr"
	"pgw-gateway/internal/config"
	"pgw-gateway/internal/handler"
	"pgw-gateway/internal/ioreactor"
	"pgw-gateway/internal/netio"
	"pgw-gateway/internal/processor"
	"pgw-gateway/internal/ring"
	"pgw-gateway/internal/session"
)

// Queue capacities, fixed at startup: HTTP traffic is expected to be
// sparse control-plane calls, UDP is the high-volume attach/keepalive
// path.
const (
	httpInCapacity  = 1000
	udpInCapacity   = 10000
	httpOutCapacity = 1000
	udpOutCapacity  = 10000

	configPollInterval = time.Second
)

func main() {
	configPath := flag.String("config", "pgw_server_config.json", "Path to config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
		} else {
			log.Warnf("could not open log file %s: %v", cfg.LogFile, err)
		}
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	log.Infof("starting PGW server, udp=%s:%d http=%s:%d", cfg.UDPIP, cfg.UDPPort, cfg.HTTPIP, cfg.HTTPPort)

	sessionTimeout := &atomic.Uint64{}
	sessionTimeout.Store(cfg.SessionTimeoutSec)
	shutdownRate := &atomic.Uint64{}
	shutdownRate.Store(cfg.GracefulShutdownRate)

	cdrLog, err := cdr.New(cfg.CDRFile, cfg.CDRFileMaxLines, log.StandardLogger())
	if err != nil {
		log.Fatalf("failed to create CDR journal: %v", err)
	}
	defer cdrLog.Close()

	store := session.New(sessionTimeout, shutdownRate, cdrLog, cfg.ValidBlacklist(), log.StandardLogger())

	worker, err := ioreactor.NewWorker(cfg.UDPIP, cfg.UDPPort, cfg.HTTPIP, cfg.HTTPPort, log.StandardLogger())
	if err != nil {
		log.Fatalf("failed to start I/O worker: %v", err)
	}

	queues := ioreactor.Queues{
		HTTPIn:  ring.New[netio.Packet](httpInCapacity),
		UDPIn:   ring.New[netio.Packet](udpInCapacity),
		HTTPOut: ring.New[netio.Packet](httpOutCapacity),
		UDPOut:  ring.New[netio.Packet](udpOutCapacity),
	}

	stop := &atomic.Bool{}
	udpHandler := handler.NewUDPHandler(store, log.StandardLogger())
	httpHandler := handler.NewHTTPHandler(store, stop, log.StandardLogger())
	proc := processor.New(queues, udpHandler, httpHandler, log.StandardLogger())

	procDone := make(chan struct{})
	go func() {
		proc.Run(stop)
		close(procDone)
	}()

	workerDone := make(chan struct{})
	go func() {
		worker.Run(stop, queues)
		close(workerDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(configPollInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-sigChan:
			log.Info("shutdown signal received")
			break loop
		case <-ticker.C:
			if stop.Load() {
				break loop
			}
			if changed, err := cfg.TryReload(); err != nil {
				log.Warnf("config reload failed, keeping previous values: %v", err)
			} else if changed {
				sessionTimeout.Store(cfg.SessionTimeoutSec)
				shutdownRate.Store(cfg.GracefulShutdownRate)
				if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
					log.SetLevel(lvl)
				}
				log.Info("config reloaded")
			}
		}
	}

	stop.Store(true)

	// Shutdown order: processor first so it stops consuming queues,
	// then the I/O worker so no more sockets are touched, then the
	// session store's graceful drain.
	<-procDone
	<-workerDone
	worker.Close()
	store.Close()

	log.Info("PGW server stopped")
}
