// Command pgw-client is a small load generator: starting from one
// IMSI, it sends N sequentially-incremented attach datagrams to a PGW
// server and reports any unexpected response.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/config"
	"pgw-gateway/internal/ie"
	"pgw-gateway/internal/ioreactor"
	"pgw-gateway/internal/netio"
	"pgw-gateway/internal/ring"
)

// Queue capacities mirror pgw_client/src/main.cpp: the client never
// touches the HTTP side, so those queues are sized to 1.
const (
	httpQueueCapacity = 1
	udpQueueCapacity  = 10000

	responseWait = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "pgw_client_config.json", "Path to config file")
	startIMSI := flag.String("M", "", "starting IMSI")
	count := flag.Int("N", 1, "number of sequential IMSIs to generate")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadClientConfig(*configPath)
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

	if !ie.Valid(*startIMSI) {
		log.Error("zero or invalid starting IMSI, pass one with -M")
		os.Exit(1)
	}
	imsiAmount := *count
	if imsiAmount <= 0 {
		log.Info("wrong number of IMSI to generate, use N = 1")
		imsiAmount = 1
	}

	log.Debugf("start with IMSI %s", *startIMSI)
	log.Debugf("number of IMSI to generate = %d", imsiAmount)

	serverIP, err := netio.ParseIPv4(cfg.ServerUDPIP)
	if err != nil {
		log.Fatalf("server_udp_ip invalid: %v", err)
	}
	serverEndpoint := netio.Endpoint{Addr: serverIP, Port: cfg.ServerUDPPort}

	// Bound to 0.0.0.0:0 on both sides, exactly as the original client
	// does: the worker needs an HTTP listener to construct, even though
	// this client never drives HTTP traffic through it.
	worker, err := ioreactor.NewWorker("0.0.0.0", 0, "0.0.0.0", 0, log.StandardLogger())
	if err != nil {
		log.Fatalf("failed to start I/O worker: %v", err)
	}

	queues := ioreactor.Queues{
		HTTPIn:  ring.New[netio.Packet](httpQueueCapacity),
		UDPIn:   ring.New[netio.Packet](udpQueueCapacity),
		HTTPOut: ring.New[netio.Packet](httpQueueCapacity),
		UDPOut:  ring.New[netio.Packet](udpQueueCapacity),
	}

	stop := &atomic.Bool{}
	workerDone := make(chan struct{})
	go func() {
		worker.Run(stop, queues)
		close(workerDone)
	}()
	log.Debug("I/O worker started")

	imsis := generateAndSend(*startIMSI, imsiAmount, serverEndpoint, queues.UDPOut)

	expected, unexpected := collectResponses(imsis, queues.UDPIn)

	if len(imsis) > 0 {
		log.Debugf("amount of expected responses = %d, amount of all responses = %d, ratio = %.2f",
			expected, len(imsis), float64(expected)/float64(len(imsis)))
	}
	fmt.Printf("sent %d requests, %d unexpected responses\n", len(imsis), unexpected)

	stop.Store(true)
	<-workerDone
	worker.Close()

	if unexpected > 0 {
		os.Exit(1)
	}
}

// generateAndSend builds imsiAmount sequential, zero-padded IMSIs
// starting from startIMSI's numeric value, queuing an attach IE for
// each one that's still a valid IMSI string.
func generateAndSend(startIMSI string, imsiAmount int, server netio.Endpoint, udpOut *ring.Queue[netio.Packet]) []ie.IMSI {
	start, err := parseIMSINumber(startIMSI)
	if err != nil {
		log.Fatalf("can't parse starting IMSI: %v", err)
	}

	imsis := make([]ie.IMSI, 0, imsiAmount)
	for i := 0; i < imsiAmount; i++ {
		candidate := fmt.Sprintf("%0*d", len(startIMSI), start+uint64(i))
		id, err := ie.NewIMSI(candidate)
		if err != nil {
			log.Warnf("can't create IMSI from %s", candidate)
			continue
		}

		pkt := netio.Packet{Peer: server, Data: ie.ToIE(id), Kind: netio.UDP}
		if !udpOut.Push(pkt) {
			log.Warnf("can't send IMSI IE, queue is FULL")
			continue
		}

		imsis = append(imsis, id)
		log.Infof("send IE with IMSI %s", id)
	}
	return imsis
}

func parseIMSINumber(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// collectResponses drains one response per sent IMSI off udpIn,
// tallying anything other than the three expected response bodies.
func collectResponses(imsis []ie.IMSI, udpIn *ring.Queue[netio.Packet]) (expected, unexpected int) {
	deadline := time.Now().Add(responseWait)
	received := 0

	for received < len(imsis) && time.Now().Before(deadline) {
		pkt, ok := udpIn.Pop()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}

		body := string(pkt.Data)
		fmt.Printf("for IMSI %s response [%d]: %s\n", imsis[received], received, body)

		switch body {
		case "created", "updated", "rejected, IMSI blacklisted or error creating session":
			expected++
		default:
			log.Warn("server sent unexpected response")
			unexpected++
		}
		received++
	}

	if received < len(imsis) {
		log.Warnf("timed out waiting for responses: got %d of %d", received, len(imsis))
		unexpected += len(imsis) - received
	}

	return expected, unexpected
}
