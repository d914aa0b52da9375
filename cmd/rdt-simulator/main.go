// Command rdt-simulator sits between two rdt endpoints, forwarding
// datagrams in both directions while independently dropping, corrupting,
// or reordering them per configured probabilities.
//
// Grounded on original_source/network_simulator.py: two UDP sockets
// (listen side, forward side) each run an inbound-forwarding loop, plus a
// third loop that periodically releases one packet from the reorder
// buffer.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/harlanmills/rdtgo/internal/rdtlog"
)

type side int

const (
	sideListen side = iota
	sideForward
)

func (s side) String() string {
	if s == sideListen {
		return "listen"
	}
	return "forward"
}

type bufferedPacket struct {
	data []byte
	from side
}

const maxSimDatagram = 4096

func main() {
	var (
		listenAddrStr  string
		forwardAddrStr string
		dropProb       float64
		corruptProb    float64
		reorderProb    float64
		metricsAddr    string
	)

	root := &cobra.Command{
		Use:   "rdt-simulator",
		Short: "Forward UDP datagrams between two endpoints with configurable loss, corruption and reordering",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(listenAddrStr, forwardAddrStr, dropProb, corruptProb, reorderProb, metricsAddr)
		},
	}

	flags := root.Flags()
	flags.StringVar(&listenAddrStr, "listen", "127.0.0.1:8000", "address the sending endpoint talks to")
	flags.StringVar(&forwardAddrStr, "forward", "127.0.0.1:9000", "address of the receiving endpoint")
	flags.Float64Var(&dropProb, "drop-prob", 0.0, "probability a datagram is dropped")
	flags.Float64Var(&corruptProb, "corrupt-prob", 0.0, "probability a datagram has one byte flipped")
	flags.Float64Var(&reorderProb, "reorder-prob", 0.0, "probability a datagram is held back for later, out-of-order release")
	flags.StringVar(&metricsAddr, "metrics-addr", ":2114", "address to serve Prometheus /metrics on")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(listenAddrStr, forwardAddrStr string, dropProb, corruptProb, reorderProb float64, metricsAddr string) error {
	log := rdtlog.New("rdt-simulator")
	rdtlog.Banner("RDT Network Simulator", "1.0.0")

	registry := prometheus.NewRegistry()
	metricsSrv := startMetricsServer(metricsAddr, registry)
	defer metricsSrv.Shutdown(context.Background())
	log.WithField("addr", metricsAddr).Info("serving /metrics")

	listenAddr, err := net.ResolveUDPAddr("udp", listenAddrStr)
	if err != nil {
		return fmt.Errorf("resolve listen addr: %w", err)
	}
	forwardAddr, err := net.ResolveUDPAddr("udp", forwardAddrStr)
	if err != nil {
		return fmt.Errorf("resolve forward addr: %w", err)
	}

	sockListen, err := net.ListenUDP("udp", listenAddr)
	if err != nil {
		return fmt.Errorf("bind listen socket: %w", err)
	}
	defer sockListen.Close()

	sockForward, err := net.ListenUDP("udp", &net.UDPAddr{IP: forwardAddr.IP, Port: 0})
	if err != nil {
		return fmt.Errorf("bind forward socket: %w", err)
	}
	defer sockForward.Close()

	log.WithField("listen", listenAddr).WithField("forward", forwardAddr).
		WithField("drop_prob", dropProb).WithField("corrupt_prob", corruptProb).WithField("reorder_prob", reorderProb).
		Info("simulator running")

	sim := &simulator{
		sockListen:  sockListen,
		sockForward: sockForward,
		listenAddr:  listenAddr,
		forwardAddr: forwardAddr,
		dropProb:    dropProb,
		corruptProb: corruptProb,
		reorderProb: reorderProb,
		impairments: newImpairmentCounters(registry),
	}

	go sim.forwardLoop(sockListen, sideListen)
	go sim.forwardLoop(sockForward, sideForward)
	go sim.reorderReleaseLoop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	log.WithField("signal", sig).Warn("shutting down")
	return nil
}

// simulator mirrors network_simulator.py's simulator(): two bound
// sockets, a reorder buffer protected by a mutex (the reference uses a
// plain list under the GIL; here an explicit mutex stands in for that).
type simulator struct {
	sockListen  *net.UDPConn
	sockForward *net.UDPConn
	listenAddr  *net.UDPAddr
	forwardAddr *net.UDPAddr

	dropProb    float64
	corruptProb float64
	reorderProb float64

	mu      sync.Mutex
	pending []bufferedPacket

	impairments impairmentCounters
}

// impairmentCounters exposes the simulator's own Prometheus metrics,
// separate from internal/metrics.Recorder since the simulator relays raw
// datagrams and never runs an *rdt.Endpoint.
type impairmentCounters struct {
	forwarded prometheus.Counter
	dropped   prometheus.Counter
	corrupted prometheus.Counter
	reordered prometheus.Counter
}

func newImpairmentCounters(reg prometheus.Registerer) impairmentCounters {
	c := impairmentCounters{
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdt_simulator",
			Name:      "datagrams_forwarded_total",
			Help:      "Datagrams relayed to the opposite side, including corrupted ones and ones released from the reorder buffer.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdt_simulator",
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams discarded per drop_prob.",
		}),
		corrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdt_simulator",
			Name:      "datagrams_corrupted_total",
			Help:      "Datagrams relayed with one byte flipped per corrupt_prob.",
		}),
		reordered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdt_simulator",
			Name:      "datagrams_reordered_total",
			Help:      "Datagrams held in the reorder buffer and released out of order.",
		}),
	}
	reg.MustRegister(c.forwarded, c.dropped, c.corrupted, c.reordered)
	return c
}

// forwardLoop reads datagrams arriving on src and, subject to
// loss/corruption/reorder, forwards them to the opposite side.
func (s *simulator) forwardLoop(src *net.UDPConn, from side) {
	buf := make([]byte, maxSimDatagram)
	log := rdtlog.New("rdt-simulator")
	for {
		n, _, err := src.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := append([]byte(nil), buf[:n]...)
		log.WithField("direction", from).WithField("bytes", n).Debug("received datagram")

		if rand.Float64() < s.dropProb {
			s.impairments.dropped.Inc()
			continue
		}
		if rand.Float64() < s.corruptProb {
			data = corrupt(data)
			s.impairments.corrupted.Inc()
		}
		if rand.Float64() < s.reorderProb {
			s.mu.Lock()
			s.pending = append(s.pending, bufferedPacket{data: data, from: from})
			s.mu.Unlock()
			s.impairments.reordered.Inc()
			continue
		}
		s.forward(data, from)
	}
}

// forward sends data in the direction opposite from, i.e. a packet
// received from the listen side goes out to the forward peer and vice
// versa.
func (s *simulator) forward(data []byte, from side) {
	var err error
	if from == sideListen {
		_, err = s.sockForward.WriteToUDP(data, s.forwardAddr)
	} else {
		_, err = s.sockListen.WriteToUDP(data, s.listenAddr)
	}
	if err != nil {
		rdtlog.New("rdt-simulator").WithField("err", err).Warn("forward failed")
		return
	}
	s.impairments.forwarded.Inc()
}

// reorderReleaseLoop polls the pending buffer every 50ms and, with 20%
// probability per tick, releases one randomly chosen packet out of order
// — the same cadence as the reference's sleep(0.05)/random()<0.2 loop.
func (s *simulator) reorderReleaseLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		if len(s.pending) == 0 || rand.Float64() >= 0.2 {
			s.mu.Unlock()
			continue
		}
		idx := rand.Intn(len(s.pending))
		pkt := s.pending[idx]
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		s.mu.Unlock()

		s.forward(pkt.data, pkt.from)
	}
}

func corrupt(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	out := append([]byte(nil), data...)
	idx := rand.Intn(len(out))
	out[idx] ^= 0xFF
	return out
}

// startMetricsServer serves reg on /metrics in the background, the way
// runZeroInc-sockstats' exporter commands expose a collector with
// promhttp.Handler.
func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rdtlog.New("rdt-simulator").WithError(err).Warn("metrics server stopped")
		}
	}()
	return srv
}
