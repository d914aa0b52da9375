// Command rdt-recv accepts one rdt-send peer and writes the received
// stream to a file.
//
// Grounded on original_source/server.py: accept, then loop on Recv
// writing each payload to the output file until a payload equal to the
// literal "EOF" marker arrives.
package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/harlanmills/rdtgo"
	"github.com/harlanmills/rdtgo/internal/rdtlog"
)

func main() {
	var (
		localAddr   string
		outPath     string
		metricsAddr string
	)

	root := &cobra.Command{
		Use:   "rdt-recv",
		Short: "Receive a file over a reliable data transfer connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(localAddr, outPath, metricsAddr)
		},
	}

	flags := root.Flags()
	flags.StringVar(&localAddr, "local", ":9000", "local address to bind")
	flags.StringVar(&outPath, "out", "", "path to write the received file (required)")
	flags.StringVar(&metricsAddr, "metrics-addr", ":2113", "address to serve Prometheus /metrics on")
	root.MarkFlagRequired("out")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(localAddr, outPath, metricsAddr string) error {
	log := rdtlog.New("rdt-recv")
	rdtlog.Banner("RDT Recv", "1.0.0")

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	registry := prometheus.NewRegistry()
	metricsSrv := startMetricsServer(metricsAddr, registry)
	defer metricsSrv.Shutdown(context.Background())
	log.WithField("addr", metricsAddr).Info("serving /metrics")

	cfg := rdt.DefaultConfig(localAddr)
	ep, err := rdt.New(cfg, registry)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	defer ep.Close()

	log.WithField("local", localAddr).Info("waiting for sender")
	peer, err := ep.Accept()
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	log.WithField("peer", peer).Info("accepted connection")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	done := make(chan error, 1)

	go func() {
		done <- recvFile(ep, out)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		rdtlog.Success(log, "received %s", outPath)
		return nil
	case sig := <-sigChan:
		log.WithField("signal", sig).Warn("interrupted, closing")
		return ep.Close()
	}
}

func recvFile(ep *rdt.Endpoint, out *os.File) error {
	for {
		payload, err := ep.Recv()
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		if bytes.Equal(payload, []byte("EOF")) {
			return nil
		}
		if _, err := out.Write(payload); err != nil {
			return fmt.Errorf("write %s: %w", out.Name(), err)
		}
	}
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
			rdtlog.New("rdt-recv").WithError(err).Warn("metrics server stopped")
		}
	}()
	return srv
}
