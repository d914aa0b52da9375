// Command rdt-send streams a file to a peer rdt-recv process.
//
// Grounded on original_source/client.py: connect, read the file in
// 1024-byte chunks calling Send per chunk, then send a literal "EOF"
// marker so the receiver knows to stop, then close.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harlanmills/rdtgo"
	"github.com/harlanmills/rdtgo/internal/rdtlog"
)

const chunkSize = 1024

var eofMarker = []byte("EOF")

func main() {
	var (
		localAddr  string
		remoteAddr string
		filePath   string
	)

	root := &cobra.Command{
		Use:   "rdt-send",
		Short: "Send a file over a reliable data transfer connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(localAddr, remoteAddr, filePath)
		},
	}

	flags := root.Flags()
	flags.StringVar(&localAddr, "local", ":0", "local address to bind")
	flags.StringVar(&remoteAddr, "remote", "", "remote rdt-recv address (required)")
	flags.StringVar(&filePath, "file", "", "path of the file to send (required)")
	root.MarkFlagRequired("remote")
	root.MarkFlagRequired("file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(localAddr, remoteAddr, filePath string) error {
	log := rdtlog.New("rdt-send")
	rdtlog.Banner("RDT Send", "1.0.0")

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	cfg := rdt.DefaultConfig(localAddr)
	ep, err := rdt.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	defer ep.Close()

	if err := ep.Connect(remoteAddr); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.WithField("remote", remoteAddr).WithField("file", filePath).Info("sending")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	done := make(chan error, 1)

	go func() {
		done <- sendFile(ep, f)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		rdtlog.Success(log, "transfer complete")
		return nil
	case sig := <-sigChan:
		log.WithField("signal", sig).Warn("interrupted, closing")
		return ep.Close()
	}
}

func sendFile(ep *rdt.Endpoint, f *os.File) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if sendErr := ep.Send(buf[:n]); sendErr != nil {
				return fmt.Errorf("send: %w", sendErr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name(), err)
		}
	}
	return ep.Send(eofMarker)
}
