// Package main implements fakerealtime, a local realtime broker for trying the
// client and the CLI without a real deployment. It serves the websocket
// endpoint and the REST API of internal/fakebroker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Thejuampi/realtime-client-go/internal/fakebroker"
	"github.com/Thejuampi/realtime-client-go/wire"
)

type seedFlags []string

func (s *seedFlags) String() string { return fmt.Sprintf("%v", *s) }
func (s *seedFlags) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var (
	flagAddr         = flag.String("addr", "127.0.0.1:8787", "listen address")
	flagLogConn      = flag.Bool("log-conn", true, "log connect/disconnect events")
	flagReject       = flag.String("reject", "", "reject every websocket connection with this error message")
	flagWriteTimeout = flag.Duration("write-timeout", 5*time.Second, "per-frame websocket write timeout")
	flagShutdown     = flag.Duration("shutdown-timeout", 5*time.Second, "graceful shutdown timeout")

	flagSeeds seedFlags
)

type seedMessage struct {
	channel string
	name    string
	data    []byte
}

// parseSeed parses 'channel:name:json'.
func parseSeed(entry string) (seedMessage, error) {
	parts := strings.SplitN(entry, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return seedMessage{}, fmt.Errorf("expected channel:name:json, got %q", entry)
	}
	var value any
	if err := wire.Unmarshal(wire.EncodingJSON, []byte(parts[2]), &value); err != nil {
		return seedMessage{}, fmt.Errorf("seed %q: %w", entry, err)
	}
	return seedMessage{channel: parts[0], name: parts[1], data: []byte(parts[2])}, nil
}

func main() {
	flag.Var(&flagSeeds, "seed", "publish a message at startup: 'channel:name:json' (repeatable)")
	flag.Parse()

	options := fakebroker.Options{WriteTimeout: *flagWriteTimeout}
	if *flagLogConn {
		options.Logger = log.Default()
	}
	broker := fakebroker.New(options)

	for _, entry := range flagSeeds {
		seed, err := parseSeed(entry)
		if err != nil {
			log.Printf("fakerealtime: invalid seed: %v", err)
			continue
		}
		stored := broker.Publish(seed.channel, seed.name, seed.data, wire.EncodingJSON)
		log.Printf("fakerealtime: seeded %s/%s as message %s", seed.channel, seed.name, stored.ID())
	}
	if *flagReject != "" {
		broker.RejectConnectionsWith(*flagReject)
	}

	server := &http.Server{
		Addr:              *flagAddr,
		Handler:           broker,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("fakerealtime: received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), *flagShutdown)
		defer cancel()
		broker.Close()
		_ = server.Shutdown(ctx)
	}()

	log.Printf("fakerealtime listening on %s  (endpoint=%s reject=%q seeds=%d)",
		*flagAddr, fakebroker.BasePattern, *flagReject, len(flagSeeds))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("fakerealtime: listen %s failed: %v", *flagAddr, err)
	}
	log.Printf("fakerealtime: server closed, exiting")
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fakerealtime - local realtime broker for development and tests\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}
