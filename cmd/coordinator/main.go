// Command coordinator drives experiment instances against a fleet of
// scanner, firewall, and target agents, per spec.md §4.1 and §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"distscan/internal/coordinator"
)

func main() {
	var (
		configPath = flag.String("c", "", "configuration file (required)")
		debug      = flag.Bool("d", false, "enable debug logging")
		ownAddr    = flag.String("a", "localhost:9000", "this coordinator's own callback address (host:port)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -c <config.json> [-d] [-a host:port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	host, portStr, err := net.SplitHostPort(*ownAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -a address %q: %v\n", *ownAddr, err)
		os.Exit(2)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -a port %q: %v\n", portStr, err)
		os.Exit(2)
	}

	app, err := coordinator.NewApp(coordinator.Options{
		ConfigPath: *configPath,
		OwnAddress: host,
		OwnPort:    port,
		Debug:      *debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start coordinator: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("experiment matrix failed: %v", err)
		}
	case <-sig:
		log.Println("interrupt received, cancelling remaining experiments")
		cancel()
		<-done
	}
}
