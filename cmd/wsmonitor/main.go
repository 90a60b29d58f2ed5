// File: cmd/wsmonitor/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Real-time file monitor: browsers get a page showing the file, WebSocket
// clients get the new content every time the file changes.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/wsrelay/control"
	"github.com/momentics/wsrelay/monitor"
	"github.com/momentics/wsrelay/server"
	"github.com/momentics/wsrelay/transport/tcp"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "listen address (default from config, :8080)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	cfg, err := control.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	m, err := monitor.New(flag.Arg(0), monitor.Config{Logger: logger, Debounce: cfg.MonitorDebounce})
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ln, err := tcp.Listen(cfg.ListenAddr)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	metrics := control.NewMetricsRegistry()
	rt, err := server.New(
		server.WithListener(ln),
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithConfig(cfg),
		server.WithPlainRequest(m.ServePage),
	)
	if err != nil {
		ln.Close()
		logger.Fatalf("runtime: %v", err)
	}

	if cfg.StatusAddr != "" {
		probes := control.NewDebugProbes()
		rt.RegisterProbes(probes)
		st := control.NewStatusServer(metrics, probes, log.New(os.Stderr, "[status] ", log.LstdFlags))
		if err := st.Start(cfg.StatusAddr); err != nil {
			logger.Fatalf("status: %v", err)
		}
		defer st.Shutdown(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := m.Watch(ctx, rt); err != nil {
			logger.Printf("watch: %v", err)
			rt.Shutdown()
		}
	}()

	logger.Printf("open http://%s in a browser to follow %s", ln.Addr(), m.Path())
	if err := rt.Run(ctx); err != nil {
		logger.Fatalf("run: %v", err)
	}
}
