// File: cmd/wsserver/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chat relay server: every client message is forwarded to all other
// clients, and lines typed on the console are broadcast to everyone.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/wsrelay/chat"
	"github.com/momentics/wsrelay/control"
	"github.com/momentics/wsrelay/internal/history"
	"github.com/momentics/wsrelay/server"
	"github.com/momentics/wsrelay/transport/tcp"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "listen address (default from config, :8080)")
	status := flag.String("status", "", "HTTP status endpoint address, empty disables")
	historyPath := flag.String("history", "", "SQLite chat history file, empty disables")
	flag.Parse()

	logger := log.New(os.Stderr, "[server] ", log.LstdFlags)

	// load reads the config file and applies the flags given on the command
	// line on top of it; SIGHUP repeats it.
	load := func() (*control.Config, error) {
		cfg, err := control.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "addr":
				cfg.ListenAddr = *addr
			case "status":
				cfg.StatusAddr = *status
			case "history":
				cfg.HistoryPath = *historyPath
			}
		})
		return cfg, cfg.Validate()
	}
	cfg, err := load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	live := control.NewConfigStore(cfg)

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)

	relayCfg := chat.RelayConfig{
		Logger:  log.New(os.Stderr, "[relay] ", log.LstdFlags),
		Metrics: metrics,
		Replay:  cfg.HistoryReplay,
	}
	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			logger.Fatalf("history: %v", err)
		}
		defer store.Close()
		relayCfg.History = store
	}
	relay := chat.NewRelay(relayCfg)

	ln, err := tcp.Listen(cfg.ListenAddr)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	rt, err := server.New(
		server.WithListener(ln),
		server.WithDispatcher(relay.Dispatch),
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithConfigStore(live),
		server.WithOpenHook(relay.Greet),
	)
	if err != nil {
		ln.Close()
		logger.Fatalf("runtime: %v", err)
	}
	rt.RegisterProbes(probes)

	if cfg.StatusAddr != "" {
		st := control.NewStatusServer(metrics, probes, log.New(os.Stderr, "[status] ", log.LstdFlags))
		if err := st.Start(cfg.StatusAddr); err != nil {
			logger.Fatalf("status: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			st.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			next, err := load()
			if err != nil {
				logger.Printf("reload config: %v", err)
				continue
			}
			if next.ListenAddr != cfg.ListenAddr || next.StatusAddr != cfg.StatusAddr || next.HistoryPath != cfg.HistoryPath {
				logger.Printf("reload config: address and history changes apply after restart")
			}
			if err := live.Update(func(c *control.Config) { *c = *next }); err != nil {
				logger.Printf("reload config: %v", err)
			}
		}
	}()

	fmt.Println("Type messages on the server console to send to every client. Type /quit to exit.")
	go func() {
		if err := (chat.Console{}).Run(os.Stdin, rt); err != nil {
			logger.Printf("console: %v", err)
		}
	}()

	if err := rt.Run(ctx); err != nil {
		logger.Fatalf("run: %v", err)
	}
}
