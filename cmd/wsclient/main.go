// File: cmd/wsclient/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Console chat client: lines typed by the user are sent under their name,
// messages relayed by the server are printed as they arrive.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/term"

	"github.com/momentics/wsrelay/chat"
	"github.com/momentics/wsrelay/client"
	"github.com/momentics/wsrelay/control"
	"github.com/momentics/wsrelay/server"
)

// quitAware records whether the user asked to leave.
type quitAware struct {
	*server.Runtime
	quit atomic.Bool
}

func (q *quitAware) Shutdown() error {
	q.quit.Store(true)
	return q.Runtime.Shutdown()
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "server address (default from config, 127.0.0.1:8080)")
	fixedKey := flag.Bool("fixed-key", false, "send the RFC 6455 sample key instead of a random nonce")
	noMask := flag.Bool("no-mask", false, "send unmasked frames like the legacy client")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <username>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	username := flag.Arg(0)

	logger := log.New(os.Stderr, "[client] ", log.LstdFlags)
	cfg, err := control.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	if *fixedKey {
		cfg.FixedKey = true
	}
	if *noMask {
		cfg.MaskOutgoing = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.ClientConfig{
		Config:     *cfg,
		Dispatcher: chat.Print(log.New(os.Stdout, "", 0)),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("%v", err)
	}

	console := chat.Console{
		Encode:    func(line string) []byte { return chat.EncodePayload(username, line) },
		QuitOnEOF: true,
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		console.Prompt = func() { fmt.Print("> ") }
	}
	rt := &quitAware{Runtime: c.Runtime()}

	fmt.Println("Enter messages to send to the server. Type /quit to exit.")
	go func() {
		if err := console.Run(os.Stdin, rt); err != nil {
			logger.Printf("console: %v", err)
		}
	}()

	if err := c.Run(ctx); err != nil {
		logger.Fatalf("run: %v", err)
	}
	if rt.quit.Load() || ctx.Err() != nil {
		fmt.Println("Closing connection...")
	} else {
		fmt.Println("Server disconnected.")
	}
}
