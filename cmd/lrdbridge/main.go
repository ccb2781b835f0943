// Command lrdbridge couples stdio to a persistent single-client
// bridge: bytes arriving from the connected client are written to
// stdout, bytes read from stdin are shipped to the client (or cached
// while none is connected). The client may disconnect and reconnect
// without disturbing the stdio side.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sammck-go/logger"

	"github.com/toras9000/lrdbridge/pkg/lrdconf"
	"github.com/toras9000/lrdbridge/pkg/lrdnet"
)

func main() {
	var (
		listen     = flag.String("listen", "", "accept endpoint (host:port); overrides the config file")
		configPath = flag.String("config", "", "optional TOML config file, hot-reloaded while running")
		useWS      = flag.Bool("ws", false, "accept a WebSocket client instead of raw TCP")
		wsPath     = flag.String("ws-path", "/", "upgrade path for -ws")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	if err := run(*listen, *configPath, *useWS, *wsPath, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "lrdbridge: %s\n", err)
		os.Exit(1)
	}
}

func run(listen, configPath string, useWS bool, wsPath string, debug bool) error {
	cfg := &lrdconf.Config{}
	if configPath != "" {
		var err error
		cfg, err = lrdconf.Load(configPath)
		if err != nil {
			return err
		}
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if useWS {
		cfg.WebSocket = true
		cfg.WebSocketPath = wsPath
	}
	if debug {
		cfg.Debug = true
	}
	if cfg.Listen == "" {
		return fmt.Errorf("no listen endpoint; use -listen or a config file")
	}

	logLevel := logger.LogLevelInfo
	if cfg.Debug {
		logLevel = logger.LogLevelDebug
	}
	lg, err := logger.New(
		logger.WithWriter(os.Stderr),
		logger.WithLogLevel(logLevel),
		logger.WithPrefix("lrdbridge"),
	)
	if err != nil {
		return err
	}

	var bridge *lrdnet.Bridge
	if cfg.WebSocket {
		bridge, err = lrdnet.NewWebSocketBridge(lg, cfg.Listen, cfg.WebSocketPath, cfg.Debug, cfg.BridgeOptions())
	} else {
		bridge, err = lrdnet.NewBridge(lg, cfg.Listen, cfg.BridgeOptions())
	}
	if err != nil {
		return err
	}

	if configPath != "" {
		w, werr := lrdconf.NewWatcher(lg, configPath, func(c *lrdconf.Config) {
			c.Apply(bridge)
		})
		if werr != nil {
			lg.DLogf("config watch unavailable: %s", werr)
		} else {
			defer w.Close()
		}
	}

	// stdin -> Outgoing; end of stdin completes the outbound stream
	// and winds the bridge down once it has drained.
	outgoing := bridge.Outgoing()
	go func() {
		io.Copy(outgoing, os.Stdin)
		outgoing.Close()
	}()

	// Incoming -> stdout for the bridge's whole lifetime.
	go io.Copy(os.Stdout, bridge.Incoming())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		bridge.StartShutdown(nil)
	}()

	return bridge.WaitShutdown()
}
