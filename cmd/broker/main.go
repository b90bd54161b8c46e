// Command broker runs the key/value broker's WebSocket server. Argument
// parsing follows bringyour-connect's docopt-based cmd/ binaries
// (tetherctl/main.go, provider/main.go).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/bringyour/kvbroker/internal/broker"
	"github.com/bringyour/kvbroker/internal/platform"
	"github.com/bringyour/kvbroker/internal/storage"
)

const BrokerVersion = "0.1.0"

func main() {
	// glog defaults to file-only logging; a CLI binary wants stderr, so
	// override it directly rather than let docopt and glog fight over
	// os.Args by both calling flag.Parse.
	flag.Set("logtostderr", "true")

	usage := `Key/value broker.

Usage:
    broker serve [--config=<config>]

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<config>  Path to a YAML config file [default: ].
    `

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BrokerVersion)
	if err != nil {
		panic(err)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		configPath, _ := opts.String("--config")
		serve(configPath)
	} else {
		docopt.PrintHelpAndExit(nil, usage)
	}
}

func serve(configPath string) {
	cfg, err := broker.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("broker: load config: %v", err)
	}

	srv, err := broker.New(cfg)
	if err != nil {
		glog.Fatalf("broker: init: %v", err)
	}

	// the host-bridge adapter is opt-in: when configured it takes over
	// the "other" platform slot, which otherwise falls back to the
	// in-memory adapter (see DESIGN.md's capability-table note).
	if cfg.RedisAddr != "" {
		hostBridge := storage.NewHostBridge(cfg.RedisAddr)
		srv.Adapters().Bind(platform.Other, hostBridge)
		glog.Infof("broker: host-bridge adapter bound to %s", cfg.RedisAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		glog.Infof("broker: shutting down")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		glog.Fatalf("broker: %v", err)
	}
}
