// Command kvctl is an interactive client for exercising a running broker
// from a terminal, built on the client package. Argument handling
// follows the same docopt convention as cmd/broker; the terminal
// interaction below mirrors bringyour-connect's provider/main.go, which
// checks golang.org/x/term.IsTerminal before deciding how to prompt.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/bringyour/kvbroker/client"
	"github.com/bringyour/kvbroker/internal/document"
)

const KvctlVersion = "0.1.0"

func main() {
	usage := `Key/value broker CLI.

Usage:
    kvctl connect <url> [--platform=<platform>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --platform=<platform>    Platform hint (browser, react-native, nodejs) [default: ].
    `

	opts, err := docopt.ParseArgs(usage, os.Args[1:], KvctlVersion)
	if err != nil {
		panic(err)
	}

	url, _ := opts.String("<url>")
	platformHint, _ := opts.String("--platform")
	run(url, platformHint)
}

func run(url, platformHint string) {
	cfg := client.DefaultConfig(url)
	cfg.Platform = platformHint
	c := client.New(cfg)

	c.On(client.EventDisconnected, func(err error) {
		fmt.Fprintln(os.Stderr, "disconnected, reconnecting...")
	})
	c.On(client.EventMaxReconnectAttemptsReached, func(err error) {
		fmt.Fprintln(os.Stderr, "gave up reconnecting")
		os.Exit(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("connected as %s, capabilities=%v\n", c.ClientID(), c.Capabilities())

	interactive := term.IsTerminal(int(syscall.Stdin))
	repl(c, interactive)
}

func repl(c *client.Client, interactive bool) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("kvctl> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatchCommand(c, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func dispatchCommand(c *client.Client, line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: get <collection> <key>")
		}
		v, err := c.Get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		raw, _ := json.Marshal(v)
		fmt.Println(string(raw))
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: set <collection> <key> <value>")
		}
		value := document.NewString(strings.Join(args[2:], " "))
		return c.Set(ctx, args[0], args[1], value)
	case "del":
		if len(args) != 2 {
			return fmt.Errorf("usage: del <collection> <key>")
		}
		return c.Delete(ctx, args[0], args[1])
	case "sub":
		if len(args) != 2 {
			return fmt.Errorf("usage: sub <collection> <pattern>")
		}
		_, err := c.Subscribe(ctx, args[0], args[1], func(u client.Update) {
			raw, _ := json.Marshal(u.Value)
			fmt.Printf("update: %s/%s %s %s\n", u.Collection, u.Key, u.Operation, raw)
		})
		return err
	case "unsub":
		if len(args) != 2 {
			return fmt.Errorf("usage: unsub <collection> <pattern>")
		}
		return c.Unsubscribe(ctx, args[0], args[1])
	case "ping":
		latency, err := c.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pong in %s\n", latency)
	case "quit", "exit":
		if err := c.Close(); err != nil {
			return err
		}
		os.Exit(0)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
