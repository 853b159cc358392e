// casnos-discover locates a queue server on the local network over UDP and
// prints its descriptor as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeogo/casnos-sub001/internal/discovery"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		port       int
		timeout    time.Duration
		interval   time.Duration
		once       bool
		clientType string
		targets    []string
	)
	flagSet := pflag.NewFlagSet("casnos-discover", pflag.ContinueOnError)
	flagSet.IntVar(&port, "port", discovery.DefaultUDPPort, "discovery UDP port")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "wait per discovery round")
	flagSet.DurationVar(&interval, "interval", 3*time.Second, "pause between rounds")
	flagSet.BoolVar(&once, "once", false, "send a single round instead of retrying until found")
	flagSet.StringVar(&clientType, "type", "client", "terminal type reported to the server")
	flagSet.StringSliceVar(&targets, "target", nil, "broadcast address to probe (repeatable, default: computed)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requester := discovery.NewRequester(discovery.RequesterOptions{
		Port:       port,
		Timeout:    timeout,
		Interval:   interval,
		ClientType: clientType,
		Targets:    targets,
	})

	var (
		payload discovery.Payload
		err     error
	)
	if once {
		payload, err = requester.Discover(ctx)
	} else {
		payload, err = requester.DiscoverLoop(ctx)
	}
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: casnos-discover [flags]\n\nFlags:\n")
	flagSet.PrintDefaults()
}
