package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/tilerelay/internal/client"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/wire"
)

func main() {
	cfg := config.LoadOrDefault()

	host := flag.String("ip", "127.0.0.1", "Relay address")
	port := flag.String("port", cfg.Relay.Port, "Relay port")
	image := flag.String("image", "", "Path of the image to send")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode")
	flag.Parse()

	if *image == "" {
		fmt.Fprintln(os.Stderr, "client: -image is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.FromSettings(cfg.Logging.Level, *dev)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		DialTimeout:  cfg.Network.DialTimeout,
		IOTimeout:    cfg.Network.IOTimeout,
		MaxFrameSize: cfg.Network.MaxFrameSize,
	}, logger)

	reply, err := c.SendFile(ctx, net.JoinHostPort(*host, *port), *image)
	if err != nil {
		var remote *wire.RemoteError
		if errors.As(err, &remote) {
			fmt.Fprintf(os.Stderr, "relay error (%s): %s\n", remote.Kind, remote.Message)
		} else {
			fmt.Fprintf(os.Stderr, "client: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Println(string(reply))
}
