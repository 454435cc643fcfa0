// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command coordinated runs one coordination node behind a websocket server.
//
// Clients connect on ws://<LISTEN_ADDR>/ws?actorId=<id>. Actors listed in
// CHAT_ROOMS are created as rooms on start.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tochemey/coordinate/coordinate"
	"github.com/tochemey/coordinate/driver"
	"github.com/tochemey/coordinate/driver/etcd"
	"github.com/tochemey/coordinate/driver/nats"
	"github.com/tochemey/coordinate/driver/redis"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/transport/websocket"
)

func main() {
	ctx := context.Background()

	config, err := getConfig()
	if err != nil {
		log.DefaultLogger.Fatal(errors.Wrap(err, "failed to load the configuration"))
	}

	level := log.ParseLevel(config.LogLevel)
	if level == log.InvalidLevel {
		level = log.InfoLevel
	}
	logger := log.NewZap(level, os.Stdout)
	defer func() { _ = logger.Flush() }()

	if err := run(ctx, config, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, config *Config, logger log.Logger) error {
	d, err := newDriver(ctx, config, logger)
	if err != nil {
		return errors.Wrapf(err, "failed to create the %s driver", config.Driver)
	}

	registry, err := newRegistry()
	if err != nil {
		return multierr.Append(err, d.Close())
	}

	opts := []coordinate.Option{
		coordinate.WithLogger(logger),
		coordinate.WithLeaseDuration(config.LeaseDuration),
		coordinate.WithRenewLeaseGrace(config.RenewGrace),
	}
	if config.NodeID != "" {
		opts = append(opts, coordinate.WithNodeID(config.NodeID))
	}
	if config.Metrics {
		opts = append(opts, coordinate.WithMetrics(nil))
	}

	system, err := coordinate.New(d, registry, opts...)
	if err != nil {
		return multierr.Append(err, d.Close())
	}

	if err := system.Start(ctx); err != nil {
		return multierr.Append(err, d.Close())
	}

	for _, room := range config.ChatRooms {
		if err := system.CreateActorWithID(ctx, room, roomActor, []string{room}); err != nil {
			logger.Error(errors.Wrapf(err, "failed to create room (%s)", room))
		}
	}

	server := websocket.NewServer(system, config.ListenAddr, websocket.WithLogger(logger))
	if err := server.Start(); err != nil {
		return multierr.Combine(err, system.Stop(ctx), d.Close())
	}

	logger.Infof("node (%s) ready", system.NodeID())

	// capture ctrl+c
	interruptSignal := make(chan os.Signal, 1)
	signal.Notify(interruptSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interruptSignal

	stopCtx, cancel := context.WithTimeout(ctx, config.ShutdownPeriod)
	defer cancel()

	return multierr.Combine(
		server.Stop(stopCtx),
		system.Stop(stopCtx),
		d.Close(),
	)
}

func newDriver(ctx context.Context, config *Config, logger log.Logger) (driver.Driver, error) {
	switch config.Driver {
	case "nats":
		return nats.NewDriver(ctx, &nats.Config{
			URL:    config.NatsURL,
			Bucket: config.NatsBucket,
		}, nats.WithLogger(logger))
	case "redis":
		return redis.NewDriver(ctx, &redis.Config{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
		}, redis.WithLogger(logger))
	case "etcd":
		// etcd holds the leases, NATS carries the traffic
		pubsub, err := nats.NewDriver(ctx, &nats.Config{
			URL:    config.NatsURL,
			Bucket: config.NatsBucket,
		}, nats.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		store, err := etcd.NewStore(&etcd.Config{
			Context:   ctx,
			Endpoints: config.EtcdEndpoints,
			Namespace: config.EtcdNamespace,
		}, etcd.WithLogger(logger))
		if err != nil {
			return nil, multierr.Append(err, pubsub.Close())
		}
		return driver.Compose(pubsub, store), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", config.Driver)
	}
}
