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

package coordinate

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/ack"
	"github.com/tochemey/coordinate/internal/metric"
	"github.com/tochemey/coordinate/internal/xsync"
	"github.com/tochemey/coordinate/log"
)

// ReasonSystemStopping is sent to clients disconnected by System.Stop
const ReasonSystemStopping = "system stopping"

// System is the coordination context of one process.
//
// It owns the process-wide tables: actor peers keyed by actor ID, relay
// connections keyed by connection ID and the pending acks keyed by message ID.
type System struct {
	config   *Config
	driver   driver.Driver
	registry *actor.Registry
	logger   log.Logger

	peers  *xsync.Map[string, *peer]
	relays *xsync.Map[string, *RelayConnection]
	acks   *ack.Table

	// guards start and stop
	mu      sync.Mutex
	started *atomic.Bool
	node    *node
	metric  *metric.CoordinateMetric

	// lifetime of heartbeats and dispatch, canceled by Stop
	ctx    context.Context
	cancel context.CancelFunc
	// tracks heartbeat goroutines
	wg sync.WaitGroup
}

// New creates a System. The System does nothing until Start.
func New(d driver.Driver, registry *actor.Registry, opts ...Option) (*System, error) {
	if d == nil {
		return nil, fmt.Errorf("driver is required")
	}

	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	config, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &System{
		config:   config,
		driver:   d,
		registry: registry,
		logger:   config.logger,
		peers:    xsync.NewMap[string, *peer](),
		relays:   xsync.NewMap[string, *RelayConnection](),
		acks:     ack.NewTable(),
		started:  atomic.NewBool(false),
		ctx:      context.Background(),
		cancel:   func() {},
	}, nil
}

// NodeID returns the ID of this process
func (s *System) NodeID() string {
	return s.config.nodeID
}

// Config returns the configuration in use
func (s *System) Config() *Config {
	return s.config
}

// Start subscribes this node on the driver and starts dispatching envelopes
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return gerrors.ErrSystemAlreadyStarted
	}

	sub, err := s.driver.Subscribe(ctx, s.config.nodeID)
	if err != nil {
		return fmt.Errorf("failed to subscribe node (%s): %w", s.config.nodeID, err)
	}

	if s.config.metricsEnabled {
		provider := metric.NewProvider()
		if s.config.meterProvider != nil {
			provider = metric.NewProviderFrom(s.config.meterProvider)
		}

		instruments, err := metric.NewCoordinateMetric(provider.Meter(), s.config.nodeID,
			func() int64 { return int64(s.peers.Len()) },
			func() int64 { return int64(s.relays.Len()) })
		if err != nil {
			return multierr.Append(err, sub.Close())
		}
		s.metric = instruments
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.node = newNode(s, sub)
	go s.node.run()

	s.started.Store(true)
	s.logger.Infof("coordination node (%s) started", s.config.nodeID)
	return nil
}

// Stop disconnects every relay connection, disposes every actor peer
// releasing the leases it holds and closes the subscription.
// The driver is left open.
func (s *System) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.CompareAndSwap(true, false) {
		return gerrors.ErrSystemNotStarted
	}

	s.logger.Infof("coordination node (%s) stopping...", s.config.nodeID)

	// relays first: the dispatch loop must still be running to receive acks
	eg := new(errgroup.Group)
	for _, relay := range s.relays.Values() {
		eg.Go(func() error {
			return relay.disconnect(ctx, false, ReasonSystemStopping)
		})
	}
	err := eg.Wait()

	eg = new(errgroup.Group)
	for _, p := range s.peers.Values() {
		eg.Go(func() error {
			p.dispose(ctx, true)
			return nil
		})
	}
	err = multierr.Append(err, eg.Wait())

	s.cancel()
	s.wg.Wait()
	err = multierr.Combine(err, s.node.stop(), s.metric.Unregister())

	s.logger.Infof("coordination node (%s) stopped", s.config.nodeID)
	return err
}

// CreateActor stores a new actor record under a random ID and returns the ID.
// The name must be registered.
func (s *System) CreateActor(ctx context.Context, name string, key []string) (string, error) {
	actorID := uuid.NewString()
	if err := s.CreateActorWithID(ctx, actorID, name, key); err != nil {
		return "", err
	}
	return actorID, nil
}

// CreateActorWithID stores an actor record under actorID.
// Creating the same record twice succeeds.
func (s *System) CreateActorWithID(ctx context.Context, actorID, name string, key []string) error {
	if strings.TrimSpace(actorID) == "" {
		return fmt.Errorf("actor id is required")
	}

	if _, err := s.registry.Get(name); err != nil {
		return err
	}

	record := driver.ActorRecord{ID: actorID, Name: name, Key: slices.Clone(key)}
	if err := s.driver.CreateActor(ctx, record); err != nil {
		return fmt.Errorf("failed to create actor (%s): %w", actorID, err)
	}
	return nil
}

// Connect opens a client connection on actorID and starts relaying it to the leader.
// sink receives the actor traffic, starting with the init frame.
// On failure the sink is disconnected with the error as reason.
func (s *System) Connect(ctx context.Context, actorID string, params []byte, sink Sink) (*RelayConnection, error) {
	relay, err := s.NewRelayConnection(actorID, params, sink)
	if err != nil {
		return nil, err
	}

	if err := relay.Start(ctx); err != nil {
		return nil, err
	}
	return relay, nil
}

// NewRelayConnection builds a relay connection without starting it
func (s *System) NewRelayConnection(actorID string, params []byte, sink Sink) (*RelayConnection, error) {
	if !s.started.Load() {
		return nil, gerrors.ErrSystemNotStarted
	}

	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	return newRelayConnection(s, actorID, params, sink), nil
}

// LocalActor returns the loaded actor when this process leads actorID
func (s *System) LocalActor(actorID string) (*actor.Instance, bool) {
	p, ok := s.peers.Get(actorID)
	if !ok {
		return nil, false
	}
	return p.leaderInstance()
}

// Relay returns the local relay connection with connID
func (s *System) Relay(connID string) (*RelayConnection, bool) {
	return s.relays.Get(connID)
}
