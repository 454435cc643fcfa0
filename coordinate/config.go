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
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/coordinate/internal/validation"
	"github.com/tochemey/coordinate/log"
)

const (
	DefaultLeaseDuration        = 3 * time.Second
	DefaultRenewLeaseGrace      = 1500 * time.Millisecond
	DefaultCheckLeaseInterval   = time.Second
	DefaultCheckLeaseJitter     = 500 * time.Millisecond
	DefaultMessageAckTimeout    = time.Second
	DefaultPublishRetryDelay    = time.Second
	DefaultPublishRetryMaxDelay = 8 * time.Second
	DefaultPublishMaxAttempts   = 5
	DefaultActorStopTimeout     = 10 * time.Second
)

// Config holds the settings of a System
type Config struct {
	// Specifies the ID of this process in the cluster.
	// It defaults to a random UUID
	nodeID string
	// Specifies the lifetime of a lease per acquisition or renewal
	leaseDuration time.Duration
	// Specifies how long before the lease expiry the leader renews it
	renewLeaseGrace time.Duration
	// Specifies the base interval at which followers try to acquire the lease
	checkLeaseInterval time.Duration
	// Specifies the maximum random delay added to checkLeaseInterval
	checkLeaseJitter time.Duration
	// Specifies how long to wait for an ack after publishing to a leader
	messageAckTimeout time.Duration
	// Specifies the first backoff of a publish retry
	publishRetryDelay time.Duration
	// Specifies the backoff cap of publish retries
	publishRetryMaxDelay time.Duration
	// Specifies the number of attempts per publish
	publishMaxAttempts int
	// Specifies how long an actor may take to stop when its peer is disposed
	actorStopTimeout time.Duration
	// Specifies the logger
	logger log.Logger
	// Specifies whether OpenTelemetry instruments are recorded
	metricsEnabled bool
	// Specifies the meter provider used when metrics are enabled.
	// The global provider is used when nil
	meterProvider metric.MeterProvider
}

var _ validation.Validator = (*Config)(nil)

// NewConfig creates a Config with defaults, applies options and validates the result
func NewConfig(options ...Option) (*Config, error) {
	config := &Config{
		nodeID:               uuid.NewString(),
		leaseDuration:        DefaultLeaseDuration,
		renewLeaseGrace:      DefaultRenewLeaseGrace,
		checkLeaseInterval:   DefaultCheckLeaseInterval,
		checkLeaseJitter:     DefaultCheckLeaseJitter,
		messageAckTimeout:    DefaultMessageAckTimeout,
		publishRetryDelay:    DefaultPublishRetryDelay,
		publishRetryMaxDelay: DefaultPublishRetryMaxDelay,
		publishMaxAttempts:   DefaultPublishMaxAttempts,
		actorStopTimeout:     DefaultActorStopTimeout,
		logger:               log.DefaultLogger,
	}

	for _, opt := range options {
		opt.Apply(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration.
// A renewal grace that leaves the leader no time before expiry is rejected.
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("NodeID", c.nodeID)).
		AddValidator(validation.NewPositiveDurationValidator("LeaseDuration", c.leaseDuration)).
		AddValidator(validation.NewPositiveDurationValidator("RenewLeaseGrace", c.renewLeaseGrace)).
		AddAssertion(c.renewLeaseGrace < c.leaseDuration, "RenewLeaseGrace must be shorter than LeaseDuration").
		AddValidator(validation.NewPositiveDurationValidator("CheckLeaseInterval", c.checkLeaseInterval)).
		AddAssertion(c.checkLeaseJitter >= 0, "CheckLeaseJitter must not be negative").
		AddValidator(validation.NewPositiveDurationValidator("MessageAckTimeout", c.messageAckTimeout)).
		AddValidator(validation.NewPositiveDurationValidator("PublishRetryDelay", c.publishRetryDelay)).
		AddAssertion(c.publishRetryMaxDelay >= c.publishRetryDelay, "PublishRetryMaxDelay must not be shorter than PublishRetryDelay").
		AddAssertion(c.publishMaxAttempts > 0, "PublishMaxAttempts must be greater than zero").
		AddValidator(validation.NewPositiveDurationValidator("ActorStopTimeout", c.actorStopTimeout)).
		AddAssertion(c.logger != nil, "Logger is required").
		Validate()
}

// NodeID returns the node ID
func (c *Config) NodeID() string {
	return c.nodeID
}

// LeaseDuration returns the lease duration
func (c *Config) LeaseDuration() time.Duration {
	return c.leaseDuration
}

// RenewLeaseGrace returns the renewal grace
func (c *Config) RenewLeaseGrace() time.Duration {
	return c.renewLeaseGrace
}

// CheckLeaseInterval returns the follower poll interval
func (c *Config) CheckLeaseInterval() time.Duration {
	return c.checkLeaseInterval
}

// CheckLeaseJitter returns the follower poll jitter
func (c *Config) CheckLeaseJitter() time.Duration {
	return c.checkLeaseJitter
}

// MessageAckTimeout returns the ack timeout
func (c *Config) MessageAckTimeout() time.Duration {
	return c.messageAckTimeout
}

// PublishRetryDelay returns the first publish backoff
func (c *Config) PublishRetryDelay() time.Duration {
	return c.publishRetryDelay
}

// PublishRetryMaxDelay returns the publish backoff cap
func (c *Config) PublishRetryMaxDelay() time.Duration {
	return c.publishRetryMaxDelay
}

// PublishMaxAttempts returns the attempts per publish
func (c *Config) PublishMaxAttempts() int {
	return c.publishMaxAttempts
}

// ActorStopTimeout returns the actor stop timeout
func (c *Config) ActorStopTimeout() time.Duration {
	return c.actorStopTimeout
}

// Logger returns the logger
func (c *Config) Logger() log.Logger {
	return c.logger
}

// MetricsEnabled reports whether metrics are recorded
func (c *Config) MetricsEnabled() bool {
	return c.metricsEnabled
}
