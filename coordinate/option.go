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

	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/coordinate/log"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(config *Config)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Config)

// Apply applies the option to config
func (f OptionFunc) Apply(c *Config) {
	f(c)
}

// WithNodeID sets the ID of this process
func WithNodeID(nodeID string) Option {
	return OptionFunc(func(config *Config) {
		config.nodeID = nodeID
	})
}

// WithLeaseDuration sets how long a lease lasts per acquisition or renewal
func WithLeaseDuration(duration time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.leaseDuration = duration
	})
}

// WithRenewLeaseGrace sets how long before expiry a leader renews its lease
func WithRenewLeaseGrace(grace time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.renewLeaseGrace = grace
	})
}

// WithCheckLease sets the follower poll interval and its additive jitter
func WithCheckLease(interval, jitter time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.checkLeaseInterval = interval
		config.checkLeaseJitter = jitter
	})
}

// WithMessageAckTimeout sets how long a publish waits for its ack
func WithMessageAckTimeout(timeout time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.messageAckTimeout = timeout
	})
}

// WithPublishRetry sets the backoff bounds and the attempts of a publish to a leader
func WithPublishRetry(maxAttempts int, delay, maxDelay time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.publishMaxAttempts = maxAttempts
		config.publishRetryDelay = delay
		config.publishRetryMaxDelay = maxDelay
	})
}

// WithActorStopTimeout sets how long an actor may take to stop
func WithActorStopTimeout(timeout time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.actorStopTimeout = timeout
	})
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(config *Config) {
		config.logger = logger
	})
}

// WithMetrics enables the OpenTelemetry instruments.
// A nil provider means the global one.
func WithMetrics(provider metric.MeterProvider) Option {
	return OptionFunc(func(config *Config) {
		config.metricsEnabled = true
		config.meterProvider = provider
	})
}
