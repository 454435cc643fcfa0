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

package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CoordinateMetric groups the instruments of one coordination system.
//
// Instruments:
//   - coordinate.lease.acquired   (Int64Counter)
//   - coordinate.lease.lost       (Int64Counter)
//   - coordinate.publish.retries  (Int64Counter)
//   - coordinate.ack.timeouts     (Int64Counter)
//   - coordinate.peers            (Int64ObservableGauge)
//   - coordinate.relays           (Int64ObservableGauge)
//
// A nil *CoordinateMetric records nothing.
type CoordinateMetric struct {
	nodeID         string
	leaseAcquired  metric.Int64Counter
	leaseLost      metric.Int64Counter
	publishRetries metric.Int64Counter
	ackTimeouts    metric.Int64Counter
	peers          metric.Int64ObservableGauge
	relays         metric.Int64ObservableGauge
	registration   metric.Registration
}

// NewCoordinateMetric creates the instruments and observes peers and relays
// through the given callbacks.
func NewCoordinateMetric(meter metric.Meter, nodeID string, peers, relays func() int64) (*CoordinateMetric, error) {
	x := &CoordinateMetric{nodeID: nodeID}
	var err error

	if x.leaseAcquired, err = meter.Int64Counter(
		"coordinate.lease.acquired",
		metric.WithDescription("Total number of leases acquired by this node"),
	); err != nil {
		return nil, fmt.Errorf("failed to create leaseAcquired instrument, %w", err)
	}

	if x.leaseLost, err = meter.Int64Counter(
		"coordinate.lease.lost",
		metric.WithDescription("Total number of leases this node failed to renew"),
	); err != nil {
		return nil, fmt.Errorf("failed to create leaseLost instrument, %w", err)
	}

	if x.publishRetries, err = meter.Int64Counter(
		"coordinate.publish.retries",
		metric.WithDescription("Total number of publish-to-leader attempts that were retried"),
	); err != nil {
		return nil, fmt.Errorf("failed to create publishRetries instrument, %w", err)
	}

	if x.ackTimeouts, err = meter.Int64Counter(
		"coordinate.ack.timeouts",
		metric.WithDescription("Total number of envelopes not acknowledged in time"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ackTimeouts instrument, %w", err)
	}

	if x.peers, err = meter.Int64ObservableGauge(
		"coordinate.peers",
		metric.WithDescription("Number of actor peers on this node"),
	); err != nil {
		return nil, fmt.Errorf("failed to create peers instrument, %w", err)
	}

	if x.relays, err = meter.Int64ObservableGauge(
		"coordinate.relays",
		metric.WithDescription("Number of relay connections on this node"),
	); err != nil {
		return nil, fmt.Errorf("failed to create relays instrument, %w", err)
	}

	attrs := metric.WithAttributes(attribute.String("node", nodeID))
	x.registration, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(x.peers, peers(), attrs)
		observer.ObserveInt64(x.relays, relays(), attrs)
		return nil
	}, x.peers, x.relays)
	if err != nil {
		return nil, fmt.Errorf("failed to register callback, %w", err)
	}

	return x, nil
}

// LeaseAcquired records a lease won by this node
func (x *CoordinateMetric) LeaseAcquired(ctx context.Context, actorID string) {
	if x == nil {
		return
	}
	x.leaseAcquired.Add(ctx, 1, x.actorAttrs(actorID))
}

// LeaseLost records a lease this node failed to renew
func (x *CoordinateMetric) LeaseLost(ctx context.Context, actorID string) {
	if x == nil {
		return
	}
	x.leaseLost.Add(ctx, 1, x.actorAttrs(actorID))
}

// PublishRetried records a retried publish attempt
func (x *CoordinateMetric) PublishRetried(ctx context.Context, actorID string) {
	if x == nil {
		return
	}
	x.publishRetries.Add(ctx, 1, x.actorAttrs(actorID))
}

// AckTimedOut records an ack wait that timed out
func (x *CoordinateMetric) AckTimedOut(ctx context.Context, actorID string) {
	if x == nil {
		return
	}
	x.ackTimeouts.Add(ctx, 1, x.actorAttrs(actorID))
}

// Unregister stops observing peers and relays
func (x *CoordinateMetric) Unregister() error {
	if x == nil || x.registration == nil {
		return nil
	}
	return x.registration.Unregister()
}

func (x *CoordinateMetric) actorAttrs(actorID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("node", x.nodeID), attribute.String("actor", actorID))
}
