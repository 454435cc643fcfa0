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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewCoordinateMetric(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	x, err := NewCoordinateMetric(meter, "node-a", func() int64 { return 1 }, func() int64 { return 2 })
	require.NoError(t, err)
	require.NotNil(t, x)

	ctx := context.Background()
	x.LeaseAcquired(ctx, "a1")
	x.LeaseLost(ctx, "a1")
	x.PublishRetried(ctx, "a1")
	x.AckTimedOut(ctx, "a1")
	assert.NoError(t, x.Unregister())
}

func TestNilCoordinateMetric(t *testing.T) {
	var x *CoordinateMetric
	ctx := context.Background()
	assert.NotPanics(t, func() {
		x.LeaseAcquired(ctx, "a1")
		x.LeaseLost(ctx, "a1")
		x.PublishRetried(ctx, "a1")
		x.AckTimedOut(ctx, "a1")
	})
	assert.NoError(t, x.Unregister())
}

func TestProvider(t *testing.T) {
	assert.NotNil(t, NewProvider().Meter())
	assert.NotNil(t, NewProviderFrom(noop.NewMeterProvider()).Meter())
}
