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

package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tochemey/coordinate/driver/drivertest"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

var redisAddr string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		_ = testcontainers.TerminateContainer(container)
		os.Exit(1)
	}

	redisAddr = endpoint
	code := m.Run()
	_ = testcontainers.TerminateContainer(container)
	os.Exit(code)
}

func newDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver(context.Background(), &Config{Addr: redisAddr}, WithLogger(log.DiscardLogger))
	require.NoError(t, err)
	return d
}

func TestDriverConformance(t *testing.T) {
	publisher := newDriver(t)
	subscriber := newDriver(t)
	defer func() {
		assert.NoError(t, publisher.Close())
		assert.NoError(t, subscriber.Close())
	}()

	drivertest.RunLeaseStore(t, publisher)
	drivertest.RunPubSub(t, publisher, subscriber)
}

func TestNewDriver(t *testing.T) {
	t.Run("With nil config", func(t *testing.T) {
		d, err := NewDriver(context.Background(), nil)
		require.Error(t, err)
		require.Nil(t, d)
	})
	t.Run("With invalid config", func(t *testing.T) {
		d, err := NewDriver(context.Background(), &Config{})
		require.Error(t, err)
		require.Nil(t, d)
	})
	t.Run("With unreachable server", func(t *testing.T) {
		d, err := NewDriver(context.Background(), &Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
		require.Error(t, err)
		require.Nil(t, d)
	})
}

func TestDriverClose(t *testing.T) {
	d := newDriver(t)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := d.GetActorLeader(context.Background(), "a1")
	require.ErrorIs(t, err, gerrors.ErrDriverClosed)
}

func TestSubscriptionClose(t *testing.T) {
	d := newDriver(t)
	defer func() { _ = d.Close() }()

	sub, err := d.Subscribe(context.Background(), "node-a")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}
