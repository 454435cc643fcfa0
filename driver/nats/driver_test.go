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

package nats

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/coordinate/driver/drivertest"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

func startNatsServer(t *testing.T) *natsserver.Server {
	t.Helper()

	serv, err := natsserver.NewServer(&natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	ready := make(chan bool)
	go func() {
		ready <- true
		serv.Start()
	}()
	<-ready

	if !serv.ReadyForConnections(2 * time.Second) {
		t.Fatalf("nats-io server failed to start")
	}

	return serv
}

func newDriver(t *testing.T, server *natsserver.Server) *Driver {
	t.Helper()
	d, err := NewDriver(context.Background(), &Config{URL: server.ClientURL()}, WithLogger(log.DiscardLogger))
	require.NoError(t, err)
	return d
}

func TestDriverConformance(t *testing.T) {
	server := startNatsServer(t)
	defer server.Shutdown()

	publisher := newDriver(t, server)
	subscriber := newDriver(t, server)
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
		config := &Config{
			URL:                "nats://127.0.0.1:1",
			ConnectTimeout:     100 * time.Millisecond,
			MaxConnectAttempts: 2,
		}
		d, err := NewDriver(context.Background(), config, WithLogger(log.DiscardLogger))
		require.Error(t, err)
		require.Nil(t, d)
	})
	t.Run("With existing bucket", func(t *testing.T) {
		server := startNatsServer(t)
		defer server.Shutdown()

		first := newDriver(t, server)
		second := newDriver(t, server)
		require.NoError(t, first.Close())
		require.NoError(t, second.Close())
	})
}

func TestDriverClose(t *testing.T) {
	server := startNatsServer(t)
	defer server.Shutdown()

	d := newDriver(t, server)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := d.GetActorLeader(context.Background(), "a1")
	require.ErrorIs(t, err, gerrors.ErrDriverClosed)
	_, err = d.Subscribe(context.Background(), "node-a")
	require.ErrorIs(t, err, gerrors.ErrDriverClosed)
}

func TestInvalidNodeID(t *testing.T) {
	server := startNatsServer(t)
	defer server.Shutdown()

	d := newDriver(t, server)
	defer func() { _ = d.Close() }()

	_, err := d.Subscribe(context.Background(), "node.*")
	require.Error(t, err)
	require.Error(t, d.Publish(context.Background(), "", []byte("x")))
}

func TestConfig(t *testing.T) {
	config := &Config{URL: "nats://127.0.0.1:4222"}
	config.Sanitize()
	require.NoError(t, config.Validate())
	assert.Equal(t, defaultBucket, config.Bucket)
	assert.Equal(t, defaultSubjectPrefix, config.SubjectPrefix)
	assert.Equal(t, defaultBufferSize, config.BufferSize)

	config.SubjectPrefix = "coordinate.>"
	require.Error(t, config.Validate())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, actorKey("room/1 with spaces"), actorKey("room/1 with spaces"))
	assert.NotEqual(t, leaseKey("a"), leaseKey("b"))
	assert.Regexp(t, `^lease\.[0-9a-f]{32}$`, leaseKey("a"))
}
