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

package websocket

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/goleak"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/coordinate"
	"github.com/tochemey/coordinate/driver/memory"
	"github.com/tochemey/coordinate/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoActor struct{}

func (echoActor) PreStart(context.Context, *actor.Context) error { return nil }
func (echoActor) PrepareConnection(context.Context, []byte) error { return nil }
func (echoActor) OnConnect(context.Context, *actor.Connection) error { return nil }
func (echoActor) OnDisconnect(context.Context, *actor.Connection) {}
func (echoActor) PostStop(context.Context) error { return nil }
func (echoActor) Receive(ctx context.Context, conn *actor.Connection, payload []byte) error {
	if string(payload) == "leave" {
		return conn.Close(ctx, "see you")
	}
	return conn.Send(ctx, payload)
}

func startServer(t *testing.T) (*coordinate.System, *Server) {
	t.Helper()
	ctx := context.Background()

	registry := actor.NewRegistry()
	require.NoError(t, registry.Register("echo", func() actor.Actor { return echoActor{} }))

	hub := memory.NewHub()
	d := hub.Driver()
	system, err := coordinate.New(d, registry,
		coordinate.WithNodeID("node-a"),
		coordinate.WithLogger(log.DiscardLogger),
		coordinate.WithMessageAckTimeout(200*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, system.Start(ctx))

	ports := dynaport.Get(1)
	server := NewServer(system, fmt.Sprintf("127.0.0.1:%d", ports[0]), WithLogger(log.DiscardLogger))
	require.NoError(t, server.Start())

	t.Cleanup(func() {
		assert.NoError(t, system.Stop(ctx))
		assert.NoError(t, server.Stop(ctx))
		assert.NoError(t, d.Close())
	})
	return system, server
}

func dial(t *testing.T, server *Server, actorID, params string) *gorilla.Conn {
	t.Helper()
	query := url.Values{}
	query.Set("actorId", actorID)
	if params != "" {
		query.Set("params", params)
	}
	target := url.URL{Scheme: "ws", Host: server.Addr(), Path: defaultPath, RawQuery: query.Encode()}
	conn, _, err := gorilla.DefaultDialer.Dial(target.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readConnectionID(t *testing.T, conn *gorilla.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := actor.DecodeInitFrame(payload)
	require.NoError(t, err)
	return frame.ConnectionID
}

func TestServer(t *testing.T) {
	t.Run("With echo round trip", func(t *testing.T) {
		system, server := startServer(t)
		actorID, err := system.CreateActor(context.Background(), "echo", nil)
		require.NoError(t, err)

		conn := dial(t, server, actorID, "")
		connID := readConnectionID(t, conn)
		require.NotEmpty(t, connID)

		require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, []byte("hello")))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(payload))

		require.NoError(t, conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))
		require.Eventually(t, func() bool {
			_, ok := system.Relay(connID)
			return !ok
		}, 5*time.Second, 10*time.Millisecond)
	})
	t.Run("With actor closing the connection", func(t *testing.T) {
		system, server := startServer(t)
		actorID, err := system.CreateActor(context.Background(), "echo", nil)
		require.NoError(t, err)

		conn := dial(t, server, actorID, "")
		readConnectionID(t, conn)

		require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, []byte("leave")))
		_, _, err = conn.ReadMessage()
		var closeErr *gorilla.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, "see you", closeErr.Text)
	})
	t.Run("With unknown actor", func(t *testing.T) {
		_, server := startServer(t)
		conn := dial(t, server, "missing", "")

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := conn.ReadMessage()
		var closeErr *gorilla.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Contains(t, closeErr.Text, "not initialized")
	})
	t.Run("With missing actor id", func(t *testing.T) {
		_, server := startServer(t)
		target := url.URL{Scheme: "ws", Host: server.Addr(), Path: defaultPath}
		_, resp, err := gorilla.DefaultDialer.Dial(target.String(), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, 400, resp.StatusCode)
	})
}

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))
	long := strings.Repeat("x", 200)
	assert.Len(t, truncateReason(long), 123)
}
