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

// Package websocket exposes actors to clients over websockets.
//
// A client connects with GET <path>?actorId=<id>&params=<params>. Every binary
// frame it writes is relayed to the actor and every payload of the actor is
// written back as a binary frame, starting with the init frame. The socket is
// closed with the disconnect reason as close text.
package websocket

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/coordinate"
	"github.com/tochemey/coordinate/log"
)

const (
	defaultPath         = "/ws"
	defaultWriteTimeout = 5 * time.Second
	defaultReadLimit    = 1 << 20

	// ReasonClientGone is used when the client socket fails or closes
	ReasonClientGone = "client disconnected"
)

// Server is the websocket front of a coordinate.System.
// This is a wrapper around the gorilla websocket: https://github.com/gorilla/websocket
type Server struct {
	system *coordinate.System
	addr   string
	path   string
	logger log.Logger

	writeTimeout time.Duration
	readLimit    int64

	upgrader   gorilla.Upgrader
	httpServer *http.Server
	listener   net.Listener

	mu      sync.Mutex
	started *atomic.Bool
}

// NewServer creates a Server listening on addr once started
func NewServer(system *coordinate.System, addr string, opts ...Option) *Server {
	server := &Server{
		system:       system,
		addr:         addr,
		path:         defaultPath,
		logger:       log.DefaultLogger,
		writeTimeout: defaultWriteTimeout,
		readLimit:    defaultReadLimit,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		started: atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(server)
	}
	return server
}

// Handler returns the HTTP handler serving websocket clients
func (x *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(x.path, x.handleWebsocket)
	return mux
}

// Start listens on the server address and serves in the background
func (x *Server) Start() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.started.Load() {
		return nil
	}

	listener, err := net.Listen("tcp", x.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", x.addr)
	}

	x.listener = listener
	x.httpServer = &http.Server{
		Handler:           x.Handler(),
		ReadHeaderTimeout: x.writeTimeout,
	}

	go func() {
		if err := x.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			x.logger.Error(errors.Wrap(err, "websocket server stopped unexpectedly"))
		}
	}()

	x.started.Store(true)
	x.logger.Infof("websocket server listening on %s%s", listener.Addr(), x.path)
	return nil
}

// Addr returns the address the server listens on
func (x *Server) Addr() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.listener == nil {
		return x.addr
	}
	return x.listener.Addr().String()
}

// Stop stops accepting clients. Open sockets are closed when their relay
// connections are, usually through coordinate.System.Stop.
func (x *Server) Stop(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started.CompareAndSwap(true, false) {
		return nil
	}
	return x.httpServer.Shutdown(ctx)
}

// handleWebsocket handles websocket requests
func (x *Server) handleWebsocket(writer http.ResponseWriter, request *http.Request) {
	actorID := request.URL.Query().Get("actorId")
	if actorID == "" {
		http.Error(writer, "actorId is required", http.StatusBadRequest)
		return
	}

	conn, err := x.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		x.logger.Error(errors.Wrap(err, "failed to get the websocket client connection"))
		return
	}
	conn.SetReadLimit(x.readLimit)

	session := newSession(conn, x.writeTimeout, x.logger)
	params := []byte(request.URL.Query().Get("params"))

	// the request context ends with this handler
	ctx := context.WithoutCancel(request.Context())
	relay, err := x.system.Connect(ctx, actorID, params, session)
	if err != nil {
		x.logger.Warn(errors.Wrapf(err, "failed to connect client to actor (%s)", actorID))
		return
	}

	session.read(ctx, relay)
}

// enforce compilation error
var _ coordinate.Sink = (*session)(nil)

// session binds one client socket to its relay connection
type session struct {
	conn         *gorilla.Conn
	writeTimeout time.Duration
	logger       log.Logger

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
	closed  *atomic.Bool
}

func newSession(conn *gorilla.Conn, writeTimeout time.Duration, logger log.Logger) *session {
	return &session{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger,
		closed:       atomic.NewBool(false),
	}
}

// Send writes an actor payload to the client
func (s *session) Send(_ context.Context, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return errors.New("websocket session is closed")
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return errors.Wrap(err, "failed to set the write deadline")
	}

	if err := s.conn.WriteMessage(gorilla.BinaryMessage, payload); err != nil {
		return errors.Wrap(err, "failed to write message to the underlying connection")
	}
	return nil
}

// Disconnect closes the socket with reason as close text
func (s *session) Disconnect(_ context.Context, reason string) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	message := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, truncateReason(reason))
	deadline := time.Now().Add(s.writeTimeout)
	if err := s.conn.WriteControl(gorilla.CloseMessage, message, deadline); err != nil && !errors.Is(err, gorilla.ErrCloseSent) {
		s.logger.Debug(errors.Wrap(err, "failed to send the close frame"))
	}
	return s.conn.Close()
}

// read relays client frames until the socket fails
func (s *session) read(ctx context.Context, relay *coordinate.RelayConnection) {
	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				s.logger.Debug(errors.Wrap(err, "failed to read message"))
			}
			if err := relay.Disconnect(ctx, ReasonClientGone); err != nil {
				s.logger.Debug(errors.Wrap(err, "failed to close the relay connection"))
			}
			return
		}

		if kind != gorilla.BinaryMessage && kind != gorilla.TextMessage {
			continue
		}

		if err := relay.Send(ctx, payload); err != nil {
			s.logger.Warn(errors.Wrapf(err, "failed to relay message of connection (%s)", relay.ID()))
			if errors.Is(err, context.Canceled) || relay.IsDisconnected() {
				return
			}
		}
	}
}

// truncateReason fits reason in a close frame
func truncateReason(reason string) string {
	const maxReason = 123
	if len(reason) <= maxReason {
		return reason
	}
	return fmt.Sprintf("%s...", reason[:maxReason-3])
}
