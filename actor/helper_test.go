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

package actor

import (
	"context"
	"errors"
	"sync"
)

type sentMessage struct {
	connID  string
	payload []byte
}

// recordingDriver keeps what the instance sends to clients
type recordingDriver struct {
	mu          sync.Mutex
	messages    []sentMessage
	disconnects map[string]string
	sendErr     error
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{disconnects: make(map[string]string)}
}

func (d *recordingDriver) SendMessage(_ context.Context, connID string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	d.messages = append(d.messages, sentMessage{connID: connID, payload: payload})
	return nil
}

func (d *recordingDriver) Disconnect(_ context.Context, connID, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects[connID] = reason
	return nil
}

func (d *recordingDriver) sent() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage(nil), d.messages...)
}

func (d *recordingDriver) reason(connID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reason, ok := d.disconnects[connID]
	return reason, ok
}

// echoActor echoes every payload and records its lifecycle
type echoActor struct {
	mu           sync.Mutex
	actx         *Context
	started      int
	stopped      int
	connected    []string
	disconnected []string
	rejectParams bool
	rejectOnConn bool
	panicOnRecv  bool
}

func (a *echoActor) PreStart(_ context.Context, actx *Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actx = actx
	a.started++
	return nil
}

func (a *echoActor) PrepareConnection(_ context.Context, params []byte) error {
	if a.rejectParams && string(params) == "reject" {
		return errors.New("params rejected")
	}
	return nil
}

func (a *echoActor) OnConnect(_ context.Context, conn *Connection) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rejectOnConn {
		return errors.New("connection refused")
	}
	a.connected = append(a.connected, conn.ID())
	return nil
}

func (a *echoActor) Receive(ctx context.Context, conn *Connection, payload []byte) error {
	if a.panicOnRecv {
		panic("boom")
	}
	switch string(payload) {
	case "broadcast":
		return a.actx.Broadcast(ctx, []byte("all"))
	case "close":
		return conn.Close(ctx, "bye")
	default:
		return conn.Send(ctx, payload)
	}
}

func (a *echoActor) OnDisconnect(_ context.Context, conn *Connection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnected = append(a.disconnected, conn.ID())
}

func (a *echoActor) PostStop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	return nil
}
