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

package main

import (
	"context"
	"strconv"
	"sync"

	"github.com/tochemey/coordinate/actor"
)

const (
	roomActor    = "room"
	counterActor = "counter"
)

func newRegistry() (*actor.Registry, error) {
	registry := actor.NewRegistry()
	if err := registry.Register(roomActor, func() actor.Actor { return new(Room) }); err != nil {
		return nil, err
	}
	if err := registry.Register(counterActor, func() actor.Actor { return new(Counter) }); err != nil {
		return nil, err
	}
	return registry, nil
}

// Room relays every message to all the clients in the room
type Room struct {
	actx *actor.Context
}

var _ actor.Actor = (*Room)(nil)

func (r *Room) PreStart(_ context.Context, actx *actor.Context) error {
	r.actx = actx
	actx.Logger().Infof("room (%s) opened", actx.ActorID())
	return nil
}

func (r *Room) PrepareConnection(context.Context, []byte) error {
	return nil
}

func (r *Room) OnConnect(ctx context.Context, conn *actor.Connection) error {
	return r.actx.Broadcast(ctx, []byte("joined: "+conn.ID()))
}

func (r *Room) Receive(ctx context.Context, _ *actor.Connection, payload []byte) error {
	return r.actx.Broadcast(ctx, payload)
}

func (r *Room) OnDisconnect(ctx context.Context, conn *actor.Connection) {
	_ = r.actx.Broadcast(ctx, []byte("left: "+conn.ID()))
}

func (r *Room) PostStop(context.Context) error {
	r.actx.Logger().Infof("room (%s) closed", r.actx.ActorID())
	return nil
}

// Counter answers every message with the number of messages received so far.
// The count lives in memory and restarts from zero on another leader.
type Counter struct {
	mu    sync.Mutex
	total int
}

var _ actor.Actor = (*Counter)(nil)

func (c *Counter) PreStart(context.Context, *actor.Context) error {
	return nil
}

func (c *Counter) PrepareConnection(context.Context, []byte) error {
	return nil
}

func (c *Counter) OnConnect(context.Context, *actor.Connection) error {
	return nil
}

func (c *Counter) Receive(ctx context.Context, conn *actor.Connection, _ []byte) error {
	c.mu.Lock()
	c.total++
	total := c.total
	c.mu.Unlock()
	return conn.Send(ctx, []byte(strconv.Itoa(total)))
}

func (c *Counter) OnDisconnect(context.Context, *actor.Connection) {}

func (c *Counter) PostStop(context.Context) error {
	return nil
}
