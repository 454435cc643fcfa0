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

// Package ack keeps track of envelopes waiting for a delivery acknowledgement.
package ack

import (
	"context"
	"fmt"
	"sync"
	"time"

	gerrors "github.com/tochemey/coordinate/errors"
)

// Table maps message IDs to one-shot waiters.
//
// An entry lives only while Expect is blocked on it: it is removed when the
// ack arrives, when the wait times out and when the caller's context is done.
type Table struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewTable creates an empty Table
func NewTable() *Table {
	return &Table{
		pending: make(map[string]chan struct{}),
	}
}

// Expect registers messageID, calls send and blocks until the matching ack
// is resolved, ctx is done or timeout elapses.
// It returns ErrAckTimeout on timeout and the context error on abort.
func (t *Table) Expect(ctx context.Context, messageID string, timeout time.Duration, send func(context.Context) error) error {
	waiter, err := t.register(messageID)
	if err != nil {
		return err
	}
	defer t.remove(messageID)

	if err := send(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		// an ack resolved right before the abort still counts
		select {
		case <-waiter:
			return nil
		default:
		}
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("message (%s): %w", messageID, gerrors.ErrAckTimeout)
	}
}

// Resolve completes the waiter of messageID.
// It returns false when nobody is waiting, e.g. for a duplicate or late ack.
func (t *Table) Resolve(messageID string) bool {
	t.mu.Lock()
	waiter, ok := t.pending[messageID]
	if ok {
		delete(t.pending, messageID)
	}
	t.mu.Unlock()

	if ok {
		close(waiter)
	}
	return ok
}

// Len returns the number of pending waiters
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Has reports whether messageID has a pending waiter
func (t *Table) Has(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[messageID]
	return ok
}

func (t *Table) register(messageID string) (<-chan struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[messageID]; ok {
		return nil, fmt.Errorf("message (%s) is already awaiting an ack", messageID)
	}
	waiter := make(chan struct{})
	t.pending[messageID] = waiter
	return waiter, nil
}

func (t *Table) remove(messageID string) {
	t.mu.Lock()
	delete(t.pending, messageID)
	t.mu.Unlock()
}
