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

package xsync

import (
	"sync"
)

// Lanes runs the tasks submitted under the same key one at a time, in
// submission order, while tasks of different keys run concurrently.
//
// A lane only holds a goroutine while it has queued work: the goroutine is
// spawned on the first submission and exits once the queue drains.
type Lanes struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

// NewLanes creates an empty Lanes
func NewLanes() *Lanes {
	return &Lanes{
		queues: make(map[string][]func()),
	}
}

// Go queues task on the lane of key
func (l *Lanes) Go(key string, task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	queue, busy := l.queues[key]
	l.queues[key] = append(queue, task)
	if busy {
		return
	}

	l.wg.Add(1)
	go l.drain(key)
}

// Len returns the number of lanes holding work
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// Wait blocks until every lane is drained.
// Tasks must not be submitted while Wait runs.
func (l *Lanes) Wait() {
	l.wg.Wait()
}

func (l *Lanes) drain(key string) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		queue := l.queues[key]
		if len(queue) == 0 {
			// the lane goes idle, the next Go starts a new goroutine
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		task := queue[0]
		queue[0] = nil
		l.queues[key] = queue[1:]
		l.mu.Unlock()

		task()
	}
}
