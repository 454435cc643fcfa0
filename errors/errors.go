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

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrActorNotInitialized is returned when the lease store has no record for an actor ID.
	// The actor was never created; retrying does not help.
	ErrActorNotInitialized = errors.New("actor is not initialized")

	// ErrLeaseInTransfer is returned when no node currently holds the lease of an actor.
	// It is expected to resolve itself once a follower acquires the lease.
	ErrLeaseInTransfer = errors.New("actor lease is in transfer")

	// ErrAckTimeout is returned when a published envelope is not acknowledged in time.
	ErrAckTimeout = errors.New("message ack timed out")

	// ErrAckRequested is raised when an ack envelope asks to be acknowledged itself.
	ErrAckRequested = errors.New("ack envelope must not request an ack")

	// ErrConnTokenMismatch is raised when a relayed message carries the wrong connection token.
	ErrConnTokenMismatch = errors.New("connection token mismatch")

	// ErrActorNotRegistered is returned when no actor factory is registered under a name.
	ErrActorNotRegistered = errors.New("actor is not registered")

	// ErrActorAlreadyExists is returned when creating an actor record that exists with different data.
	ErrActorAlreadyExists = errors.New("actor already exists")

	// ErrInvalidHeartbeatInterval is returned when a computed heartbeat delay is not positive.
	ErrInvalidHeartbeatInterval = errors.New("invalid heartbeat interval")

	// ErrSystemNotStarted is returned when the system is used before Start or after Stop.
	ErrSystemNotStarted = errors.New("system is not started")

	// ErrSystemAlreadyStarted is returned when Start is called twice.
	ErrSystemAlreadyStarted = errors.New("system is already started")

	// ErrConnectionNotFound is returned when a connection ID is unknown.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionClosed is returned when using a connection after it was disconnected.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrPeerDisposed is returned when an actor peer was disposed while being used.
	ErrPeerDisposed = errors.New("actor peer is disposed")

	// ErrActorStopped is returned when calling into an actor instance that has been stopped.
	ErrActorStopped = errors.New("actor is stopped")

	// ErrInvalidEnvelope is returned when decoding or validating a malformed node envelope.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrDriverClosed is returned when a driver is used after Close.
	ErrDriverClosed = errors.New("driver is closed")

	// ErrInvalidActorName is returned when an actor name is empty.
	ErrInvalidActorName = errors.New("invalid actor name")
)

// ProtocolError flags a local defect or forged input in the node protocol.
// Operations failing with a ProtocolError must not be retried.
type ProtocolError struct {
	err error
}

// enforce compilation error
var _ error = (*ProtocolError)(nil)

// NewProtocolError returns an instance of ProtocolError
func NewProtocolError(err error) *ProtocolError {
	return &ProtocolError{
		err: fmt.Errorf("protocol error: %w", err),
	}
}

// Error implements the standard error interface
func (e *ProtocolError) Error() string {
	return e.err.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.err
}

// PanicError wraps a panic recovered from an actor callback
type PanicError struct {
	err error
}

// enforce compilation error
var _ error = (*PanicError)(nil)

// NewPanicError creates an instance of PanicError
func NewPanicError(err error) *PanicError {
	return &PanicError{err}
}

// Error implements the standard error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.err)
}

func (e *PanicError) Unwrap() error {
	return e.err
}

// IsProtocolError reports whether err carries a ProtocolError
func IsProtocolError(err error) bool {
	var perr *ProtocolError
	return errors.As(err, &perr)
}
