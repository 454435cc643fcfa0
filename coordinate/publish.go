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

package coordinate

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowchartsman/retry"
	"github.com/google/uuid"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/envelope"
)

// publishToNode sends env to nodeID once, without waiting for an ack
func (s *System) publishToNode(ctx context.Context, nodeID string, env *envelope.Envelope) error {
	payload, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return s.driver.Publish(ctx, nodeID, payload)
}

// publishToLeader delivers body to the current leader of actorID and waits
// for its ack. The leader is looked up again on every attempt so that a
// publish started before a leadership change lands on the new leader.
//
// All attempts carry the same message ID: the leader may process the body
// more than once when an ack is lost.
func (s *System) publishToLeader(ctx context.Context, actorID string, body envelope.Body) error {
	messageID := uuid.NewString()
	payload, err := envelope.Encode(&envelope.Envelope{
		SenderNodeID: s.config.nodeID,
		MessageID:    messageID,
		Body:         body,
	})
	if err != nil {
		return err
	}

	var (
		attempts  int
		permanent error
		lastErr   error
	)

	// canceled to end the retries on a permanent error
	retryCtx, stop := context.WithCancel(ctx)
	defer stop()

	retrier := retry.NewRetrier(s.config.publishMaxAttempts, s.config.publishRetryDelay, s.config.publishRetryMaxDelay)
	err = retrier.RunContext(retryCtx, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			s.metric.PublishRetried(ctx, actorID)
		}

		leader, err := s.driver.GetActorLeader(ctx, actorID)
		if err != nil {
			lastErr = fmt.Errorf("failed to look up leader of actor (%s): %w", actorID, err)
			return lastErr
		}

		if !leader.Exists {
			permanent = fmt.Errorf("actor (%s): %w", actorID, gerrors.ErrActorNotInitialized)
			stop()
			return permanent
		}

		if leader.LeaderNodeID == "" {
			lastErr = fmt.Errorf("actor (%s): %w", actorID, gerrors.ErrLeaseInTransfer)
			return lastErr
		}

		lastErr = s.acks.Expect(ctx, messageID, s.config.messageAckTimeout, func(ctx context.Context) error {
			return s.driver.Publish(ctx, leader.LeaderNodeID, payload)
		})
		if errors.Is(lastErr, gerrors.ErrAckTimeout) {
			s.metric.AckTimedOut(ctx, actorID)
			s.logger.Debugf("no ack from node (%s) for %s of actor (%s)", leader.LeaderNodeID, body.Kind(), actorID)
		}
		return lastErr
	})

	switch {
	case permanent != nil:
		return permanent
	case err == nil:
		return nil
	case lastErr != nil && ctx.Err() == nil:
		return lastErr
	default:
		return err
	}
}
