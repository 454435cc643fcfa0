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
	"strings"
	"time"

	"github.com/tochemey/coordinate/internal/validation"
)

const (
	defaultBucket        = "coordinate"
	defaultSubjectPrefix = "coordinate.node"
	defaultBufferSize    = 1024
)

// Config holds configuration for the NATS driver.
type Config struct {
	// URL is the NATS server URL (e.g. nats://127.0.0.1:4222).
	URL string
	// Bucket is the JetStream KeyValue bucket holding actor records and leases.
	// Defaults to coordinate.
	Bucket string
	// SubjectPrefix prefixes the subject every node subscribes on.
	// Defaults to coordinate.node.
	SubjectPrefix string
	// Timeout sets the timeout for JetStream operations.
	Timeout time.Duration
	// ConnectTimeout sets the timeout for establishing the NATS connection.
	ConnectTimeout time.Duration
	// MaxConnectAttempts bounds the connection attempts made on start.
	MaxConnectAttempts int
	// BufferSize is the capacity of a node subscription channel.
	BufferSize int
	// MaxCASAttempts bounds the compare-and-swap loop of a lease operation.
	MaxCASAttempts int
}

var _ validation.Validator = (*Config)(nil)

// Validate implements validation.Validator.
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion(strings.TrimSpace(c.URL) != "", "URL must not be empty").
		AddAssertion(c.Timeout > 0, "Timeout must be greater than 0").
		AddAssertion(c.ConnectTimeout > 0, "ConnectTimeout must be greater than 0").
		AddAssertion(c.MaxConnectAttempts > 0, "MaxConnectAttempts must be greater than 0").
		AddAssertion(c.BufferSize > 0, "BufferSize must be greater than 0").
		AddAssertion(c.MaxCASAttempts > 0, "MaxCASAttempts must be greater than 0").
		AddAssertion(!strings.ContainsAny(c.SubjectPrefix, "*> \t"), "SubjectPrefix must not contain wildcards or spaces").
		Validate()
}

// Sanitize sets defaults for empty fields.
func (c *Config) Sanitize() {
	if strings.TrimSpace(c.Bucket) == "" {
		c.Bucket = defaultBucket
	}
	if strings.TrimSpace(c.SubjectPrefix) == "" {
		c.SubjectPrefix = defaultSubjectPrefix
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxConnectAttempts == 0 {
		c.MaxConnectAttempts = 5
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxCASAttempts == 0 {
		c.MaxCASAttempts = 10
	}
}
