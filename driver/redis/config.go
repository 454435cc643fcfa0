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

package redis

import (
	"strings"
	"time"

	"github.com/tochemey/coordinate/internal/validation"
)

const (
	defaultKeyPrefix     = "coordinate"
	defaultChannelPrefix = "coordinate:node:"
	defaultBufferSize    = 1024
)

// Config holds configuration for the Redis driver.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string
	// Username used to authenticate, if any.
	Username string
	// Password used to authenticate, if any.
	Password string
	// DB is the database to select.
	DB int
	// KeyPrefix prefixes every key written by the driver.
	KeyPrefix string
	// ChannelPrefix prefixes the channel every node subscribes on.
	ChannelPrefix string
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// BufferSize is the capacity of a node subscription channel.
	BufferSize int
}

var _ validation.Validator = (*Config)(nil)

// Validate implements validation.Validator.
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Addr", c.Addr)).
		AddAssertion(c.DB >= 0, "DB must not be negative").
		AddAssertion(c.DialTimeout > 0, "DialTimeout must be greater than 0").
		AddAssertion(c.BufferSize > 0, "BufferSize must be greater than 0").
		Validate()
}

// Sanitize sets defaults for empty fields.
func (c *Config) Sanitize() {
	if strings.TrimSpace(c.KeyPrefix) == "" {
		c.KeyPrefix = defaultKeyPrefix
	}
	if strings.TrimSpace(c.ChannelPrefix) == "" {
		c.ChannelPrefix = defaultChannelPrefix
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
}
