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

package etcd

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/tochemey/coordinate/internal/validation"
)

const defaultNamespace = "coordinate"

// Config holds configuration for the etcd lease store.
type Config struct {
	// Context is used while connecting. Defaults to context.Background().
	Context context.Context
	// Endpoints lists the etcd client endpoints.
	Endpoints []string
	// Namespace prefixes every key. Defaults to coordinate.
	Namespace string
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// Timeout bounds every etcd operation.
	Timeout time.Duration
	// TLS configures the client transport, nil means plaintext.
	TLS *tls.Config
	// Username used to authenticate, if any.
	Username string
	// Password used to authenticate, if any.
	Password string
	// MaxCASAttempts bounds the compare-and-swap loop of a lease operation.
	MaxCASAttempts int
}

var _ validation.Validator = (*Config)(nil)

// Validate implements validation.Validator.
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion(len(c.Endpoints) > 0, "Endpoints must not be empty").
		AddAssertion(c.DialTimeout > 0, "DialTimeout must be greater than 0").
		AddAssertion(c.Timeout > 0, "Timeout must be greater than 0").
		AddAssertion(c.MaxCASAttempts > 0, "MaxCASAttempts must be greater than 0").
		Validate()
}

// Sanitize sets defaults for empty fields.
func (c *Config) Sanitize() {
	if c.Context == nil {
		c.Context = context.Background()
	}
	if strings.TrimSpace(c.Namespace) == "" {
		c.Namespace = defaultNamespace
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxCASAttempts == 0 {
		c.MaxCASAttempts = 10
	}
}

func normalizeNamespace(namespaceValue string) string {
	trimmed := strings.TrimSpace(namespaceValue)
	if trimmed == "" {
		return defaultNamespace + "/"
	}
	if strings.HasSuffix(trimmed, "/") {
		return trimmed
	}
	return trimmed + "/"
}
