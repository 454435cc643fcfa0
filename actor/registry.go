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
	"fmt"
	"slices"
	"strings"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/xsync"
)

// Registry maps actor names to their factories
type Registry struct {
	factories *xsync.Map[string, Factory]
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{factories: xsync.NewMap[string, Factory]()}
}

// Register adds factory under name. Registering a name twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	if strings.TrimSpace(name) == "" {
		return gerrors.ErrInvalidActorName
	}
	if factory == nil {
		return fmt.Errorf("actor (%s): factory is nil", name)
	}
	if _, loaded := r.factories.LoadOrStore(name, factory); loaded {
		return fmt.Errorf("actor (%s) is already registered", name)
	}
	return nil
}

// Get returns the factory registered under name
func (r *Registry) Get(name string) (Factory, error) {
	factory, ok := r.factories.Get(name)
	if !ok {
		return nil, fmt.Errorf("actor (%s): %w", name, gerrors.ErrActorNotRegistered)
	}
	return factory, nil
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	names := r.factories.Keys()
	slices.Sort(names)
	return names
}
