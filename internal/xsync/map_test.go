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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Run("With Set Get Delete", func(t *testing.T) {
		m := NewMap[string, int]()
		m.Set("a", 1)
		val, ok := m.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, val)
		assert.Equal(t, 1, m.Len())
		assert.ElementsMatch(t, []string{"a"}, m.Keys())
		assert.ElementsMatch(t, []int{1}, m.Values())

		m.Delete("a")
		_, ok = m.Get("a")
		assert.False(t, ok)
	})
	t.Run("With LoadOrStore under contention", func(t *testing.T) {
		m := NewMap[string, *int]()
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			stored int
		)
		for i := range 50 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v := i
				if _, loaded := m.LoadOrStore("key", &v); !loaded {
					mu.Lock()
					stored++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, stored)
		assert.Equal(t, 1, m.Len())
	})
	t.Run("With DeleteIf", func(t *testing.T) {
		m := NewMap[string, int]()
		m.Set("a", 1)
		assert.False(t, m.DeleteIf("a", func(v int) bool { return v == 2 }))
		assert.False(t, m.DeleteIf("b", func(int) bool { return true }))
		assert.True(t, m.DeleteIf("a", func(v int) bool { return v == 1 }))
		assert.Zero(t, m.Len())
	})
}
