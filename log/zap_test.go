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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapLevels(t *testing.T) {
	t.Run("With fake level falls back to debug", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(7, buffer)
		require.Equal(t, DebugLevel, logger.LogLevel())

		logger.Debug("test debug")
		msg, lvl := decodeEntry(t, buffer.Bytes())
		assert.Equal(t, "test debug", msg)
		assert.Equal(t, DebugLevel.String(), lvl)
	})
	t.Run("With info level drops debug entries", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)
		logger.Debug("hidden")
		assert.Empty(t, buffer.String())
		assert.False(t, logger.Enabled(DebugLevel))
		assert.True(t, logger.Enabled(ErrorLevel))
	})
	t.Run("With warn level", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(WarningLevel, buffer)
		logger.Warnf("lease lost for %s", "room-1")
		msg, lvl := decodeEntry(t, buffer.Bytes())
		assert.Equal(t, "lease lost for room-1", msg)
		assert.Equal(t, "warn", lvl)
		assert.Equal(t, WarningLevel, logger.LogLevel())
	})
}

func TestZapWith(t *testing.T) {
	t.Run("With adds structured fields", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)
		logger.With("actor", "room-1", "err", errors.New("boom")).Info("started")

		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(buffer.Bytes(), &m))
		require.Contains(t, m, "actor")
		require.Contains(t, m, "err")
	})
	t.Run("With empty keyValues returns same logger", func(t *testing.T) {
		logger := NewZap(InfoLevel, new(bytes.Buffer))
		assert.Equal(t, Logger(logger), logger.With())
	})
	t.Run("With odd keyValues uses _ for orphan", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)
		logger.With("a", 1, "orphan").Info("msg")
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(buffer.Bytes(), &m))
		require.Contains(t, m, "_")
	})
	t.Run("With DiscardLogger", func(t *testing.T) {
		logger := DiscardLogger.With("actor", "test")
		logger.Info("dropped")
		assert.NoError(t, DiscardLogger.Flush())
		assert.False(t, DiscardLogger.Enabled(InfoLevel))
		assert.False(t, logger.Enabled(ErrorLevel))
		assert.Equal(t, []io.Writer{io.Discard}, DiscardLogger.LogOutput())
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarningLevel, ParseLevel("warning"))
	assert.Equal(t, WarningLevel, ParseLevel("warn"))
	assert.Equal(t, InvalidLevel, ParseLevel("verbose"))
	assert.Equal(t, "", InvalidLevel.String())
}

func decodeEntry(t *testing.T, data []byte) (string, string) {
	t.Helper()
	var entry struct {
		Msg   string `json:"msg"`
		Level string `json:"level"`
	}
	require.NoError(t, json.Unmarshal(data, &entry))
	return entry.Msg, entry.Level
}
