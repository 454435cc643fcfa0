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
	"github.com/vmihailenco/msgpack/v5"
)

// InitFrame is the first payload a client receives on a connection.
// It signals that the leader accepted the connection.
type InitFrame struct {
	ConnectionID string `msgpack:"connectionId"`
}

// EncodeInitFrame encodes frame
func EncodeInitFrame(frame InitFrame) ([]byte, error) {
	return msgpack.Marshal(frame)
}

// DecodeInitFrame decodes a payload produced by EncodeInitFrame
func DecodeInitFrame(payload []byte) (*InitFrame, error) {
	frame := new(InitFrame)
	if err := msgpack.Unmarshal(payload, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
