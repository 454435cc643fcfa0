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

package main

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config defines the server config
type Config struct {
	NodeID         string        `env:"NODE_ID"`
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	Driver         string        `env:"DRIVER" envDefault:"nats"`
	LeaseDuration  time.Duration `env:"LEASE_DURATION" envDefault:"3s"`
	RenewGrace     time.Duration `env:"RENEW_LEASE_GRACE" envDefault:"1500ms"`
	Metrics        bool          `env:"METRICS_ENABLED" envDefault:"false"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_PERIOD" envDefault:"10s"`
	ChatRooms      []string      `env:"CHAT_ROOMS" envSeparator:","`

	NatsURL       string   `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NatsBucket    string   `env:"NATS_BUCKET" envDefault:"coordinate"`
	RedisAddr     string   `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string   `env:"REDIS_PASSWORD"`
	EtcdEndpoints []string `env:"ETCD_ENDPOINTS" envSeparator:"," envDefault:"127.0.0.1:2379"`
	EtcdNamespace string   `env:"ETCD_NAMESPACE" envDefault:"coordinate"`
}

// getConfig returns the server config
func getConfig() (*Config, error) {
	config := &Config{}
	opts := env.Options{UseFieldNameByDefault: false}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return nil, err
	}
	config.Driver = strings.ToLower(strings.TrimSpace(config.Driver))
	return config, nil
}
