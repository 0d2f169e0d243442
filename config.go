// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chainrelay

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundlabs-io/chainrelay/chainclient"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	client           chainclient.Client
	chainID          *big.Int
	nodeURL          string
	dataDir          string
	apiListenAddr    string
	metricsPort      uint
	platformOperator common.Address
	operatorKeyHex   string
	sweepInterval    time.Duration
	sweepWorkers     int
	broadcastTimeout time.Duration
	shutdownTimeout  time.Duration
	tracing          bool
	tracingStdout    bool
}

func (r *Relay) configValidate() error {
	if r.config.chainID == nil || r.config.chainID.Sign() <= 0 {
		return errors.New("chain ID must be a positive integer")
	}
	if r.config.client == nil && r.config.nodeURL == "" {
		return errors.New("either a ledger client or a node URL is required")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the relay config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new chainrelay config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithChainID specifies the chain ID used for sender recovery from signed payloads
func WithChainID(chainID *big.Int) ConfigOptionFunc {
	return func(c *Config) {
		c.chainID = chainID
	}
}

// WithNodeURL specifies the JSON-RPC endpoint of the ledger node
func WithNodeURL(nodeURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.nodeURL = nodeURL
	}
}

// WithClient specifies the ledger client to use directly. This overrides any
// configured node URL and is mostly useful for testing
func WithClient(client chainclient.Client) ConfigOptionFunc {
	return func(c *Config) {
		c.client = client
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithApiListenAddress specifies the listen address for the HTTP API. An
// empty string disables the listener
func WithApiListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddr = addr
	}
}

// WithMetricsPort specifies the port for the prometheus metrics listener.
// Zero disables the listener
func WithMetricsPort(port uint) ConfigOptionFunc {
	return func(c *Config) {
		c.metricsPort = port
	}
}

// WithPlatformOperator specifies the privileged platform operator address
func WithPlatformOperator(addr common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.platformOperator = addr
	}
}

// WithOperatorKey specifies a hex-encoded operator private key; the address
// derived from it is privileged for submission
func WithOperatorKey(keyHex string) ConfigOptionFunc {
	return func(c *Config) {
		c.operatorKeyHex = keyHex
	}
}

// WithSweepInterval specifies the reconciliation sweep interval. The default is 5 seconds
func WithSweepInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.sweepInterval = interval
	}
}

// WithSweepWorkers specifies the receipt query concurrency cap for the reconciliation sweeper. The default is 5
func WithSweepWorkers(workers int) ConfigOptionFunc {
	return func(c *Config) {
		c.sweepWorkers = workers
	}
}

// WithBroadcastTimeout specifies the timeout for a single broadcast call to the ledger. The default is 30 seconds
func WithBroadcastTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.broadcastTimeout = timeout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}
