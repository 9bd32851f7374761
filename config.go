// Copyright 2026 Blink Labs Software
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

package offvote

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/offvote/chainstate"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrMissingDao          = errors.New("no DAO address configured")
	ErrMissingChainID      = errors.New("no chain ID configured")
	ErrMissingVotingAction = errors.New("no voting adapter address configured")
	ErrMissingChainSource  = errors.New("no chain state reader or RPC URL configured")
	ErrNoSubmitter         = errors.New("no submitter key configured")
)

type Config struct {
	promRegistry     prometheus.Registerer
	promGatherer     prometheus.Gatherer
	logger           *slog.Logger
	chainState       chainstate.Reader
	submitter        signer.Signer
	dataDir          string
	rpcUrl           string
	listenAddress    string
	tlsCertFilePath  string
	tlsKeyFilePath   string
	submitterKeyFile string
	submitterKeyPass string
	dao              common.Address
	bank             common.Address
	votingAction     common.Address
	chainID          uint64
	// snapshot pins the block that members and weights are read at. Zero
	// reads the latest block.
	snapshot           uint64
	maxConnections     int
	ballotPoolCapacity int
	hasherCacheSize    int
	workers            int
	verifyBallots      bool
	tracing            bool
	tracingStdout      bool
	shutdownTimeout    time.Duration
}

func (s *Service) configValidate() error {
	if s.config.dao == (common.Address{}) {
		return ErrMissingDao
	}
	if s.config.chainID == 0 {
		return ErrMissingChainID
	}
	if s.config.votingAction == (common.Address{}) {
		return ErrMissingVotingAction
	}
	if s.config.chainState == nil && s.config.rpcUrl == "" {
		return ErrMissingChainSource
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the service config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new offvote config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		verifyBallots: true,
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

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegisterer would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithPrometheusGatherer specifies the metrics source served on the API's /metrics path. Metrics are not served by the API when unset
func WithPrometheusGatherer(gatherer prometheus.Gatherer) ConfigOptionFunc {
	return func(c *Config) {
		c.promGatherer = gatherer
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

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithChainState specifies the reader for DAO members, weights and configuration. It takes precedence over WithRpcUrl
func WithChainState(reader chainstate.Reader) ConfigOptionFunc {
	return func(c *Config) {
		c.chainState = reader
	}
}

// WithRpcUrl specifies the JSON-RPC endpoint used to read DAO state
func WithRpcUrl(url string) ConfigOptionFunc {
	return func(c *Config) {
		c.rpcUrl = url
	}
}

// WithDao specifies the DAO registry contract. It is also the verifying contract of the voting domain
func WithDao(dao common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.dao = dao
	}
}

// WithBank specifies the bank extension contract that holds voting weights
func WithBank(bank common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.bank = bank
	}
}

// WithVotingAction specifies the voting adapter address used as the domain action ID
func WithVotingAction(votingAction common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.votingAction = votingAction
	}
}

func WithChainID(chainID uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.chainID = chainID
	}
}

// WithSnapshot pins the block number members and weights are read at. The default is the latest block
func WithSnapshot(snapshot uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.snapshot = snapshot
	}
}

// WithSubmitter specifies the signer of result roots. It takes precedence over WithSubmitterKeyFile
func WithSubmitter(submitter signer.Signer) ConfigOptionFunc {
	return func(c *Config) {
		c.submitter = submitter
	}
}

// WithSubmitterKeyFile specifies the key file of the result submitter. The passphrase is only used for V3 keystore files
func WithSubmitterKeyFile(path string, passphrase string) ConfigOptionFunc {
	return func(c *Config) {
		c.submitterKeyFile = path
		c.submitterKeyPass = passphrase
	}
}

// WithListenAddress specifies the API listen address. An empty string disables the API server. The default is empty (disabled).
func WithListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.listenAddress = addr
	}
}

// WithTlsCertFilePath specifies the path to the TLS certificate for the API listener. This defaults to empty
func WithTlsCertFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsCertFilePath = path
	}
}

// WithTlsKeyFilePath specifies the path to the TLS key for the API listener. This defaults to empty
func WithTlsKeyFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsKeyFilePath = path
	}
}

// WithMaxConnections limits concurrent API connections. Zero means no limit
func WithMaxConnections(maxConnections int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxConnections = maxConnections
	}
}

// WithBallotPoolCapacity sets the number of ballots the pool holds
func WithBallotPoolCapacity(capacity int) ConfigOptionFunc {
	return func(c *Config) {
		c.ballotPoolCapacity = capacity
	}
}

// WithHasherCacheSize sets the number of domain separators kept in memory
func WithHasherCacheSize(size int) ConfigOptionFunc {
	return func(c *Config) {
		c.hasherCacheSize = size
	}
}

// WithWorkers bounds the goroutines used while building results. The default is GOMAXPROCS
func WithWorkers(workers int) ConfigOptionFunc {
	return func(c *Config) {
		c.workers = workers
	}
}

// WithVerifyBallots specifies whether every pooled ballot is checked again when a result is built. This is enabled by default
func WithVerifyBallots(verify bool) ConfigOptionFunc {
	return func(c *Config) {
		c.verifyBallots = verify
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
