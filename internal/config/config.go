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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "offvote.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultConfigDir       = ".offvote"
	DefaultConfigFile      = "offvote.yaml"
	SystemConfigPath       = "/etc/offvote/offvote.yaml"
	EnvPrefix              = "offvote"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// StaticMember is a DAO member used when no JSON-RPC endpoint is configured
type StaticMember struct {
	Address  string `yaml:"address"`
	Weight   uint64 `yaml:"weight"`
	Delegate string `yaml:"delegate,omitempty"`
}

type tempConfig struct {
	Config *yaml.Node `yaml:"config,omitempty"`
}

type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	TlsCertFilePath string `yaml:"tlsCertFilePath" envconfig:"TLS_CERT_FILE_PATH"`
	TlsKeyFilePath  string `yaml:"tlsKeyFilePath"  envconfig:"TLS_KEY_FILE_PATH"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	// RpcUrl is the Ethereum JSON-RPC endpoint. Members are read from the
	// static member list when it is empty.
	RpcUrl       string `yaml:"rpcUrl"       envconfig:"RPC_URL"`
	DaoAddress   string `yaml:"daoAddress"   split_words:"true"`
	BankAddress  string `yaml:"bankAddress"  split_words:"true"`
	VotingAction string `yaml:"votingAction" split_words:"true"`
	// SubmitterKeyFile holds the key that signs result roots
	SubmitterKeyFile   string `yaml:"submitterKeyFile"   split_words:"true"`
	SubmitterKeyPass   string `yaml:"-"                  split_words:"true"`
	ChainId            uint64 `yaml:"chainId"            envconfig:"CHAIN_ID"`
	Snapshot           uint64 `yaml:"snapshot"`
	VotingPeriod       uint64 `yaml:"votingPeriod"       split_words:"true"`
	ApiPort            uint   `yaml:"apiPort"            split_words:"true"`
	MetricsPort        uint   `yaml:"metricsPort"        split_words:"true"`
	MaxConnections     int    `yaml:"maxConnections"     split_words:"true"`
	BallotPoolCapacity int    `yaml:"ballotPoolCapacity" split_words:"true"`
	HasherCacheSize    int    `yaml:"hasherCacheSize"    split_words:"true"`
	Workers            int    `yaml:"workers"`
	VerifyBallots      bool   `yaml:"verifyBallots"      split_words:"true"`
	Tracing            bool   `yaml:"tracing"`
	TracingStdout      bool   `yaml:"tracingStdout"      split_words:"true"`
	// Members and VotingPeriod describe the DAO when no JSON-RPC endpoint
	// is set. Members is ignored by envconfig.
	Members []StaticMember `yaml:"members" ignored:"true"`
}

// DefaultConfig returns the configuration used for values not set in the
// config file or environment
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:       DefaultConfigDir,
		BindAddr:           "0.0.0.0",
		ShutdownTimeout:    DefaultShutdownTimeout,
		ApiPort:            3190,
		MetricsPort:        12799,
		BallotPoolCapacity: 100_000,
		HasherCacheSize:    256,
		VerifyBallots:      true,
	}
}

var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig reads configFile over the defaults and applies OFFVOTE_*
// environment overrides. An empty configFile looks in the user config dir
// and then the system path.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		// Check for config file in this path: ~/.offvote/offvote.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, DefaultConfigDir, DefaultConfigFile)
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			if _, err := os.Stat(SystemConfigPath); err == nil {
				configFile = SystemConfigPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		var tempCfg tempConfig
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		// Settings may sit under a top-level config section
		if tempCfg.Config != nil {
			if err := tempCfg.Config.Decode(cfg); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks addresses and durations. The DAO and voting adapter are
// only required by commands that build or check results.
func (c *Config) Validate() error {
	for name, addr := range map[string]string{
		"daoAddress":   c.DaoAddress,
		"bankAddress":  c.BankAddress,
		"votingAction": c.VotingAction,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: %s is not a hex address: %q", ErrInvalidConfig, name, addr)
		}
	}
	for i, m := range c.Members {
		if !common.IsHexAddress(m.Address) {
			return fmt.Errorf("%w: member %d address %q", ErrInvalidConfig, i, m.Address)
		}
		if m.Delegate != "" && !common.IsHexAddress(m.Delegate) {
			return fmt.Errorf("%w: member %d delegate %q", ErrInvalidConfig, i, m.Delegate)
		}
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("%w: shutdownTimeout: %w", ErrInvalidConfig, err)
	}
	if c.ApiPort > 65535 || c.MetricsPort > 65535 {
		return fmt.Errorf("%w: port out of range", ErrInvalidConfig)
	}
	return nil
}

// RequireDao checks the settings needed to build or verify results
func (c *Config) RequireDao() error {
	if c.ChainId == 0 {
		return fmt.Errorf("%w: chainId is not set", ErrInvalidConfig)
	}
	if c.DaoAddress == "" {
		return fmt.Errorf("%w: daoAddress is not set", ErrInvalidConfig)
	}
	if c.VotingAction == "" {
		return fmt.Errorf("%w: votingAction is not set", ErrInvalidConfig)
	}
	if c.RpcUrl == "" && len(c.Members) == 0 {
		return fmt.Errorf("%w: neither rpcUrl nor members are set", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultShutdownTimeout)
	}
	return d
}
