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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/offvote"
	"github.com/blinklabs-io/offvote/chainstate"
	"github.com/blinklabs-io/offvote/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StaticChain builds a chain state reader from the configured member list
func StaticChain(cfg *config.Config) (*chainstate.Static, error) {
	if len(cfg.Members) == 0 {
		return nil, errors.New("no static members configured")
	}
	chain := chainstate.NewStatic().SetSnapshot(cfg.Snapshot)
	if cfg.VotingPeriod > 0 {
		chain.SetConfiguration(chainstate.VotingPeriodKey, cfg.VotingPeriod)
	}
	for _, m := range cfg.Members {
		addr := common.HexToAddress(m.Address)
		chain.AddMember(addr, uint256.NewInt(m.Weight))
		if m.Delegate != "" {
			chain.SetDelegate(addr, common.HexToAddress(m.Delegate))
		}
	}
	return chain, nil
}

// ServiceOptions maps the loaded config onto service options. The API
// server is disabled when the API port is zero.
func ServiceOptions(cfg *config.Config, logger *slog.Logger) ([]offvote.ConfigOptionFunc, error) {
	if err := cfg.RequireDao(); err != nil {
		return nil, err
	}
	opts := []offvote.ConfigOptionFunc{
		offvote.WithLogger(logger),
		offvote.WithDatabasePath(cfg.DatabasePath),
		offvote.WithDao(common.HexToAddress(cfg.DaoAddress)),
		offvote.WithChainID(cfg.ChainId),
		offvote.WithVotingAction(common.HexToAddress(cfg.VotingAction)),
		offvote.WithSnapshot(cfg.Snapshot),
		offvote.WithSubmitterKeyFile(cfg.SubmitterKeyFile, cfg.SubmitterKeyPass),
		offvote.WithTlsCertFilePath(cfg.TlsCertFilePath),
		offvote.WithTlsKeyFilePath(cfg.TlsKeyFilePath),
		offvote.WithMaxConnections(cfg.MaxConnections),
		offvote.WithBallotPoolCapacity(cfg.BallotPoolCapacity),
		offvote.WithHasherCacheSize(cfg.HasherCacheSize),
		offvote.WithWorkers(cfg.Workers),
		offvote.WithVerifyBallots(cfg.VerifyBallots),
		offvote.WithTracing(cfg.Tracing),
		offvote.WithTracingStdout(cfg.TracingStdout),
		offvote.WithShutdownTimeout(cfg.ShutdownTimeoutDuration()),
	}
	if cfg.BankAddress != "" {
		opts = append(opts, offvote.WithBank(common.HexToAddress(cfg.BankAddress)))
	}
	if cfg.RpcUrl != "" {
		opts = append(opts, offvote.WithRpcUrl(cfg.RpcUrl))
	} else {
		chain, err := StaticChain(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, offvote.WithChainState(chain))
	}
	if cfg.ApiPort > 0 {
		opts = append(
			opts,
			offvote.WithListenAddress(
				fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ApiPort),
			),
		)
	}
	return opts, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	opts, err := ServiceOptions(cfg, logger)
	if err != nil {
		return err
	}
	shutdownTimeout := cfg.ShutdownTimeoutDuration()
	svc, err := offvote.New(
		offvote.NewConfig(
			append(
				opts,
				// Enable metrics with default prometheus registry
				offvote.WithPrometheusRegistry(prometheus.DefaultRegisterer),
			)...,
		),
	)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run service in goroutine
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		err := svc.Run(signalCtx)
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	shutdownMetrics := func() {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		shutdownMetrics()
		if err := svc.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		// Run only returns early when startup fails
		logger.Error("service error", "error", err)
		signalCtxStop()
		if stopErr := svc.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		shutdownMetrics()
		return err
	}
}
