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

// Package offvote aggregates signed off-chain DAO ballots into signed,
// Merkle-committed vote results
package offvote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/offvote/api"
	"github.com/blinklabs-io/offvote/ballotpool"
	"github.com/blinklabs-io/offvote/chainstate"
	"github.com/blinklabs-io/offvote/database"
	"github.com/blinklabs-io/offvote/database/types"
	"github.com/blinklabs-io/offvote/event"
	"github.com/blinklabs-io/offvote/keystore"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/verifier"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/blinklabs-io/offvote/voting"
	"github.com/ethereum/go-ethereum/common"
)

const defaultShutdownTimeout = 30 * time.Second

type Service struct {
	chain         chainstate.Reader
	submitter     signer.Signer
	eventBus      *event.EventBus
	db            *database.Database
	hasher        *typeddata.Hasher
	signatures    *signer.Service
	binder        *typeddata.DomainBinder
	ballotPool    *ballotpool.BallotPool
	orchestrator  *voting.Orchestrator
	verifier      *verifier.Verifier
	apiServer     *api.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	startOnce     sync.Once
	shutdownOnce  sync.Once
	// builds of the same proposal must not interleave with their save
	buildMu sync.Mutex
}

func New(cfg Config) (*Service, error) {
	s := &Service{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	if err := s.configValidate(); err != nil {
		s.eventBus.Stop()
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s.config.logger = s.config.logger.With("component", "offvote")
	return s, nil
}

// Run starts the service and blocks until Stop is called
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.done
	return nil
}

// Start opens the stores, connects to the chain and starts the API server
// without blocking
func (s *Service) Start(ctx context.Context) error {
	err := errors.New("service already started")
	s.startOnce.Do(func() {
		err = s.start(ctx)
	})
	return err
}

func (s *Service) start(ctx context.Context) error {
	// Configure tracing
	if s.config.tracing {
		if err := s.setupTracing(ctx); err != nil {
			return err
		}
	}
	hasher, err := typeddata.NewHasher(s.config.hasherCacheSize)
	if err != nil {
		return err
	}
	s.hasher = hasher
	s.signatures = signer.New(hasher)
	// Load database
	db, err := database.New(database.Config{
		DataDir:      s.config.dataDir,
		Logger:       s.config.logger,
		PromRegistry: s.config.promRegistry,
	})
	if db == nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	s.shutdownFuncs = append(s.shutdownFuncs, func(context.Context) error {
		return db.Close()
	})
	if err != nil {
		var tsErr database.CommitTimestampError
		if !errors.As(err, &tsErr) {
			return fmt.Errorf("failed to open database: %w", err)
		}
		s.config.logger.Warn(
			"database initialization error, needs recovery",
			"error", err,
		)
		if err := db.RecoverCommitTimestamp(); err != nil {
			return fmt.Errorf("failed to recover database: %w", err)
		}
	}
	// Chain state
	if err := s.setupChain(ctx); err != nil {
		return err
	}
	// Result submitter
	if err := s.setupSubmitter(); err != nil {
		return err
	}
	s.binder = typeddata.NewDomainBinder(s.config.chainID, s.config.dao).
		WithAction(typeddata.ActionVoting, s.config.votingAction)
	// Ballot pool
	s.ballotPool, err = ballotpool.New(ballotpool.BallotPoolConfig{
		PromRegistry: s.config.promRegistry,
		Logger:       s.config.logger,
		EventBus:     s.eventBus,
		Database:     s.db,
		Chain:        s.chain,
		Signatures:   s.signatures,
		Binder:       s.binder,
		Capacity:     s.config.ballotPoolCapacity,
	})
	if err != nil {
		return fmt.Errorf("failed to load ballot pool: %w", err)
	}
	s.orchestrator, err = voting.NewOrchestrator(voting.OrchestratorConfig{
		Logger:        s.config.logger,
		PromRegistry:  s.config.promRegistry,
		Signatures:    s.signatures,
		Workers:       s.config.workers,
		VerifyBallots: s.config.verifyBallots,
	})
	if err != nil {
		return err
	}
	s.verifier, err = verifier.New(verifier.Config{
		Logger:       s.config.logger,
		State:        s.chain,
		Signatures:   s.signatures,
		ChainID:      s.config.chainID,
		VotingAction: s.config.votingAction,
	})
	if err != nil {
		return err
	}
	// API server
	if s.config.listenAddress != "" {
		s.apiServer = api.New(
			api.ServerConfig{
				Logger:          s.config.logger,
				Gatherer:        s.config.promGatherer,
				ListenAddress:   s.config.listenAddress,
				TlsCertFilePath: s.config.tlsCertFilePath,
				TlsKeyFilePath:  s.config.tlsKeyFilePath,
				MaxConnections:  s.config.maxConnections,
			},
			s,
		)
		if err := s.apiServer.Start(ctx); err != nil {
			return err
		}
	}
	s.config.logger.Info(
		"service started",
		"dao", s.config.dao.Hex(),
		"chainId", s.config.chainID,
		"ballots", s.ballotPool.Len(),
	)
	return nil
}

func (s *Service) setupChain(ctx context.Context) error {
	reader := s.config.chainState
	if reader == nil {
		rpc, err := chainstate.Dial(ctx, s.config.rpcUrl, chainstate.RPCConfig{
			Logger:      s.config.logger,
			Registry:    s.config.dao,
			Bank:        s.config.bank,
			Concurrency: s.config.workers,
		})
		if err != nil {
			return err
		}
		s.shutdownFuncs = append(s.shutdownFuncs, func(context.Context) error {
			rpc.Close()
			return nil
		})
		reader = rpc
	}
	if s.config.snapshot > 0 {
		reader = pinnedSnapshot{Reader: reader, snapshot: s.config.snapshot}
	}
	s.chain = reader
	return nil
}

func (s *Service) setupSubmitter() error {
	if s.config.submitter != nil {
		s.submitter = s.config.submitter
		return nil
	}
	if s.config.submitterKeyFile == "" {
		s.config.logger.Warn("no submitter key configured, results cannot be built")
		return nil
	}
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
		KeyPath:    s.config.submitterKeyFile,
		Passphrase: s.config.submitterKeyPass,
		Signatures: s.signatures,
		Logger:     s.config.logger,
	})
	if err := ks.LoadFromFile(); err != nil {
		return fmt.Errorf("failed to load submitter key: %w", err)
	}
	local, err := ks.Signer()
	if err != nil {
		return err
	}
	s.submitter = local
	return nil
}

// pinnedSnapshot reports a fixed snapshot block
type pinnedSnapshot struct {
	chainstate.Reader
	snapshot uint64
}

func (p pinnedSnapshot) Snapshot(context.Context) (uint64, error) {
	return p.snapshot, nil
}

func (s *Service) AddBallot(ctx context.Context, ballot ballotpool.Ballot) error {
	return s.ballotPool.AddBallot(ctx, ballot)
}

func (s *Service) Ballots(proposalID common.Hash) []ballotpool.Ballot {
	return s.ballotPool.Ballots(proposalID)
}

// BuildResult reads the DAO members and weights at the snapshot block,
// aligns the pooled ballots to them, then builds, signs and stores the
// result. The proposal stops accepting ballots when the build starts and
// stays closed once its result is stored. A proposal is built only once.
func (s *Service) BuildResult(ctx context.Context, proposalID common.Hash) (*database.StoredResult, error) {
	if s.submitter == nil {
		return nil, ErrNoSubmitter
	}
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if _, err := s.db.ResultGet(proposalID, s.config.dao); err == nil {
		return nil, fmt.Errorf("%w: %s", ballotpool.ErrProposalClosed, proposalID.Hex())
	} else if !errors.Is(err, types.ErrResultNotFound) {
		return nil, fmt.Errorf("read result: %w", err)
	}
	s.ballotPool.CloseProposal(proposalID)
	stored := false
	defer func() {
		if !stored {
			s.ballotPool.ReopenProposal(proposalID)
		}
	}()
	snapshot, err := s.chain.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	members, err := s.chain.Members(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("read members: %w", err)
	}
	weights, err := chainstate.Weights(ctx, s.chain, members, snapshot)
	if err != nil {
		return nil, err
	}
	entries, delegates, err := s.ballotPool.Entries(ctx, proposalID, members, weights)
	if err != nil {
		return nil, err
	}
	domain, err := s.binder.Bind(typeddata.KindVote)
	if err != nil {
		return nil, err
	}
	res, err := s.orchestrator.BuildResult(ctx, voting.Request{
		Submitter:  s.submitter,
		Entries:    entries,
		Delegates:  delegates,
		Domain:     domain,
		ProposalID: proposalID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.db.ResultSave(res, snapshot, nil); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}
	stored = true
	s.eventBus.Publish(
		event.ResultBuiltEventType,
		event.NewEvent(
			event.ResultBuiltEventType,
			event.ResultBuiltEvent{
				ProposalID: proposalID,
				Root:       res.Root,
				Submitter:  res.Submitter,
				NbYes:      res.LastStep.NbYes,
				NbNo:       res.LastStep.NbNo,
				Outcome:    res.Outcome.String(),
				Steps:      len(res.Steps),
			},
		),
	)
	s.config.logger.Info(
		"result built",
		"proposal", proposalID.Hex(),
		"root", res.Root.Hex(),
		"outcome", res.Outcome.String(),
		"snapshot", snapshot,
	)
	return s.db.ResultGet(proposalID, s.config.dao)
}

func (s *Service) Result(proposalID common.Hash) (*database.StoredResult, error) {
	return s.db.ResultGet(proposalID, s.config.dao)
}

func (s *Service) Step(proposalID common.Hash, index uint32) (*votestep.VoteStep, error) {
	return s.db.ResultStep(proposalID, s.config.dao, index)
}

func (s *Service) Results(limit int) ([]database.StoredResult, error) {
	return s.db.ResultList(limit)
}

// VerifyResult runs the stored result of a proposal through the verifier as
// a submission to the voting adapter
func (s *Service) VerifyResult(
	ctx context.Context,
	proposalID common.Hash,
	votingStart uint64,
) (*verifier.Report, error) {
	stored, err := s.db.ResultGet(proposalID, s.config.dao)
	if err != nil {
		return nil, err
	}
	return s.verifier.SubmitVoteResult(ctx, s.config.dao, proposalID, verifier.Submission{
		Steps:         stored.Steps,
		RootSignature: stored.RootSignature,
		Submitter:     stored.Submitter,
		Root:          stored.Root,
		Snapshot:      stored.Snapshot,
		VotingStart:   votingStart,
	})
}

func (s *Service) Hasher() *typeddata.Hasher {
	return s.hasher
}

// Healthy reports whether the chain state can be read
func (s *Service) Healthy(ctx context.Context) error {
	if s.chain == nil || s.db == nil {
		return errors.New("service not started")
	}
	if _, err := s.chain.Snapshot(ctx); err != nil {
		return fmt.Errorf("chain state unavailable: %w", err)
	}
	return nil
}

// EventBus returns the service event bus
func (s *Service) EventBus() *event.EventBus {
	return s.eventBus
}

// ApiAddr returns the bound API address, or an empty string when the API
// server is not running
func (s *Service) ApiAddr() string {
	if s.apiServer == nil {
		return ""
	}
	addr := s.apiServer.Addr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (s *Service) Stop() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Service) shutdown() error {
	shutdownTimeout := defaultShutdownTimeout
	if s.config.shutdownTimeout > 0 {
		shutdownTimeout = s.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	s.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	s.config.logger.Debug("shutdown phase 1: stopping new work")

	if s.apiServer != nil {
		if stopErr := s.apiServer.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Drain the ballot pool
	s.config.logger.Debug("shutdown phase 2: closing ballot pool")

	if s.ballotPool != nil {
		s.ballotPool.Close()
	}

	// Phase 3: Cleanup resources
	s.config.logger.Debug("shutdown phase 3: cleanup resources")

	// Registered in start order, run in reverse
	for i := len(s.shutdownFuncs) - 1; i >= 0; i-- {
		if fnErr := s.shutdownFuncs[i](ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	s.shutdownFuncs = nil

	if s.eventBus != nil {
		s.eventBus.Stop()
	}

	s.config.logger.Debug("graceful shutdown complete")
	close(s.done)
	return err
}
