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

// Package voting assembles the signed vote result for a proposal: it
// turns aligned member ballots into tally steps, commits to them with a
// Merkle root and signs that root on behalf of the result submitter.
package voting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/blinklabs-io/offvote/merkle"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/blinklabs-io/offvote/voting"

type OrchestratorConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Signatures   *signer.Service
	// Workers bounds the goroutines used for ballot checks and leaf
	// hashing. Defaults to GOMAXPROCS.
	Workers int
	// VerifyBallots checks every cast ballot against its voter before
	// building steps
	VerifyBallots bool
}

type Orchestrator struct {
	config  OrchestratorConfig
	tracer  trace.Tracer
	metrics orchestratorMetrics
}

type orchestratorMetrics struct {
	resultsBuilt   prometheus.Counter
	buildFailures  *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	stepsCommitted prometheus.Counter
}

// Request is the input of a result build. Entries must already be aligned
// to the DAO member list.
type Request struct {
	Submitter signer.Signer
	Entries   []votestep.VoteEntry
	// Delegates optionally holds the address expected to have signed each
	// entry. When empty the entry's voter is used.
	Delegates  []common.Address
	Domain     typeddata.Domain
	ProposalID common.Hash
}

type Result struct {
	Steps         []votestep.VoteStep
	RootSignature []byte
	LastStep      votestep.VoteStep
	Domain        typeddata.Domain
	Submitter     common.Address
	ProposalID    common.Hash
	Root          common.Hash
	Outcome       Outcome
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Signatures == nil {
		return nil, ErrMissingSignatures
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "voting")
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	o := &Orchestrator{
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}
	o.initMetrics()
	return o, nil
}

func (o *Orchestrator) initMetrics() {
	// promauto.With(nil) creates unregistered collectors
	promautoFactory := promauto.With(o.config.PromRegistry)
	o.metrics.resultsBuilt = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "offvote_voting_results_built_total",
			Help: "total vote results built and signed",
		},
	)
	o.metrics.buildFailures = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offvote_voting_result_failures_total",
			Help: "total failed vote result builds by stage",
		},
		[]string{"stage"},
	)
	o.metrics.buildDuration = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offvote_voting_result_build_seconds",
			Help:    "time taken to build and sign a vote result",
			Buckets: prometheus.DefBuckets,
		},
	)
	o.metrics.stepsCommitted = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "offvote_voting_steps_committed_total",
			Help: "total vote steps committed to result roots",
		},
	)
}

// BuildResult builds the tally steps for the request, commits to them with a
// Merkle root and signs the root with the submitter. A partial result is
// never returned.
func (o *Orchestrator) BuildResult(ctx context.Context, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(
		ctx,
		"voting.BuildResult",
		trace.WithAttributes(
			attribute.String("proposal.id", req.ProposalID.Hex()),
			attribute.Int("members", len(req.Entries)),
		),
	)
	defer span.End()
	start := time.Now()
	res, err := o.buildResult(ctx, req)
	if err != nil {
		stage := string(StageValidate)
		var rbf *ResultBuildFailed
		if errors.As(err, &rbf) {
			stage = string(rbf.Stage)
		}
		o.metrics.buildFailures.WithLabelValues(stage).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		o.config.Logger.Warn(
			"failed to build vote result",
			"proposal", req.ProposalID.Hex(),
			"error", err,
		)
		return nil, err
	}
	o.metrics.buildDuration.Observe(time.Since(start).Seconds())
	o.metrics.resultsBuilt.Inc()
	o.metrics.stepsCommitted.Add(float64(len(res.Steps)))
	span.SetAttributes(
		attribute.String("result.root", res.Root.Hex()),
		attribute.String("result.outcome", res.Outcome.String()),
	)
	o.config.Logger.Info(
		"built vote result",
		"proposal", req.ProposalID.Hex(),
		"root", res.Root.Hex(),
		"outcome", res.Outcome.String(),
		"nbYes", res.LastStep.NbYes.Dec(),
		"nbNo", res.LastStep.NbNo.Dec(),
	)
	return res, nil
}

func (o *Orchestrator) buildResult(ctx context.Context, req Request) (*Result, error) {
	fail := func(stage Stage, index int, err error) error {
		return &ResultBuildFailed{
			ProposalID:  req.ProposalID,
			MemberIndex: index,
			Stage:       stage,
			Cause:       err,
		}
	}
	if req.Submitter == nil {
		return nil, fail(StageValidate, -1, ErrNilSubmitter)
	}
	if len(req.Entries) == 0 {
		return nil, fail(StageValidate, -1, ErrNoEntries)
	}
	if len(req.Delegates) > 0 && len(req.Delegates) != len(req.Entries) {
		return nil, fail(StageValidate, -1, ErrDelegateCount)
	}
	if o.config.VerifyBallots {
		if idx, err := o.verifyBallots(ctx, req); err != nil {
			return nil, fail(StageVerifyBallot, idx, err)
		}
	}
	steps, err := votestep.Build(req.ProposalID, req.Entries)
	if err != nil {
		return nil, fail(StageBuildSteps, -1, err)
	}
	leaves, idx, err := o.hashSteps(ctx, steps, req.Domain)
	if err != nil {
		return nil, fail(StageHashSteps, idx, err)
	}
	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, fail(StageBuildTree, -1, err)
	}
	for i := range steps {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, fail(StageBuildTree, i, err)
		}
		steps[i].Proof = proof
	}
	root := tree.Root()
	resultMsg, err := typeddata.Canonicalize(
		typeddata.ResultMessage{Root: root}.Message(),
	)
	if err != nil {
		return nil, fail(StageSignRoot, -1, err)
	}
	sig, err := req.Submitter.SignTypedData(ctx, resultMsg, req.Domain)
	if err != nil {
		return nil, fail(StageSignRoot, -1, err)
	}
	last := steps[len(steps)-1]
	return &Result{
		ProposalID:    req.ProposalID,
		Root:          root,
		Steps:         steps,
		RootSignature: sig,
		LastStep:      last.Clone(),
		Outcome:       OutcomeOf(last.NbYes, last.NbNo),
		Domain:        req.Domain,
		Submitter:     req.Submitter.Address(),
	}, nil
}

// verifyBallots checks every cast ballot concurrently. The lowest failing
// member index is reported regardless of completion order.
func (o *Orchestrator) verifyBallots(ctx context.Context, req Request) (int, error) {
	errs := make([]error, len(req.Entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i := range req.Entries {
		entry := req.Entries[i]
		if entry.Choice == votestep.ChoiceNone {
			continue
		}
		expected := entry.Voter
		if len(req.Delegates) > 0 {
			expected = req.Delegates[i]
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msg, err := typeddata.Canonicalize(entry.Message())
			if err != nil {
				errs[i] = err
				return nil
			}
			if !o.config.Signatures.Verify(msg, req.Domain, entry.Signature, expected) {
				errs[i] = ErrBallotSignature
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return -1, err
	}
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}

// hashSteps computes every leaf concurrently and joins before returning.
// Leaves are placed by step index, not completion order.
func (o *Orchestrator) hashSteps(
	ctx context.Context,
	steps []votestep.VoteStep,
	domain typeddata.Domain,
) ([]common.Hash, int, error) {
	for i, step := range steps {
		if int(step.Index) != i {
			return nil, i, ErrStepIndexMismatch
		}
	}
	leaves := make([]common.Hash, len(steps))
	errs := make([]error, len(steps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	hasher := o.config.Signatures.Hasher()
	for i := range steps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			leaf, err := StepLeaf(hasher, steps[i], domain)
			if err != nil {
				errs[i] = err
				return nil
			}
			leaves[i] = leaf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, -1, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, i, err
		}
	}
	return leaves, -1, nil
}

// StepLeaf returns the Merkle leaf for a step: the typed data digest of its
// vote-step message under the proposal's voting domain
func StepLeaf(
	hasher *typeddata.Hasher,
	step votestep.VoteStep,
	domain typeddata.Domain,
) (common.Hash, error) {
	return hasher.HashMessage(votestep.StepMessage(step), domain)
}
