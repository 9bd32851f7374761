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

// Package ballotpool admits signed member ballots ahead of a result build.
// A ballot is checked against the member's delegate key at the current
// snapshot before it is kept.
package ballotpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/offvote/chainstate"
	"github.com/blinklabs-io/offvote/database"
	"github.com/blinklabs-io/offvote/database/models"
	"github.com/blinklabs-io/offvote/database/types"
	"github.com/blinklabs-io/offvote/event"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultCapacity = 100_000

var (
	ErrDuplicateBallot   = errors.New("member already voted on proposal")
	ErrNotMember         = errors.New("voter is not a DAO member")
	ErrBadSignature      = errors.New("ballot signature does not match delegate key")
	ErrInvalidChoice     = errors.New("ballot choice must be yes or no")
	ErrProposalClosed    = errors.New("proposal result already built")
	ErrMissingChain      = errors.New("no chain state reader configured")
	ErrMissingSignatures = errors.New("no signature service configured")
	ErrMissingBinder     = errors.New("no domain binder configured")
)

// Ballot is a signed ballot held by the pool. Voter is the address that
// produced the signature, which is the member or its delegate key.
type Ballot struct {
	AddedAt    time.Time
	Signature  []byte
	Timestamp  uint64
	Choice     votestep.Choice
	Member     common.Address
	Voter      common.Address
	ProposalID common.Hash
}

func (b Ballot) entry() votestep.VoteEntry {
	return votestep.VoteEntry{
		ProposalID: b.ProposalID,
		Choice:     b.Choice,
		Timestamp:  b.Timestamp,
		Signature:  slices.Clone(b.Signature),
		Voter:      b.Member,
	}
}

type BallotPoolConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	// Database persists admitted ballots. The pool is memory only without
	// one.
	Database   *database.Database
	Chain      chainstate.Reader
	Signatures *signer.Service
	Binder     *typeddata.DomainBinder
	Capacity   int
}

type BallotPool struct {
	config  BallotPoolConfig
	metrics struct {
		ballotsProcessed prometheus.Counter
		ballotsInPool    prometheus.Gauge
		ballotsRejected  *prometheus.CounterVec
	}
	logger     *slog.Logger
	eventBus   *event.EventBus
	ballots    []*Ballot
	index      map[ballotKey]*Ballot
	closed     map[common.Hash]struct{}
	subId      event.EventSubscriberId
	eventsDone chan struct{}
	sync.RWMutex
}

type ballotKey struct {
	proposal common.Hash
	member   common.Address
}

type BallotPoolFullError struct {
	CurrentSize int
	Capacity    int
}

func (e *BallotPoolFullError) Error() string {
	return fmt.Sprintf(
		"ballot pool full: current size=%d ballots, capacity=%d ballots",
		e.CurrentSize,
		e.Capacity,
	)
}

// New creates a ballot pool and loads any ballots kept in the database
func New(config BallotPoolConfig) (*BallotPool, error) {
	if config.Chain == nil {
		return nil, ErrMissingChain
	}
	if config.Signatures == nil {
		return nil, ErrMissingSignatures
	}
	if config.Binder == nil {
		return nil, ErrMissingBinder
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	p := &BallotPool{
		config:   config,
		eventBus: config.EventBus,
		index:    make(map[ballotKey]*Ballot),
		closed:   make(map[common.Hash]struct{}),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		p.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		p.logger = config.Logger
	}
	p.logger = p.logger.With("component", "ballotpool")
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	p.metrics.ballotsProcessed = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "offvote_ballotpool_ballots_processed_total",
			Help: "total ballots admitted to the pool",
		},
	)
	p.metrics.ballotsInPool = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "offvote_ballotpool_ballots",
		Help: "current count of pooled ballots",
	})
	p.metrics.ballotsRejected = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offvote_ballotpool_ballots_rejected_total",
			Help: "total ballots rejected by the pool",
		},
		[]string{"reason"},
	)
	if err := p.load(); err != nil {
		return nil, err
	}
	// Subscribe to result events
	if p.eventBus != nil {
		var ch <-chan event.Event
		p.subId, ch = p.eventBus.Subscribe(event.ResultBuiltEventType)
		p.eventsDone = make(chan struct{})
		go p.processResultEvents(ch)
	}
	return p, nil
}

func (p *BallotPool) load() error {
	if p.config.Database == nil {
		return nil
	}
	stored, err := p.config.Database.BallotsAll(nil)
	if err != nil {
		return fmt.Errorf("load ballots: %w", err)
	}
	for _, s := range stored {
		b := fromModel(s)
		p.ballots = append(p.ballots, b)
		p.index[ballotKey{b.ProposalID, b.Member}] = b
	}
	// Keep arrival order across restarts
	slices.SortStableFunc(p.ballots, func(a, b *Ballot) int {
		return a.AddedAt.Compare(b.AddedAt)
	})
	p.metrics.ballotsInPool.Set(float64(len(p.ballots)))
	// Proposals with a stored result stay closed across restarts
	results, err := p.config.Database.ResultList(0)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	for _, res := range results {
		if res.Domain.VerifyingContract == p.config.Binder.DAO {
			p.closed[res.ProposalID] = struct{}{}
		}
	}
	if len(p.ballots) > 0 {
		p.logger.Info(
			"loaded ballots",
			"count", len(p.ballots),
		)
	}
	return nil
}

// processResultEvents closes a proposal to new ballots once its result has
// been built
func (p *BallotPool) processResultEvents(ch <-chan event.Event) {
	defer close(p.eventsDone)
	for evt := range ch {
		data, ok := evt.Data.(event.ResultBuiltEvent)
		if !ok {
			continue
		}
		p.CloseProposal(data.ProposalID)
	}
}

// CloseProposal stops the pool from admitting ballots for a proposal. It
// returns false if the proposal was already closed.
func (p *BallotPool) CloseProposal(proposalID common.Hash) bool {
	p.Lock()
	defer p.Unlock()
	if _, ok := p.closed[proposalID]; ok {
		return false
	}
	p.closed[proposalID] = struct{}{}
	p.logger.Debug(
		"closed proposal to new ballots",
		"proposal", proposalID.Hex(),
	)
	return true
}

// ReopenProposal undoes CloseProposal after a failed result build
func (p *BallotPool) ReopenProposal(proposalID common.Hash) {
	p.Lock()
	delete(p.closed, proposalID)
	p.Unlock()
}

// Closed reports whether a proposal no longer admits ballots
func (p *BallotPool) Closed(proposalID common.Hash) bool {
	p.RLock()
	defer p.RUnlock()
	_, ok := p.closed[proposalID]
	return ok
}

// Close stops listening for result events
func (p *BallotPool) Close() {
	if p.eventBus == nil || p.eventsDone == nil {
		return
	}
	p.eventBus.Unsubscribe(event.ResultBuiltEventType, p.subId)
	<-p.eventsDone
}

// Verify checks a ballot against the DAO state at the current snapshot and
// returns the address that signed it
func (p *BallotPool) Verify(ctx context.Context, ballot Ballot) (common.Address, error) {
	if ballot.Choice != votestep.ChoiceYes && ballot.Choice != votestep.ChoiceNo {
		return common.Address{}, ErrInvalidChoice
	}
	snapshot, err := p.config.Chain.Snapshot(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("read snapshot: %w", err)
	}
	members, err := p.config.Chain.Members(ctx, snapshot)
	if err != nil {
		return common.Address{}, fmt.Errorf("read members: %w", err)
	}
	if _, err := chainstate.MemberIndex(members, ballot.Member); err != nil {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNotMember, ballot.Member.Hex())
	}
	delegate, err := p.config.Chain.DelegateKey(ctx, ballot.Member, snapshot)
	if err != nil {
		return common.Address{}, fmt.Errorf("read delegate key: %w", err)
	}
	if delegate == (common.Address{}) {
		delegate = ballot.Member
	}
	domain, err := p.config.Binder.Bind(typeddata.KindVote)
	if err != nil {
		return common.Address{}, err
	}
	msg, err := typeddata.Canonicalize(ballot.entry().Message())
	if err != nil {
		return common.Address{}, err
	}
	if !p.config.Signatures.Verify(msg, domain, ballot.Signature, delegate) {
		return common.Address{}, ErrBadSignature
	}
	return delegate, nil
}

// AddBallot verifies and admits a ballot. Only one ballot per member and
// proposal is kept.
func (p *BallotPool) AddBallot(ctx context.Context, ballot Ballot) error {
	voter, err := p.Verify(ctx, ballot)
	if err != nil {
		p.reject(err)
		return err
	}
	ballot.Voter = voter
	ballot.Signature = slices.Clone(ballot.Signature)
	ballot.AddedAt = time.Now()
	key := ballotKey{ballot.ProposalID, ballot.Member}
	p.Lock()
	defer p.Unlock()
	if _, ok := p.closed[ballot.ProposalID]; ok {
		p.reject(ErrProposalClosed)
		return ErrProposalClosed
	}
	if _, ok := p.index[key]; ok {
		p.reject(ErrDuplicateBallot)
		return ErrDuplicateBallot
	}
	// Enforce pool capacity
	if len(p.ballots) >= p.config.Capacity {
		err := &BallotPoolFullError{
			CurrentSize: len(p.ballots),
			Capacity:    p.config.Capacity,
		}
		p.reject(err)
		return err
	}
	if p.config.Database != nil {
		if err := p.config.Database.BallotSet(toModel(&ballot), nil); err != nil {
			return fmt.Errorf("persist ballot: %w", err)
		}
	}
	// Add ballot record
	p.ballots = append(p.ballots, &ballot)
	p.index[key] = &ballot
	p.logger.Debug(
		"added ballot",
		"proposal", ballot.ProposalID.Hex(),
		"member", ballot.Member.Hex(),
		"voter", ballot.Voter.Hex(),
		"choice", ballot.Choice.String(),
	)
	p.metrics.ballotsProcessed.Inc()
	p.metrics.ballotsInPool.Inc()
	// Generate event
	if p.eventBus != nil {
		p.eventBus.Publish(
			event.BallotAddedEventType,
			event.NewEvent(
				event.BallotAddedEventType,
				event.BallotAddedEvent{
					ProposalID: ballot.ProposalID,
					Member:     ballot.Member,
					Voter:      ballot.Voter,
					Choice:     uint32(ballot.Choice),
				},
			),
		)
	}
	return nil
}

func (p *BallotPool) reject(err error) {
	reason := "invalid"
	var fullErr *BallotPoolFullError
	switch {
	case errors.As(err, &fullErr):
		reason = "full"
	case errors.Is(err, ErrDuplicateBallot):
		reason = "duplicate"
	case errors.Is(err, ErrProposalClosed):
		reason = "closed"
	case errors.Is(err, ErrBadSignature):
		reason = "signature"
	case errors.Is(err, ErrNotMember):
		reason = "not-member"
	}
	p.metrics.ballotsRejected.WithLabelValues(reason).Inc()
}

func (p *BallotPool) GetBallot(proposalID common.Hash, member common.Address) (Ballot, bool) {
	p.RLock()
	defer p.RUnlock()
	ret, ok := p.index[ballotKey{proposalID, member}]
	if !ok {
		return Ballot{}, false
	}
	return *ret, true
}

// Ballots returns the ballots of a proposal in arrival order
func (p *BallotPool) Ballots(proposalID common.Hash) []Ballot {
	p.RLock()
	defer p.RUnlock()
	var ret []Ballot
	for _, b := range p.ballots {
		if b.ProposalID == proposalID {
			ret = append(ret, *b)
		}
	}
	return ret
}

func (p *BallotPool) Len() int {
	p.RLock()
	defer p.RUnlock()
	return len(p.ballots)
}

// RemoveBallot drops a ballot from the pool and the database
func (p *BallotPool) RemoveBallot(proposalID common.Hash, member common.Address, reason string) bool {
	p.Lock()
	defer p.Unlock()
	idx := slices.IndexFunc(p.ballots, func(b *Ballot) bool {
		return b.ProposalID == proposalID && b.Member == member
	})
	if idx < 0 {
		return false
	}
	if p.config.Database != nil {
		if err := p.config.Database.BallotDelete(proposalID, member, nil); err != nil &&
			!errors.Is(err, types.ErrBallotNotFound) {
			p.logger.Error(
				"failed to delete ballot",
				"proposal", proposalID.Hex(),
				"member", member.Hex(),
				"error", err,
			)
		}
	}
	p.ballots = slices.Delete(p.ballots, idx, idx+1)
	delete(p.index, ballotKey{proposalID, member})
	p.metrics.ballotsInPool.Dec()
	p.logger.Debug(
		"removed ballot",
		"proposal", proposalID.Hex(),
		"member", member.Hex(),
		"reason", reason,
	)
	if p.eventBus != nil {
		p.eventBus.Publish(
			event.BallotRemovedEventType,
			event.NewEvent(
				event.BallotRemovedEventType,
				event.BallotRemovedEvent{
					ProposalID: proposalID,
					Member:     member,
					Reason:     reason,
				},
			),
		)
	}
	return true
}

// Entries aligns the pooled ballots of a proposal to the member list. The
// second return value holds the address expected to have signed each
// entry.
func (p *BallotPool) Entries(
	_ context.Context,
	proposalID common.Hash,
	members []common.Address,
	weights []*uint256.Int,
) ([]votestep.VoteEntry, []common.Address, error) {
	p.RLock()
	cast := make(map[common.Address]votestep.VoteEntry)
	signers := make(map[common.Address]common.Address)
	for _, b := range p.ballots {
		if b.ProposalID != proposalID {
			continue
		}
		cast[b.Member] = b.entry()
		signers[b.Member] = b.Voter
	}
	p.RUnlock()
	entries, err := votestep.Align(proposalID, members, weights, cast)
	if err != nil {
		return nil, nil, err
	}
	delegates := make([]common.Address, len(members))
	for i, m := range members {
		delegates[i] = m
		if s, ok := signers[m]; ok && entries[i].Choice != votestep.ChoiceNone {
			delegates[i] = s
		}
	}
	return entries, delegates, nil
}

func toModel(b *Ballot) *models.Ballot {
	return &models.Ballot{
		ProposalID: b.ProposalID,
		Member:     b.Member,
		Voter:      b.Voter,
		Choice:     uint32(b.Choice),
		Timestamp:  b.Timestamp,
		Signature:  b.Signature,
		AddedAt:    b.AddedAt.UnixMilli(),
	}
}

func fromModel(m models.Ballot) *Ballot {
	return &Ballot{
		ProposalID: m.ProposalID,
		Member:     m.Member,
		Voter:      m.Voter,
		Choice:     votestep.Choice(m.Choice),
		Timestamp:  m.Timestamp,
		Signature:  m.Signature,
		AddedAt:    time.UnixMilli(m.AddedAt),
	}
}
