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

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/offvote/ballotpool"
	"github.com/blinklabs-io/offvote/database/types"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/verifier"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/blinklabs-io/offvote/voting"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func proposalParam(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	raw := r.PathValue("id")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		writeError(w, http.StatusBadRequest, "proposal id must be a 0x prefixed 32 byte hex string")
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// ballotErrorStatus maps ballot pool errors to HTTP status codes
func ballotErrorStatus(err error) int {
	var fullErr *ballotpool.BallotPoolFullError
	switch {
	case errors.As(err, &fullErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, ballotpool.ErrDuplicateBallot),
		errors.Is(err, ballotpool.ErrProposalClosed):
		return http.StatusConflict
	case errors.Is(err, ballotpool.ErrBadSignature),
		errors.Is(err, ballotpool.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, ballotpool.ErrInvalidChoice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Healthy(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			IsHealthy: false,
			Message:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

// handleAddBallot handles POST /v1/ballots
func (s *Server) handleAddBallot(w http.ResponseWriter, r *http.Request) {
	var req BallotRequest
	if !s.decode(w, r, &req) {
		return
	}
	ballot := ballotpool.Ballot{
		ProposalID: req.ProposalID,
		Member:     req.Member,
		Choice:     votestep.Choice(req.Choice),
		Timestamp:  req.Timestamp,
		Signature:  req.Signature,
	}
	if err := s.backend.AddBallot(r.Context(), ballot); err != nil {
		status := ballotErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error(
				"failed to add ballot",
				"proposal", req.ProposalID.Hex(),
				"member", req.Member.Hex(),
				"error", err,
			)
			writeError(w, status, "failed to add ballot")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	for _, b := range s.backend.Ballots(req.ProposalID) {
		if b.Member == req.Member {
			writeJSON(w, http.StatusCreated, newBallotResponse(b))
			return
		}
	}
	writeJSON(w, http.StatusCreated, newBallotResponse(ballot))
}

// handleListBallots handles GET /v1/proposals/{id}/ballots
func (s *Server) handleListBallots(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := proposalParam(w, r)
	if !ok {
		return
	}
	params, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ballots := s.backend.Ballots(proposalID)
	SetPaginationHeaders(w, len(ballots), params)
	page := Paginate(ballots, params)
	ret := make([]BallotResponse, 0, len(page))
	for _, b := range page {
		ret = append(ret, newBallotResponse(b))
	}
	writeJSON(w, http.StatusOK, ret)
}

// handleBuildResult handles POST /v1/proposals/{id}/result
func (s *Server) handleBuildResult(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := proposalParam(w, r)
	if !ok {
		return
	}
	res, err := s.backend.BuildResult(r.Context(), proposalID)
	if err != nil {
		var rbf *voting.ResultBuildFailed
		if errors.As(err, &rbf) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if errors.Is(err, ballotpool.ErrProposalClosed) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error(
			"failed to build result",
			"proposal", proposalID.Hex(),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to build result")
		return
	}
	writeJSON(w, http.StatusCreated, newResultResponse(res))
}

// handleGetResult handles GET /v1/proposals/{id}/result
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := proposalParam(w, r)
	if !ok {
		return
	}
	res, err := s.backend.Result(proposalID)
	if err != nil {
		if errors.Is(err, types.ErrResultNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error(
			"failed to get result",
			"proposal", proposalID.Hex(),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}

// handleGetReport handles GET /v1/proposals/{id}/report?votingStart=N
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := proposalParam(w, r)
	if !ok {
		return
	}
	votingStart, err := strconv.ParseUint(r.URL.Query().Get("votingStart"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid votingStart")
		return
	}
	report, err := s.backend.VerifyResult(r.Context(), proposalID, votingStart)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrResultNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, verifier.ErrBadRootSignature),
			errors.Is(err, verifier.ErrSubmitterNotMember),
			errors.Is(err, verifier.ErrIncompleteResult),
			errors.Is(err, verifier.ErrStepOutOfOrder),
			errors.Is(err, verifier.ErrInvalidProof):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.logger.Error(
				"failed to verify result",
				"proposal", proposalID.Hex(),
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "failed to verify result")
		}
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Report:   report,
		Accepted: report.Accepted(),
	})
}

// handleGetStep handles GET /v1/proposals/{id}/steps/{index} and returns
// the step with its leaf and Merkle proof
func (s *Server) handleGetStep(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := proposalParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "step index must be an unsigned integer")
		return
	}
	res, err := s.backend.Result(proposalID)
	if err == nil {
		var step *votestep.VoteStep
		step, err = s.backend.Step(proposalID, uint32(index))
		if err == nil {
			leaf, err := voting.StepLeaf(s.backend.Hasher(), *step, res.Domain)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to hash step")
				return
			}
			writeJSON(w, http.StatusOK, StepResponse{
				Index:      step.Index,
				Account:    step.Account,
				ProposalID: step.ProposalID,
				Choice:     Choice(step.Choice),
				Timestamp:  step.Timestamp,
				Signature:  step.Signature,
				NbYes:      step.NbYes.Dec(),
				NbNo:       step.NbNo.Dec(),
				Leaf:       leaf,
				Root:       res.Root,
				Proof:      step.Proof,
			})
			return
		}
	}
	if errors.Is(err, types.ErrResultNotFound) || errors.Is(err, types.ErrStepNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error(
		"failed to get step",
		"proposal", proposalID.Hex(),
		"index", index,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "failed to get step")
}

// handleListResults handles GET /v1/results
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.backend.Results(params.Count)
	if err != nil {
		s.logger.Error("failed to list results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	ret := make([]ResultResponse, 0, len(results))
	for i := range results {
		ret = append(ret, newResultResponse(&results[i]))
	}
	writeJSON(w, http.StatusOK, ret)
}

// handleHash handles POST /v1/hash and returns the digest a wallet would
// sign for the message
func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	var req HashRequest
	if !s.decode(w, r, &req) {
		return
	}
	canonical, err := typeddata.Canonicalize(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hasher := s.backend.Hasher()
	sep, err := hasher.DomainSeparator(req.Domain)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	structHash, err := hasher.HashStruct(canonical)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	typed, err := hasher.TypedData(canonical, req.Domain)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, HashResponse{
		Kind:            canonical.Kind(),
		DomainSeparator: sep,
		StructHash:      structHash,
		Digest:          typeddata.EncodeDigest(sep, structHash),
		TypedData:       typed,
	})
}
