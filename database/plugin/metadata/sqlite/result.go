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

package sqlite

import (
	"errors"

	"github.com/blinklabs-io/offvote/database/models"
	"github.com/blinklabs-io/offvote/database/types"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// SaveResult stores a result with its steps on txn, replacing any earlier
// result for the same proposal and DAO
func (d *ResultStoreSqlite) SaveResult(txn *gorm.DB, result *models.Result) error {
	if txn == nil {
		txn = d.db
	}
	var existing models.Result
	err := txn.
		Where("proposal_id = ? AND dao = ?", result.ProposalID, result.Dao).
		First(&existing).Error
	switch {
	case err == nil:
		if err := txn.Where("result_id = ?", existing.ID).Delete(&models.Step{}).Error; err != nil {
			return err
		}
		if err := txn.Delete(&existing).Error; err != nil {
			return err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	if err := txn.Create(result).Error; err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.results.Inc()
		d.metrics.steps.Add(float64(len(result.Steps)))
	}
	return nil
}

// GetResult returns the result for a proposal of a DAO with its steps in
// index order
func (d *ResultStoreSqlite) GetResult(
	proposalID common.Hash,
	dao common.Address,
) (*models.Result, error) {
	var ret models.Result
	err := d.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("`index` ASC")
		}).
		Where("proposal_id = ? AND dao = ?", proposalID.Bytes(), dao.Bytes()).
		First(&ret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrResultNotFound
		}
		return nil, err
	}
	return &ret, nil
}

// GetStep returns a single step of a stored result
func (d *ResultStoreSqlite) GetStep(
	proposalID common.Hash,
	dao common.Address,
	index uint32,
) (*models.Step, error) {
	var ret models.Step
	err := d.db.
		Joins("JOIN result ON result.id = result_step.result_id").
		Where(
			"result.proposal_id = ? AND result.dao = ? AND result_step.`index` = ?",
			proposalID.Bytes(),
			dao.Bytes(),
			index,
		).
		First(&ret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrStepNotFound
		}
		return nil, err
	}
	return &ret, nil
}

// ListResults returns the most recent results without their steps
func (d *ResultStoreSqlite) ListResults(limit int) ([]models.Result, error) {
	var ret []models.Result
	query := d.db.Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&ret).Error; err != nil {
		return nil, err
	}
	return ret, nil
}

// FindByRoot returns the result committed to a Merkle root
func (d *ResultStoreSqlite) FindByRoot(root common.Hash) (*models.Result, error) {
	var ret models.Result
	err := d.db.Where("root = ?", root.Bytes()).First(&ret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrResultNotFound
		}
		return nil, err
	}
	return &ret, nil
}
