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

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const commitTimestampRowId = 1

// CommitTimestamp tracks the last commit shared with the ballot store
type CommitTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Timestamp int64
}

func (CommitTimestamp) TableName() string {
	return "commit_timestamp"
}

func (d *ResultStoreSqlite) GetCommitTimestamp() (int64, error) {
	var tmp CommitTimestamp
	result := d.db.First(&tmp)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return tmp.Timestamp, nil
}

// SetCommitTimestamp records timestamp on txn, or directly when txn is nil
func (d *ResultStoreSqlite) SetCommitTimestamp(txn *gorm.DB, timestamp int64) error {
	if txn == nil {
		txn = d.db
	}
	return txn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp"}),
	}).Create(&CommitTimestamp{
		ID:        commitTimestampRowId,
		Timestamp: timestamp,
	}).Error
}
