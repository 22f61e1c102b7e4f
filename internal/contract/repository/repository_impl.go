package repository

import (
	"context"
	"time"

	contractdomain "github.com/smallbiznis/metersync/internal/contract/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() contractdomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, contracts []contractdomain.Contract) error {
	if len(contracts) == 0 {
		return nil
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range contracts {
			if err := tx.Exec(`
				INSERT INTO contracts (contract_id, account_id, division, address, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (contract_id) DO UPDATE SET
					account_id = excluded.account_id,
					division = excluded.division,
					address = excluded.address,
					updated_at = excluded.updated_at
			`, c.ContractID, c.AccountID, c.Division, c.Address, now, now).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]contractdomain.Contract, error) {
	var contracts []contractdomain.Contract
	err := db.WithContext(ctx).
		Raw(`SELECT * FROM contracts ORDER BY contract_id ASC`).
		Scan(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, contractID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Raw(`SELECT COUNT(1) FROM contracts WHERE contract_id = ?`, contractID).
		Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
