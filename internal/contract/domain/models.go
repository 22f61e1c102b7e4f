package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Contract is a metered supply point discovered from the upstream account.
type Contract struct {
	ContractID string    `gorm:"column:contract_id;primaryKey" json:"contract_id"`
	AccountID  string    `gorm:"column:account_id" json:"account_id"`
	Division   string    `gorm:"column:division" json:"division"`
	Address    string    `gorm:"column:address" json:"address"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Contract) TableName() string {
	return "contracts"
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, contracts []Contract) error
	List(ctx context.Context, db *gorm.DB) ([]Contract, error)
	Exists(ctx context.Context, db *gorm.DB, contractID string) (bool, error)
}
