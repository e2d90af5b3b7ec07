package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/pkg/enums"
)

// Product represents the canonical supplier listing. Stock counts live on
// the attached InventoryItem and are mutated only through the stock ledger.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SupplierID        uuid.UUID           `gorm:"column:supplier_id;type:uuid;not null"`
	SKU               string              `gorm:"column:sku;not null"`
	Name              string              `gorm:"column:name;not null"`
	Tags              pq.StringArray      `gorm:"column:tags;type:text[]"`
	PriceCents        int                 `gorm:"column:price_cents;not null"`
	Status            enums.ProductStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	IsActive          bool                `gorm:"column:is_active;not null;default:true"`
	LowStockThreshold int                 `gorm:"column:low_stock_threshold;not null;default:0"`
	Inventory         *InventoryItem      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Purchasable reports whether the catalog allows the product to be ordered.
func (p *Product) Purchasable() bool {
	return p.IsActive && p.Status == enums.ProductStatusPublished
}
