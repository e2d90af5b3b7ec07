package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
)

// The ledger is the single mutation path for stock counts. Every operation
// is a conditional UPDATE so the row lock the database takes serializes
// concurrent checkouts on the same product; the WHERE guard keeps counts
// from ever going negative regardless of interleaving.

// ReservationRequest asks for qty units of a product to be reserved.
type ReservationRequest struct {
	LineID    uuid.UUID
	ProductID uuid.UUID
	Qty       int
}

// Reserve atomically moves qty units from available to reserved. Fails with
// an insufficient-stock error when fewer than qty units are available.
func Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for product").
			WithDetails(map[string]any{"product_id": productID.String(), "requested_qty": qty})
	}
	return nil
}

// Release returns qty reserved units to available stock. Used when payment
// fails, the order expires, or the supplier rejects the order.
func Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	return nil
}

// Commit finalizes a reservation once payment settles. Available stock was
// already decremented at reservation time; this only clears the reserved
// counter, so a commit never double-decrements.
func Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock commit")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "commit stock")
	}
	return nil
}

// ReserveAll reserves every request in order and fails fast on the first
// shortage. Callers run it inside a transaction so a failure rolls back
// every earlier reservation; no partial reservation survives.
func ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	for _, req := range requests {
		if err := Reserve(ctx, tx, req.ProductID, req.Qty); err != nil {
			return err
		}
	}
	return nil
}

// Ledger is the injectable form of the stock operations.
type Ledger struct{}

// NewLedger returns a stateless ledger handle.
func NewLedger() *Ledger {
	return &Ledger{}
}

func (*Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return Reserve(ctx, tx, productID, qty)
}

func (*Ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return Release(ctx, tx, productID, qty)
}

func (*Ledger) Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return Commit(ctx, tx, productID, qty)
}

func (*Ledger) ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	return ReserveAll(ctx, tx, requests)
}
