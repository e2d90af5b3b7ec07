package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/internal/catalog"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AddItemInput captures an add-to-cart request. Re-adding a product the
// cart already holds replaces its quantity.
type AddItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// Service exposes cart operations for buyers.
type Service interface {
	AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*models.Cart, error)
	RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*models.Cart, error)
	GetActive(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type service struct {
	repo    Repository
	catalog catalog.Repository
	chain   *Chain
	tx      txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, catalogRepo catalog.Repository, chain *Chain, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if chain == nil {
		return nil, fmt.Errorf("validation chain required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, catalog: catalogRepo, chain: chain, tx: tx}, nil
}

// AddItem validates and upserts a cart line, creating the cart lazily on
// the buyer's first add.
func (s *service) AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var result *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		catalogRepo := s.catalog.WithTx(tx)

		product, err := catalogRepo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		cart, err := repo.FindActiveByBuyer(ctx, buyerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cart = &models.Cart{BuyerID: buyerID, Status: enums.CartStatusActive}
			if err := repo.Create(ctx, cart); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
		} else if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if err := s.chain.ValidateAdd(ctx, cart, product, input.Qty); err != nil {
			return err
		}

		if cart.SupplierID == nil {
			supplierID := product.SupplierID
			if err := repo.SetSupplier(ctx, cart.ID, &supplierID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pin cart supplier")
			}
			cart.SupplierID = &supplierID
		}

		line := models.CartLine{
			CartID:         cart.ID,
			ProductID:      product.ID,
			SupplierID:     product.SupplierID,
			Qty:            input.Qty,
			UnitPriceCents: product.PriceCents,
		}
		if err := repo.UpsertLine(ctx, &line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart line")
		}

		result, err = repo.FindByID(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveItem drops a product from the active cart. Removing the last line
// unpins the supplier so the next add can start fresh.
func (s *service) RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var result *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByBuyer(ctx, buyerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if err := repo.DeleteLine(ctx, cart.ID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
		}

		result, err = repo.FindByID(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
		}
		if len(result.Lines) == 0 && result.SupplierID != nil {
			if err := repo.SetSupplier(ctx, cart.ID, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unpin cart supplier")
			}
			result.SupplierID = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetActive returns the buyer's active cart.
func (s *service) GetActive(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	cart, err := s.repo.FindActiveByBuyer(ctx, buyerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

// Clear drops every line and retires the cart. The next add creates a new
// one.
func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if buyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByBuyer(ctx, buyerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if err := repo.DeleteLines(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart lines")
		}
		if err := repo.SetStatus(ctx, cart.ID, enums.CartStatusCleared); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	})
}

// LoadCheckoutState re-reads the cart's products and supplier for checkout
// validation. Exposed for the checkout service, which runs it inside the
// order-creation transaction.
func LoadCheckoutState(ctx context.Context, catalogRepo catalog.Repository, cartRecord *models.Cart) (*CheckoutState, error) {
	ids := make([]uuid.UUID, 0, len(cartRecord.Lines))
	for _, line := range cartRecord.Lines {
		ids = append(ids, line.ProductID)
	}

	products, err := catalogRepo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart products")
	}

	state := &CheckoutState{Cart: cartRecord, Products: products}
	if cartRecord.SupplierID != nil {
		supplier, err := catalogRepo.FindSupplier(ctx, *cartRecord.SupplierID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart supplier")
		}
		state.Supplier = supplier
	}
	return state, nil
}
