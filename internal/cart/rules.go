package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/tijarahq/tijara-backend/pkg/db/models"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
)

// CheckoutState is the freshly loaded view of a cart at checkout time.
// Products and supplier are re-read from the catalog because stock and
// status can change between add and checkout.
type CheckoutState struct {
	Cart     *models.Cart
	Products map[uuid.UUID]*models.Product
	Supplier *models.Supplier
}

// AddRule validates a single add-to-cart attempt.
type AddRule interface {
	Name() string
	ValidateAdd(ctx context.Context, cart *models.Cart, product *models.Product, qty int) error
}

// CheckoutRule validates the whole cart before order creation.
type CheckoutRule interface {
	Name() string
	ValidateCheckout(ctx context.Context, state *CheckoutState) error
}

// Chain composes validation rules. Add rules run in sequence and fail fast;
// checkout rules do the same across the whole cart. New rules slot in
// without touching call sites.
type Chain struct {
	addRules      []AddRule
	checkoutRules []CheckoutRule
}

// NewChain assembles the default rule set.
func NewChain() *Chain {
	return &Chain{
		addRules: []AddRule{
			singleSupplierRule{},
			productStatusRule{},
			stockAvailabilityRule{},
		},
		checkoutRules: []CheckoutRule{
			nonEmptyCartRule{},
			productStatusRule{},
			stockAvailabilityRule{},
			minimumOrderRule{},
		},
	}
}

// AddRule appends an extra add-time rule.
func (c *Chain) AddRule(rule AddRule) *Chain {
	c.addRules = append(c.addRules, rule)
	return c
}

// AddCheckoutRule appends an extra checkout-time rule.
func (c *Chain) AddCheckoutRule(rule CheckoutRule) *Chain {
	c.checkoutRules = append(c.checkoutRules, rule)
	return c
}

// ValidateAdd runs every add rule against the attempt, failing on the first
// violation.
func (c *Chain) ValidateAdd(ctx context.Context, cart *models.Cart, product *models.Product, qty int) error {
	for _, rule := range c.addRules {
		if err := rule.ValidateAdd(ctx, cart, product, qty); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCheckout runs every checkout rule against the cart, failing on the
// first violation.
func (c *Chain) ValidateCheckout(ctx context.Context, state *CheckoutState) error {
	for _, rule := range c.checkoutRules {
		if err := rule.ValidateCheckout(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// singleSupplierRule rejects adds that would mix suppliers in one cart.
type singleSupplierRule struct{}

func (singleSupplierRule) Name() string { return "single_supplier" }

func (singleSupplierRule) ValidateAdd(ctx context.Context, cart *models.Cart, product *models.Product, qty int) error {
	if cart == nil || cart.SupplierID == nil {
		return nil
	}
	if *cart.SupplierID != product.SupplierID {
		return pkgerrors.New(pkgerrors.CodeConflict, "cart is limited to a single supplier").
			WithDetails(map[string]any{
				"rule":             "single_supplier",
				"cart_supplier_id": cart.SupplierID.String(),
				"product_id":       product.ID.String(),
			})
	}
	return nil
}

// productStatusRule requires the product to be active and published, both
// when adding and again at checkout.
type productStatusRule struct{}

func (productStatusRule) Name() string { return "product_status" }

func (productStatusRule) ValidateAdd(ctx context.Context, cart *models.Cart, product *models.Product, qty int) error {
	return checkPurchasable(product)
}

func (productStatusRule) ValidateCheckout(ctx context.Context, state *CheckoutState) error {
	for _, line := range state.Cart.Lines {
		product, ok := state.Products[line.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product no longer exists").
				WithDetails(map[string]any{"rule": "product_status", "product_id": line.ProductID.String()})
		}
		if err := checkPurchasable(product); err != nil {
			return err
		}
	}
	return nil
}

func checkPurchasable(product *models.Product) error {
	if product == nil || !product.Purchasable() {
		details := map[string]any{"rule": "product_status"}
		if product != nil {
			details["product_id"] = product.ID.String()
			details["status"] = string(product.Status)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "product is not available for purchase").
			WithDetails(details)
	}
	return nil
}

// stockAvailabilityRule bounds the requested quantity by current available
// stock. Checkout re-checks because availability moves constantly; the
// ledger's conditional reserve remains the final authority.
type stockAvailabilityRule struct{}

func (stockAvailabilityRule) Name() string { return "stock_availability" }

func (stockAvailabilityRule) ValidateAdd(ctx context.Context, cart *models.Cart, product *models.Product, qty int) error {
	// re-adding a product replaces the line's quantity, so qty is the
	// full requested amount regardless of what the cart already holds
	return checkStock(product, qty)
}

func (stockAvailabilityRule) ValidateCheckout(ctx context.Context, state *CheckoutState) error {
	for _, line := range state.Cart.Lines {
		product, ok := state.Products[line.ProductID]
		if !ok {
			continue // product_status rule reports missing products
		}
		if err := checkStock(product, line.Qty); err != nil {
			return err
		}
	}
	return nil
}

func checkStock(product *models.Product, qty int) error {
	available := 0
	if product.Inventory != nil {
		available = product.Inventory.AvailableQty
	}
	if qty > available {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds available stock").
			WithDetails(map[string]any{
				"rule":          "stock_availability",
				"product_id":    product.ID.String(),
				"requested_qty": qty,
				"available_qty": available,
			})
	}
	return nil
}

// nonEmptyCartRule requires at least one line with positive quantity.
type nonEmptyCartRule struct{}

func (nonEmptyCartRule) Name() string { return "non_empty_cart" }

func (nonEmptyCartRule) ValidateCheckout(ctx context.Context, state *CheckoutState) error {
	for _, line := range state.Cart.Lines {
		if line.Qty > 0 {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "cart has no items to check out").
		WithDetails(map[string]any{"rule": "non_empty_cart"})
}

// minimumOrderRule enforces the supplier's configured minimum order total,
// defaulting to zero when unset.
type minimumOrderRule struct{}

func (minimumOrderRule) Name() string { return "minimum_order_amount" }

func (minimumOrderRule) ValidateCheckout(ctx context.Context, state *CheckoutState) error {
	minimum := 0
	if state.Supplier != nil {
		minimum = state.Supplier.MinOrderCents
	}
	if minimum <= 0 {
		return nil
	}

	// sum the live catalog prices the order will be totalled from, not
	// the add-time snapshots on the cart lines
	subtotal := 0
	for _, line := range state.Cart.Lines {
		price := line.UnitPriceCents
		if product, ok := state.Products[line.ProductID]; ok {
			price = product.PriceCents
		}
		subtotal += line.Qty * price
	}
	if subtotal < minimum {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart total is below the supplier minimum").
			WithDetails(map[string]any{
				"rule":            "minimum_order_amount",
				"subtotal_cents":  subtotal,
				"min_order_cents": minimum,
			})
	}
	return nil
}
