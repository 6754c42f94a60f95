package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/shopmesh-io/backend/internal/lock"
	"github.com/shopmesh-io/backend/internal/orders"
	"github.com/shopmesh-io/backend/pkg/db/models"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
	"github.com/shopmesh-io/backend/pkg/metrics"
	"github.com/shopmesh-io/backend/pkg/types"
)

const (
	outcomeSuccess = "success"
	outcomeAborted = "aborted"

	reasonEmptyCart         = "empty_cart"
	reasonPriceChanged      = "price_changed"
	reasonLockUnavailable   = "lock_unavailable"
	reasonInsufficientStock = "insufficient_stock"
	reasonAlreadyProcessed  = "already_processed"
	reasonCouponConfirm     = "coupon_confirm"
	reasonOrderCreate       = "order_create"
)

type cartCoupons interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ApplyCoupon(ctx context.Context, userID, shopID uuid.UUID, code string) (*models.Cart, error)
	RemoveCoupon(ctx context.Context, userID, shopID uuid.UUID) (*models.Cart, error)
}

type cartStore interface {
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	MarkState(ctx context.Context, cartID uuid.UUID, state enums.CartState) error
	Reactivate(ctx context.Context, cartID uuid.UUID) error
	Delete(ctx context.Context, cartID uuid.UUID) error
}

type discountAllocator interface {
	ReserveForUser(ctx context.Context, discountID, userID uuid.UUID) error
	ConfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error
	UnconfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error
	ReleaseForUser(ctx context.Context, discountID, userID uuid.UUID) error
}

type stockReserver interface {
	Reserve(ctx context.Context, productID, cartID uuid.UUID, quantity int) (*models.InventoryReservation, error)
	Restock(ctx context.Context, reservationID uuid.UUID) error
}

type productLoader interface {
	GetPublishedProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}

type locker interface {
	AcquireProduct(ctx context.Context, productID uuid.UUID) (*lock.Lease, error)
	Release(ctx context.Context, lease *lock.Lease) error
}

type orderCreator interface {
	Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error)
}

// Service coordinates a checkout across carts, discounts, inventory, and
// orders. Each collaborator commits its own work; failures after a partial
// reserve are compensated, not rolled back.
type Service interface {
	ApplyCoupon(ctx context.Context, userID, shopID uuid.UUID, code string) (*models.Cart, error)
	CancelCoupon(ctx context.Context, userID, shopID uuid.UUID) (*models.Cart, error)
	Execute(ctx context.Context, userID uuid.UUID, shipping types.ShippingInfo, payment types.PaymentInfo) (*models.Order, error)
}

type service struct {
	carts     cartCoupons
	cartRepo  cartStore
	discounts discountAllocator
	stock     stockReserver
	products  productLoader
	locks     locker
	orders    orderCreator
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

// NewService wires the checkout orchestrator. Metrics may be nil.
func NewService(
	carts cartCoupons,
	cartRepo cartStore,
	discounts discountAllocator,
	stock stockReserver,
	products productLoader,
	locks locker,
	orderStore orderCreator,
	m *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if carts == nil || cartRepo == nil {
		return nil, fmt.Errorf("cart collaborators required")
	}
	if discounts == nil {
		return nil, fmt.Errorf("discount allocator required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock manager required")
	}
	if orderStore == nil {
		return nil, fmt.Errorf("order store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		carts:     carts,
		cartRepo:  cartRepo,
		discounts: discounts,
		stock:     stock,
		products:  products,
		locks:     locks,
		orders:    orderStore,
		metrics:   m,
		logg:      logg,
	}, nil
}

// ApplyCoupon validates a code, applies it to the cart, and reserves a pending
// allocation against the discount's budget. Applying a new code to a shop
// order that already carries one swaps the codes and hands the old allocation
// back.
func (s *service) ApplyCoupon(ctx context.Context, userID, shopID uuid.UUID, code string) (*models.Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := couponFor(cart, shopID)

	updated, err := s.carts.ApplyCoupon(ctx, userID, shopID, code)
	if err != nil {
		return nil, err
	}
	applied := couponFor(updated, shopID)
	if applied == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon not applied")
	}

	// re-applying the same code keeps the existing allocation
	if previous != nil && previous.DiscountID == applied.DiscountID {
		return updated, nil
	}

	if err := s.discounts.ReserveForUser(ctx, applied.DiscountID, userID); err != nil {
		if _, revertErr := s.carts.RemoveCoupon(ctx, userID, shopID); revertErr != nil {
			s.logg.Error(ctx, "coupon revert failed after reserve refusal", revertErr)
		}
		return nil, err
	}

	if previous != nil {
		if err := s.discounts.ReleaseForUser(ctx, previous.DiscountID, userID); err != nil {
			s.logg.Error(ctx, "releasing replaced coupon allocation failed", err)
		}
	}
	return updated, nil
}

// CancelCoupon removes the coupon from a shop order and hands its pending
// allocation back to the discount budget.
func (s *service) CancelCoupon(ctx context.Context, userID, shopID uuid.UUID) (*models.Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	applied := couponFor(cart, shopID)

	updated, err := s.carts.RemoveCoupon(ctx, userID, shopID)
	if err != nil {
		return nil, err
	}
	if applied != nil {
		if err := s.discounts.ReleaseForUser(ctx, applied.DiscountID, userID); err != nil {
			s.logg.Error(ctx, "releasing cancelled coupon allocation failed", err)
		}
	}
	return updated, nil
}

// Execute runs the checkout state machine: validate prices, reserve stock
// under per-product locks, then commit the order. Any reservation failure
// restocks what was already taken and aborts the run.
func (s *service) Execute(ctx context.Context, userID uuid.UUID, shipping types.ShippingInfo, payment types.PaymentInfo) (*models.Order, error) {
	started := time.Now()
	order, err := s.execute(ctx, userID, shipping, payment)
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeAborted
	}
	s.metrics.IncAttempt(outcome)
	s.metrics.ObserveDuration(outcome, time.Since(started))
	return order, err
}

func (s *service) execute(ctx context.Context, userID uuid.UUID, shipping types.ShippingInfo, payment types.PaymentInfo) (*models.Order, error) {
	cart, err := s.cartRepo.FindActiveByUser(ctx, userID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return nil, s.abort(ctx, reasonEmptyCart, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
		}
		return nil, err
	}

	lineItems := collectLineItems(cart)
	if len(lineItems) == 0 {
		return nil, s.abort(ctx, reasonEmptyCart, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
	}

	if err := s.validatePrices(ctx, lineItems); err != nil {
		return nil, err
	}

	reservations, err := s.reserveAll(ctx, cart.ID, lineItems)
	if err != nil {
		return nil, err
	}

	if err := s.cartRepo.MarkState(ctx, cart.ID, enums.CartStateCompleted); err != nil {
		s.compensate(ctx, reservations)
		return nil, s.abort(ctx, reasonAlreadyProcessed, err)
	}

	var confirmed []uuid.UUID
	for i := range cart.Orders {
		coupon := cart.Orders[i].Coupon
		if coupon == nil {
			continue
		}
		if err := s.discounts.ConfirmForUser(ctx, coupon.DiscountID, userID); err != nil {
			s.rollbackCommit(ctx, cart.ID, userID, confirmed, reservations)
			s.logg.Error(ctx, "coupon confirmation failed after stock reserve", err)
			return nil, s.abort(ctx, reasonCouponConfirm, err)
		}
		confirmed = append(confirmed, coupon.DiscountID)
	}

	order, err := s.orders.Create(ctx, orders.CreateOrderInput{
		UserID:   userID,
		Shipping: shipping,
		Payment:  payment,
		Totals: types.CheckoutTotals{
			OrderSubtotal: cart.OrderSubtotal,
			SaleDiscount:  cart.SaleDiscount,
			VoucherTotal:  cart.VoucherTotal,
			GrandTotal:    cart.GrandTotal,
		},
		LineItems: orderLineItems(lineItems),
	})
	if err != nil {
		s.rollbackCommit(ctx, cart.ID, userID, confirmed, reservations)
		s.logg.Error(ctx, "order creation failed after stock reserve", err)
		return nil, s.abort(ctx, reasonOrderCreate, err)
	}

	if err := s.cartRepo.Delete(ctx, cart.ID); err != nil {
		s.logg.Error(ctx, "deleting checked-out cart failed", err)
	}
	return order, nil
}

// validatePrices re-reads the catalog and refuses the run when any line item
// was priced against stale data.
func (s *service) validatePrices(ctx context.Context, lineItems []models.CartLineItem) error {
	var changed []string
	for i := range lineItems {
		item := &lineItems[i]
		product, err := s.products.GetPublishedProduct(ctx, item.ProductID)
		if err != nil {
			changed = append(changed, item.ProductID.String())
			continue
		}
		if product.Price != item.Price || product.DiscountPrice != item.DiscountPrice {
			changed = append(changed, item.ProductID.String())
		}
	}
	if len(changed) > 0 {
		return s.abort(ctx, reasonPriceChanged,
			pkgerrors.New(pkgerrors.CodeConflict, "product prices changed, review your cart").
				WithDetails(map[string]any{"product_ids": changed}))
	}
	return nil
}

// reserveAll takes stock for every line item, holding the product lock only
// across the individual reserve. The first failure restocks everything taken
// so far.
func (s *service) reserveAll(ctx context.Context, cartID uuid.UUID, lineItems []models.CartLineItem) ([]*models.InventoryReservation, error) {
	reservations := make([]*models.InventoryReservation, 0, len(lineItems))
	for i := range lineItems {
		item := &lineItems[i]

		lease, err := s.locks.AcquireProduct(ctx, item.ProductID)
		if err != nil {
			s.compensate(ctx, reservations)
			return nil, s.abort(ctx, reasonLockUnavailable, err)
		}

		reservation, reserveErr := s.stock.Reserve(ctx, item.ProductID, cartID, item.Quantity)
		if releaseErr := s.locks.Release(ctx, lease); releaseErr != nil {
			s.logg.Error(s.logg.WithProductID(ctx, item.ProductID.String()), "releasing reserve lock failed", releaseErr)
		}
		if reserveErr != nil {
			s.compensate(ctx, reservations)
			return nil, s.abort(ctx, reasonInsufficientStock, reserveErr)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// rollbackCommit unwinds an abort that struck after the cart left the active
// state: restock the reservations, move confirmed coupon uses back to
// pending, and hand the cart back to the user as active. An aborted run must
// leave nothing consumed.
func (s *service) rollbackCommit(ctx context.Context, cartID uuid.UUID, userID uuid.UUID, confirmed []uuid.UUID, reservations []*models.InventoryReservation) {
	s.compensate(ctx, reservations)
	for _, discountID := range confirmed {
		if err := s.discounts.UnconfirmForUser(ctx, discountID, userID); err != nil {
			s.logg.Error(ctx, "reverting confirmed coupon use failed during checkout rollback", err)
		}
	}
	if err := s.cartRepo.Reactivate(ctx, cartID); err != nil {
		s.logg.Error(ctx, "reverting cart to active failed after aborted checkout", err)
	}
}

// compensate restocks every reservation taken during an aborted run. Restock
// failures strand sold stock, so they are aggregated and logged loudly rather
// than swallowed.
func (s *service) compensate(ctx context.Context, reservations []*models.InventoryReservation) {
	var restockErr error
	for _, reservation := range reservations {
		if err := s.stock.Restock(ctx, reservation.ID); err != nil {
			restockErr = multierr.Append(restockErr, fmt.Errorf("reservation %s: %w", reservation.ID, err))
		}
	}
	if restockErr != nil {
		s.logg.Error(ctx, "checkout compensation left stock stranded, manual restock needed", restockErr)
	}
}

func (s *service) abort(ctx context.Context, reason string, err error) error {
	s.metrics.IncAbort(reason)
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "checkout aborted")
	return err
}

func couponFor(cart *models.Cart, shopID uuid.UUID) *types.AppliedCoupon {
	for i := range cart.Orders {
		if cart.Orders[i].ShopID == shopID {
			return cart.Orders[i].Coupon
		}
	}
	return nil
}

func collectLineItems(cart *models.Cart) []models.CartLineItem {
	var items []models.CartLineItem
	for i := range cart.Orders {
		items = append(items, cart.Orders[i].Products...)
	}
	return items
}

func orderLineItems(lineItems []models.CartLineItem) []models.OrderLineItem {
	out := make([]models.OrderLineItem, 0, len(lineItems))
	for _, item := range lineItems {
		out = append(out, models.OrderLineItem{
			ProductID:     item.ProductID,
			ShopID:        item.ShopID,
			Name:          item.Name,
			Price:         item.Price,
			DiscountPrice: item.DiscountPrice,
			Quantity:      item.Quantity,
		})
	}
	return out
}
