package checkout

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shopmesh-io/backend/internal/lock"
	"github.com/shopmesh-io/backend/internal/orders"
	"github.com/shopmesh-io/backend/pkg/db/models"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
	"github.com/shopmesh-io/backend/pkg/types"
)

type stubCarts struct {
	cart      *models.Cart
	applied   []string
	removed   int
	appliedFn func() *models.Cart
}

func (s *stubCarts) GetCart(_ context.Context, _ uuid.UUID) (*models.Cart, error) {
	return s.cart, nil
}

func (s *stubCarts) ApplyCoupon(_ context.Context, _, _ uuid.UUID, code string) (*models.Cart, error) {
	s.applied = append(s.applied, code)
	if s.appliedFn != nil {
		return s.appliedFn(), nil
	}
	return s.cart, nil
}

func (s *stubCarts) RemoveCoupon(_ context.Context, _, _ uuid.UUID) (*models.Cart, error) {
	s.removed++
	return s.cart, nil
}

type stubCartStore struct {
	cart        *models.Cart
	markErr     error
	marked      []enums.CartState
	reactivated int
	deleted     int
}

func (s *stubCartStore) FindActiveByUser(_ context.Context, _ uuid.UUID) (*models.Cart, error) {
	return s.cart, nil
}

func (s *stubCartStore) MarkState(_ context.Context, _ uuid.UUID, state enums.CartState) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, state)
	return nil
}

func (s *stubCartStore) Reactivate(_ context.Context, _ uuid.UUID) error {
	s.reactivated++
	return nil
}

func (s *stubCartStore) Delete(_ context.Context, _ uuid.UUID) error {
	s.deleted++
	return nil
}

type stubDiscounts struct {
	reserveErr  error
	reserved    []uuid.UUID
	confirmed   []uuid.UUID
	unconfirmed []uuid.UUID
	released    []uuid.UUID
	confirmErr  error
}

func (s *stubDiscounts) ReserveForUser(_ context.Context, discountID, _ uuid.UUID) error {
	if s.reserveErr != nil {
		return s.reserveErr
	}
	s.reserved = append(s.reserved, discountID)
	return nil
}

func (s *stubDiscounts) ConfirmForUser(_ context.Context, discountID, _ uuid.UUID) error {
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmed = append(s.confirmed, discountID)
	return nil
}

func (s *stubDiscounts) UnconfirmForUser(_ context.Context, discountID, _ uuid.UUID) error {
	s.unconfirmed = append(s.unconfirmed, discountID)
	return nil
}

func (s *stubDiscounts) ReleaseForUser(_ context.Context, discountID, _ uuid.UUID) error {
	s.released = append(s.released, discountID)
	return nil
}

type stubStock struct {
	failOn    map[uuid.UUID]error
	reserved  []uuid.UUID
	restocked []uuid.UUID
}

func (s *stubStock) Reserve(_ context.Context, productID, _ uuid.UUID, _ int) (*models.InventoryReservation, error) {
	if err, ok := s.failOn[productID]; ok {
		return nil, err
	}
	reservation := &models.InventoryReservation{ID: uuid.New(), ProductID: productID}
	s.reserved = append(s.reserved, reservation.ID)
	return reservation, nil
}

func (s *stubStock) Restock(_ context.Context, reservationID uuid.UUID) error {
	s.restocked = append(s.restocked, reservationID)
	return nil
}

type stubProducts struct {
	products map[uuid.UUID]*models.Product
}

func (s *stubProducts) GetPublishedProduct(_ context.Context, productID uuid.UUID) (*models.Product, error) {
	if product, ok := s.products[productID]; ok {
		return product, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found or not published")
}

type stubLocks struct {
	failOn   map[uuid.UUID]error
	acquired []uuid.UUID
	released []string
}

func (s *stubLocks) AcquireProduct(_ context.Context, productID uuid.UUID) (*lock.Lease, error) {
	if err, ok := s.failOn[productID]; ok {
		return nil, err
	}
	s.acquired = append(s.acquired, productID)
	return &lock.Lease{Key: "sm:lock:product:" + productID.String(), Token: uuid.NewString()}, nil
}

func (s *stubLocks) Release(_ context.Context, lease *lock.Lease) error {
	s.released = append(s.released, lease.Key)
	return nil
}

type stubOrders struct {
	createErr error
	created   []orders.CreateOrderInput
}

func (s *stubOrders) Create(_ context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, input)
	return &models.Order{ID: uuid.New(), UserID: input.UserID, Checkout: input.Totals, Status: enums.OrderStatusPending}, nil
}

type fixture struct {
	carts     *stubCarts
	cartStore *stubCartStore
	discounts *stubDiscounts
	stock     *stubStock
	products  *stubProducts
	locks     *stubLocks
	orders    *stubOrders
	svc       Service
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func twoProductCart(userID uuid.UUID) (*models.Cart, *models.Product, *models.Product) {
	shopID := uuid.New()
	first := &models.Product{ID: uuid.New(), ShopID: shopID, Name: "Lamp", Price: 100, DiscountPrice: 80, IsPublished: true}
	second := &models.Product{ID: uuid.New(), ShopID: shopID, Name: "Chair", Price: 250, IsPublished: true}
	cart := &models.Cart{
		ID:            uuid.New(),
		UserID:        userID,
		State:         enums.CartStateActive,
		OrderSubtotal: 450,
		SaleDiscount:  40,
		GrandTotal:    410,
		ProductCount:  3,
		Orders: []models.CartOrder{{
			ID:       uuid.New(),
			ShopID:   shopID,
			Subtotal: 410,
			Products: []models.CartLineItem{
				{ProductID: first.ID, ShopID: shopID, Name: first.Name, Price: 100, DiscountPrice: 80, Quantity: 2},
				{ProductID: second.ID, ShopID: shopID, Name: second.Name, Price: 250, Quantity: 1},
			},
		}},
	}
	return cart, first, second
}

func newFixture(t *testing.T, cart *models.Cart, products ...*models.Product) *fixture {
	t.Helper()

	catalog := map[uuid.UUID]*models.Product{}
	for _, product := range products {
		catalog[product.ID] = product
	}

	f := &fixture{
		carts:     &stubCarts{cart: cart},
		cartStore: &stubCartStore{cart: cart},
		discounts: &stubDiscounts{},
		stock:     &stubStock{failOn: map[uuid.UUID]error{}},
		products:  &stubProducts{products: catalog},
		locks:     &stubLocks{failOn: map[uuid.UUID]error{}},
		orders:    &stubOrders{},
	}
	svc, err := NewService(f.carts, f.cartStore, f.discounts, f.stock, f.products, f.locks, f.orders, nil, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func TestExecuteHappyPath(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	discountID := uuid.New()
	cart.VoucherTotal = 30
	cart.GrandTotal = 380
	cart.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: discountID, Code: "SAVE30", AppliedAmount: 30}
	f := newFixture(t, cart, first, second)

	order, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{City: "Utrecht"}, types.PaymentInfo{Method: "card"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if order == nil || order.Checkout.GrandTotal != 380 {
		t.Fatalf("unexpected order %+v", order)
	}

	if len(f.stock.reserved) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(f.stock.reserved))
	}
	if len(f.locks.acquired) != 2 || len(f.locks.released) != 2 {
		t.Fatalf("every lock must be released, acquired %d released %d", len(f.locks.acquired), len(f.locks.released))
	}
	if len(f.discounts.confirmed) != 1 || f.discounts.confirmed[0] != discountID {
		t.Fatalf("expected coupon confirmed, got %v", f.discounts.confirmed)
	}
	if len(f.cartStore.marked) != 1 || f.cartStore.marked[0] != enums.CartStateCompleted {
		t.Fatalf("expected cart marked completed, got %v", f.cartStore.marked)
	}
	if f.cartStore.deleted != 1 {
		t.Fatalf("expected cart deleted, got %d", f.cartStore.deleted)
	}
	if len(f.orders.created) != 1 || len(f.orders.created[0].LineItems) != 2 {
		t.Fatalf("unexpected order input %+v", f.orders.created)
	}
	if len(f.stock.restocked) != 0 {
		t.Fatalf("nothing should be restocked on success, got %v", f.stock.restocked)
	}
}

func TestExecutePriceChangeAbortsBeforeReserving(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	second.Price = 300 // repriced since the cart snapshot
	f := newFixture(t, cart, first, second)

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeConflict, err)
	}

	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details, got %#v", typed.Details())
	}
	ids, ok := details["product_ids"].([]string)
	if !ok || len(ids) != 1 || ids[0] != second.ID.String() {
		t.Fatalf("expected offending product id, got %#v", details["product_ids"])
	}

	if len(f.stock.reserved) != 0 || len(f.locks.acquired) != 0 {
		t.Fatal("price validation must run before any reservation")
	}
}

func TestExecuteUnpublishedProductAborts(t *testing.T) {
	userID := uuid.New()
	cart, first, _ := twoProductCart(userID)
	// second product intentionally missing from the catalog
	f := newFixture(t, cart, first)

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeConflict, err)
	}
}

func TestExecuteReserveFailureRestocksEarlierReservations(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	f := newFixture(t, cart, first, second)
	f.stock.failOn[second.ID] = pkgerrors.New(pkgerrors.CodeLimitExceeded, "insufficient stock")

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLimitExceeded {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLimitExceeded, err)
	}

	if len(f.stock.reserved) != 1 {
		t.Fatalf("expected 1 successful reservation, got %d", len(f.stock.reserved))
	}
	if len(f.stock.restocked) != 1 || f.stock.restocked[0] != f.stock.reserved[0] {
		t.Fatalf("the successful reservation must be restocked, got %v", f.stock.restocked)
	}
	if len(f.orders.created) != 0 {
		t.Fatal("no order may be created on an aborted run")
	}
	if f.cartStore.deleted != 0 {
		t.Fatal("cart must survive an aborted run")
	}
}

func TestExecuteLockFailureRestocksEarlierReservations(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	f := newFixture(t, cart, first, second)
	f.locks.failOn[second.ID] = pkgerrors.New(pkgerrors.CodeLockUnavailable, "product is busy")

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLockUnavailable {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLockUnavailable, err)
	}

	if len(f.stock.restocked) != 1 {
		t.Fatalf("expected the first reservation restocked, got %v", f.stock.restocked)
	}
	if len(f.locks.released) != 1 {
		t.Fatalf("the held lock must have been released, got %v", f.locks.released)
	}
}

func TestExecuteCartConflictCompensates(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	f := newFixture(t, cart, first, second)
	f.cartStore.markErr = pkgerrors.New(pkgerrors.CodeConflict, "cart already processed")

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeConflict, err)
	}
	if len(f.stock.restocked) != 2 {
		t.Fatalf("both reservations must be restocked, got %v", f.stock.restocked)
	}
}

func TestExecuteOrderCreateFailureRevertsCart(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	discountID := uuid.New()
	cart.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: discountID, Code: "SAVE30", AppliedAmount: 30}
	f := newFixture(t, cart, first, second)
	f.orders.createErr = pkgerrors.New(pkgerrors.CodeDependency, "db: insert order")

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeDependency, err)
	}

	if len(f.stock.restocked) != 2 {
		t.Fatalf("both reservations must be restocked, got %v", f.stock.restocked)
	}
	if len(f.discounts.unconfirmed) != 1 || f.discounts.unconfirmed[0] != discountID {
		t.Fatalf("the confirmed coupon use must be reverted, got %v", f.discounts.unconfirmed)
	}
	if f.cartStore.reactivated != 1 {
		t.Fatalf("cart must return to active, reactivated=%d", f.cartStore.reactivated)
	}
	if f.cartStore.deleted != 0 {
		t.Fatal("cart must survive an aborted run")
	}
}

func TestExecuteCouponConfirmFailureRevertsCart(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	cart.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: uuid.New(), Code: "SAVE30", AppliedAmount: 30}
	f := newFixture(t, cart, first, second)
	f.discounts.confirmErr = pkgerrors.New(pkgerrors.CodeLimitExceeded, "discount allocation exhausted")

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLimitExceeded {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLimitExceeded, err)
	}

	if len(f.stock.restocked) != 2 {
		t.Fatalf("both reservations must be restocked, got %v", f.stock.restocked)
	}
	if len(f.discounts.unconfirmed) != 0 {
		t.Fatalf("nothing was confirmed, nothing to revert, got %v", f.discounts.unconfirmed)
	}
	if f.cartStore.reactivated != 1 {
		t.Fatalf("cart must return to active, reactivated=%d", f.cartStore.reactivated)
	}
	if f.cartStore.deleted != 0 {
		t.Fatal("cart must survive an aborted run")
	}
	if len(f.orders.created) != 0 {
		t.Fatal("no order may be created on an aborted run")
	}
}

func TestExecuteEmptyCart(t *testing.T) {
	userID := uuid.New()
	cart := &models.Cart{ID: uuid.New(), UserID: userID, State: enums.CartStateActive}
	f := newFixture(t, cart)

	_, err := f.svc.Execute(context.Background(), userID, types.ShippingInfo{}, types.PaymentInfo{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeValidation, err)
	}
}

func TestApplyCouponReservesAllocation(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	discountID := uuid.New()
	f := newFixture(t, cart, first, second)
	f.carts.appliedFn = func() *models.Cart {
		withCoupon := *cart
		withCoupon.Orders = []models.CartOrder{cart.Orders[0]}
		withCoupon.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: discountID, Code: "SAVE30", AppliedAmount: 30}
		return &withCoupon
	}

	updated, err := f.svc.ApplyCoupon(context.Background(), userID, cart.Orders[0].ShopID, "SAVE30")
	if err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	if updated.Orders[0].Coupon == nil {
		t.Fatal("expected coupon on cart")
	}
	if len(f.discounts.reserved) != 1 || f.discounts.reserved[0] != discountID {
		t.Fatalf("expected allocation reserved, got %v", f.discounts.reserved)
	}
}

func TestApplyCouponReplacementReleasesOldAllocation(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	oldID := uuid.New()
	newID := uuid.New()
	cart.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: oldID, Code: "OLD", AppliedAmount: 20}
	f := newFixture(t, cart, first, second)
	f.carts.appliedFn = func() *models.Cart {
		withCoupon := *cart
		withCoupon.Orders = []models.CartOrder{cart.Orders[0]}
		withCoupon.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: newID, Code: "NEW", AppliedAmount: 30}
		return &withCoupon
	}

	if _, err := f.svc.ApplyCoupon(context.Background(), userID, cart.Orders[0].ShopID, "NEW"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	if len(f.discounts.reserved) != 1 || f.discounts.reserved[0] != newID {
		t.Fatalf("expected new allocation reserved, got %v", f.discounts.reserved)
	}
	if len(f.discounts.released) != 1 || f.discounts.released[0] != oldID {
		t.Fatalf("expected old allocation released, got %v", f.discounts.released)
	}
}

func TestApplyCouponReserveRefusalRevertsCart(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	f := newFixture(t, cart, first, second)
	f.carts.appliedFn = func() *models.Cart {
		withCoupon := *cart
		withCoupon.Orders = []models.CartOrder{cart.Orders[0]}
		withCoupon.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: uuid.New(), Code: "SAVE30", AppliedAmount: 30}
		return &withCoupon
	}
	f.discounts.reserveErr = pkgerrors.New(pkgerrors.CodeLimitExceeded, "discount fully redeemed")

	_, err := f.svc.ApplyCoupon(context.Background(), userID, cart.Orders[0].ShopID, "SAVE30")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLimitExceeded {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLimitExceeded, err)
	}
	if f.carts.removed != 1 {
		t.Fatalf("expected the coupon reverted, removed=%d", f.carts.removed)
	}
}

func TestCancelCouponReleasesAllocation(t *testing.T) {
	userID := uuid.New()
	cart, first, second := twoProductCart(userID)
	discountID := uuid.New()
	cart.Orders[0].Coupon = &types.AppliedCoupon{DiscountID: discountID, Code: "SAVE30", AppliedAmount: 30}
	f := newFixture(t, cart, first, second)

	if _, err := f.svc.CancelCoupon(context.Background(), userID, cart.Orders[0].ShopID); err != nil {
		t.Fatalf("cancel coupon: %v", err)
	}
	if f.carts.removed != 1 {
		t.Fatalf("expected coupon removed, got %d", f.carts.removed)
	}
	if len(f.discounts.released) != 1 || f.discounts.released[0] != discountID {
		t.Fatalf("expected allocation released, got %v", f.discounts.released)
	}
}
