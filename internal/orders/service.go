package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/pkg/db/models"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
	"github.com/shopmesh-io/backend/pkg/pagination"
	"github.com/shopmesh-io/backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateOrderInput carries the frozen cart snapshot an order is built from.
type CreateOrderInput struct {
	UserID    uuid.UUID
	Shipping  types.ShippingInfo
	Payment   types.PaymentInfo
	Totals    types.CheckoutTotals
	LineItems []models.OrderLineItem
}

// Service persists finalized orders and serves buyer order history.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService constructs an order service instance.
func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// Create persists an order from the checkout snapshot. Orders start pending
// and carry a generated tracking number.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(input.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no products")
	}

	order := &models.Order{
		ID:             uuid.New(),
		UserID:         input.UserID,
		Checkout:       input.Totals,
		Shipping:       input.Shipping,
		Payment:        input.Payment,
		TrackingNumber: newTrackingNumber(),
		Status:         enums.OrderStatusPending,
	}
	for i := range input.LineItems {
		item := input.LineItems[i]
		item.ID = uuid.New()
		item.OrderID = order.ID
		order.LineItems = append(order.LineItems, item)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, order)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":        order.ID.String(),
		"tracking_number": order.TrackingNumber,
		"line_items":      len(order.LineItems),
	}), "order created")
	return order, nil
}

// GetOrder returns one of the user's orders.
func (s *service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	return s.repo.FindByIDAndUser(ctx, orderID, userID)
}

// ListOrders returns one page of the user's order history, newest first,
// together with the cursor for the next page.
func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.Clamp(params.Limit)
	list, err := s.repo.ListByUser(ctx, userID, cursor, pagination.FetchSize(params.Limit))
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(list) > limit {
		list = list[:limit]
		last := list[len(list)-1]
		next = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return list, next, nil
}

// UpdateStatus moves an order along its fulfillment lifecycle.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	return s.repo.UpdateStatus(ctx, orderID, status)
}

// newTrackingNumber builds an opaque carrier-style reference, a date prefix
// with a random hex suffix.
func newTrackingNumber() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("SM-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("SM-%s-%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(buf))
}
