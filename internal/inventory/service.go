package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/pkg/db/models"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes stock mutation operations. Reserve and Restock each run in
// their own transaction so the decrement and its audit row land together.
type Service interface {
	Reserve(ctx context.Context, productID, cartID uuid.UUID, quantity int) (*models.InventoryReservation, error)
	Restock(ctx context.Context, reservationID uuid.UUID) error
	AddStock(ctx context.Context, shopID, productID uuid.UUID, quantity int) error
	GetStock(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	CreateForProduct(ctx context.Context, tx *gorm.DB, item *models.InventoryItem) error
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService constructs an inventory service instance.
func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// Reserve takes quantity units off a product's stock for the given cart.
func (s *service) Reserve(ctx context.Context, productID, cartID uuid.UUID, quantity int) (*models.InventoryReservation, error) {
	var reservation *models.InventoryReservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result, err := s.repo.WithTx(tx).Reserve(ctx, productID, cartID, quantity)
		if err != nil {
			return err
		}
		reservation = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithProductID(ctx, productID.String())
	s.logg.Info(s.logg.WithField(ctx, "quantity", quantity), "inventory reserved")
	return reservation, nil
}

// Restock returns a reservation's units to stock. Safe to call more than once.
func (s *service) Restock(ctx context.Context, reservationID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Restock(ctx, reservationID)
	})
}

// AddStock raises a shop's stock level for a product.
func (s *service) AddStock(ctx context.Context, shopID, productID uuid.UUID, quantity int) error {
	item, err := s.repo.FindByProduct(ctx, productID)
	if err != nil {
		return err
	}
	if item.ShopID != shopID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "inventory belongs to another shop")
	}
	return s.repo.AddStock(ctx, productID, quantity)
}

// GetStock loads the current stock row for a product.
func (s *service) GetStock(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	return s.repo.FindByProduct(ctx, productID)
}

// CreateForProduct seeds the stock row for a new listing, joining the caller's
// transaction when one is provided.
func (s *service) CreateForProduct(ctx context.Context, tx *gorm.DB, item *models.InventoryItem) error {
	return s.repo.CreateForProduct(ctx, tx, item)
}
