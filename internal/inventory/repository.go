package inventory

import (
	"context"
	stdErrors "errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/pkg/db/models"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
)

// Repository persists stock levels and reservation audit rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// CreateForProduct inserts the stock row for a new listing. When tx is nil the
// repository's own connection is used.
func (r *Repository) CreateForProduct(ctx context.Context, tx *gorm.DB, item *models.InventoryItem) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	if item.Location == "" {
		item.Location = "unknown"
	}
	return conn.WithContext(ctx).Create(item).Error
}

// FindByProduct loads the stock row for a product.
func (r *Repository) FindByProduct(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found for product")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Reserve decrements stock only when enough remains, then records the
// reservation. The WHERE guard is what keeps stock from going negative under
// concurrent reserves; a zero row count means someone else took the units.
func (r *Repository) Reserve(ctx context.Context, productID, cartID uuid.UUID, quantity int) (*models.InventoryReservation, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserve quantity must be positive")
	}

	result := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ? AND stock >= ?", productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeLimitExceeded, "insufficient stock").
			WithDetails(map[string]any{"product_id": productID.String(), "requested": quantity})
	}

	reservation := &models.InventoryReservation{
		ID:        uuid.New(),
		ProductID: productID,
		CartID:    cartID,
		Quantity:  quantity,
	}
	if err := r.db.WithContext(ctx).Create(reservation).Error; err != nil {
		return nil, err
	}
	return reservation, nil
}

// Restock returns a reservation's units to stock. Flipping the restocked flag
// under a guard makes the operation idempotent per reservation.
func (r *Repository) Restock(ctx context.Context, reservationID uuid.UUID) error {
	var reservation models.InventoryReservation
	err := r.db.WithContext(ctx).First(&reservation, "id = ?", reservationID).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if err != nil {
		return err
	}

	flip := r.db.WithContext(ctx).
		Model(&models.InventoryReservation{}).
		Where("id = ? AND restocked = ?", reservationID, false).
		Update("restocked", true)
	if flip.Error != nil {
		return flip.Error
	}
	if flip.RowsAffected == 0 {
		// already restocked
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ?", reservation.ProductID).
		Update("stock", gorm.Expr("stock + ?", reservation.Quantity)).Error
}

// AddStock increases stock for a product, for merchant restocks.
func (r *Repository) AddStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
	}
	result := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found for product")
	}
	return nil
}

// ListReservationsByCart returns all reservation rows made for a cart.
func (r *Repository) ListReservationsByCart(ctx context.Context, cartID uuid.UUID) ([]models.InventoryReservation, error) {
	var reservations []models.InventoryReservation
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
