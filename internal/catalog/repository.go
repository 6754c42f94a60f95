package catalog

import (
	"context"
	stdErrors "errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/pkg/db/models"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
)

// Repository persists catalog listings.
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

// Create inserts a product listing.
func (r *Repository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Update saves mutable listing fields.
func (r *Repository) Update(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// FindByID loads a product regardless of publication state.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindPublished loads a product only if it is live in the storefront.
func (r *Repository) FindPublished(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		First(&product, "id = ? AND is_published = ?", id, true).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found or not published")
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListByShop returns all products owned by the shop, newest first.
func (r *Repository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("created_at DESC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

// SetPublished flips the storefront visibility of a shop's product. The shop
// filter keeps one merchant from toggling another merchant's listing.
func (r *Repository) SetPublished(ctx context.Context, shopID, productID uuid.UUID, published bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND shop_id = ?", productID, shopID).
		Update("is_published", published)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found for shop")
	}
	return nil
}

// FilterPublishedIDs returns the subset of the given IDs that are live
// listings of the shop.
func (r *Repository) FilterPublishedIDs(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var published []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("shop_id = ? AND id IN ? AND is_published = ?", shopID, ids, true).
		Pluck("id", &published).Error
	if err != nil {
		return nil, err
	}
	return published, nil
}

// ListPublished returns the shop's live listings, optionally narrowed to the
// given product IDs.
func (r *Repository) ListPublished(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]models.Product, error) {
	query := r.db.WithContext(ctx).
		Where("shop_id = ? AND is_published = ?", shopID, true)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var products []models.Product
	if err := query.Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
