package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/pkg/db/models"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
)

// Service exposes merchant listing management plus the storefront read paths
// consumed by the cart.
type Service interface {
	CreateProduct(ctx context.Context, shopID uuid.UUID, input CreateProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, shopID, productID uuid.UUID, input UpdateProductInput) (*models.Product, error)
	PublishProduct(ctx context.Context, shopID, productID uuid.UUID) error
	UnpublishProduct(ctx context.Context, shopID, productID uuid.UUID) error
	GetPublishedProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListShopProducts(ctx context.Context, shopID uuid.UUID) ([]models.Product, error)
	CheckPublishedProductIDs(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	ListPublishedProducts(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]models.Product, error)
}

// CreateProductInput holds the validated payload to create a listing. Stock
// seeds the product's inventory row in the same transaction.
type CreateProductInput struct {
	Name          string
	Type          enums.ProductType
	Price         int
	DiscountPrice int
	Stock         int
	Location      string
	IsPublished   bool
}

// UpdateProductInput holds optional mutation values for a listing.
type UpdateProductInput struct {
	Name          *string
	Type          *enums.ProductType
	Price         *int
	DiscountPrice *int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inventoryCreator interface {
	CreateForProduct(ctx context.Context, tx *gorm.DB, item *models.InventoryItem) error
}

type service struct {
	repo      *Repository
	tx        txRunner
	inventory inventoryCreator
}

// NewService constructs a catalog service instance.
func NewService(repo *Repository, tx txRunner, inventory inventoryCreator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory creator required")
	}
	return &service{repo: repo, tx: tx, inventory: inventory}, nil
}

// CreateProduct inserts the listing and its inventory row atomically.
func (s *service) CreateProduct(ctx context.Context, shopID uuid.UUID, input CreateProductInput) (*models.Product, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	var created *models.Product
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product := &models.Product{
			ID:            uuid.New(),
			ShopID:        shopID,
			Name:          strings.TrimSpace(input.Name),
			Type:          input.Type,
			Price:         input.Price,
			DiscountPrice: input.DiscountPrice,
			IsPublished:   input.IsPublished,
		}
		result, err := txRepo.Create(ctx, product)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}

		item := &models.InventoryItem{
			ProductID: result.ID,
			ShopID:    shopID,
			Stock:     input.Stock,
			Location:  input.Location,
		}
		if err := s.inventory.CreateForProduct(ctx, tx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert inventory")
		}

		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// UpdateProduct applies partial changes to a shop's listing.
func (s *service) UpdateProduct(ctx context.Context, shopID, productID uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.ShopID != shopID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another shop")
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		product.Name = name
	}
	if input.Type != nil {
		if !input.Type.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product type")
		}
		product.Type = *input.Type
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
		}
		product.Price = *input.Price
	}
	if input.DiscountPrice != nil {
		if *input.DiscountPrice < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount price cannot be negative")
		}
		product.DiscountPrice = *input.DiscountPrice
	}
	if product.DiscountPrice > product.Price {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount price cannot exceed price")
	}

	return s.repo.Update(ctx, product)
}

// PublishProduct makes the listing visible to storefront reads.
func (s *service) PublishProduct(ctx context.Context, shopID, productID uuid.UUID) error {
	return s.repo.SetPublished(ctx, shopID, productID, true)
}

// UnpublishProduct hides the listing from storefront reads.
func (s *service) UnpublishProduct(ctx context.Context, shopID, productID uuid.UUID) error {
	return s.repo.SetPublished(ctx, shopID, productID, false)
}

// GetPublishedProduct returns a live listing for cart and checkout reads.
func (s *service) GetPublishedProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	return s.repo.FindPublished(ctx, productID)
}

// ListShopProducts returns all listings for the shop dashboard.
func (s *service) ListShopProducts(ctx context.Context, shopID uuid.UUID) ([]models.Product, error) {
	return s.repo.ListByShop(ctx, shopID)
}

// CheckPublishedProductIDs returns the given IDs that are not live listings
// of the shop. An empty result means every ID checks out.
func (s *service) CheckPublishedProductIDs(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	published, err := s.repo.FilterPublishedIDs(ctx, shopID, ids)
	if err != nil {
		return nil, err
	}

	found := make(map[uuid.UUID]bool, len(published))
	for _, id := range published {
		found[id] = true
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ListPublishedProducts returns the shop's live listings, narrowed to ids
// when any are given.
func (s *service) ListPublishedProducts(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]models.Product, error) {
	return s.repo.ListPublished(ctx, shopID, ids)
}

func validateCreateInput(input CreateProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown product type")
	}
	if input.Price < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if input.DiscountPrice < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount price cannot be negative")
	}
	if input.DiscountPrice > input.Price {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount price cannot exceed price")
	}
	if input.Stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	return nil
}
