package discount

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/pkg/db/models"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productCatalog interface {
	CheckPublishedProductIDs(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	ListPublishedProducts(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) ([]models.Product, error)
}

// EligibleItem is one cart line offered to the discount for matching.
// Subtotal is the line's effective amount in cents.
type EligibleItem struct {
	ProductID uuid.UUID
	Subtotal  int
}

// ValidationResult carries the matched discount and the amount it takes off.
type ValidationResult struct {
	Discount *models.Discount
	Amount   int
}

// CreateDiscountInput holds the validated payload for a new code.
type CreateDiscountInput struct {
	Code           string
	Name           string
	Description    string
	Type           enums.DiscountType
	Value          int
	StartDate      time.Time
	EndDate        time.Time
	MaxUses        *int
	MaxUsesPerUser int
	MinOrderValue  int
	AppliesTo      enums.DiscountAppliesTo
	ProductIDs     []uuid.UUID
}

// UpdateDiscountInput holds the fields a merchant may change on an existing
// code. Nil fields are left untouched.
type UpdateDiscountInput struct {
	Code           *string
	Name           *string
	Description    *string
	Value          *int
	EndDate        *time.Time
	MaxUses        *int
	MaxUsesPerUser *int
	MinOrderValue  *int
}

// Service exposes discount validation, the allocation lifecycle, and merchant
// CRUD. Reserve, Confirm and Release each move counters inside their own
// transaction unless the caller supplies one via the WithTx variants.
type Service interface {
	Validate(ctx context.Context, shopID uuid.UUID, code string, userID uuid.UUID, items []EligibleItem) (*ValidationResult, error)
	ReserveForUser(ctx context.Context, discountID, userID uuid.UUID) error
	ConfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error
	UnconfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error
	ReleaseForUser(ctx context.Context, discountID, userID uuid.UUID) error
	CreateDiscount(ctx context.Context, shopID uuid.UUID, input CreateDiscountInput) (*models.Discount, error)
	UpdateDiscount(ctx context.Context, shopID, discountID uuid.UUID, input UpdateDiscountInput) (*models.Discount, error)
	DeactivateDiscount(ctx context.Context, shopID, discountID uuid.UUID) error
	ListShopDiscounts(ctx context.Context, shopID uuid.UUID) ([]models.Discount, error)
	ListProductsForDiscount(ctx context.Context, shopID, discountID uuid.UUID) ([]models.Product, error)
	GetDiscount(ctx context.Context, discountID uuid.UUID) (*models.Discount, error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	catalog productCatalog
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs a discount service instance.
func NewService(repo *Repository, tx txRunner, catalog productCatalog, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("discount repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, catalog: catalog, logg: logg, now: time.Now}, nil
}

// Validate checks a code against its budgets, activation window, and minimum
// spend, then computes the amount it takes off the eligible subtotal. The
// checks run in a fixed fail-fast order so clients always see the same
// failure for the same state: global budget, per-user cap, window, active
// flag, then spend and eligibility.
func (s *service) Validate(ctx context.Context, shopID uuid.UUID, code string, userID uuid.UUID, items []EligibleItem) (*ValidationResult, error) {
	discount, err := s.repo.FindByShopAndCode(ctx, shopID, code)
	if err != nil {
		return nil, err
	}

	if discount.MaxUses != nil && discount.UsedCount+discount.PendingCount >= *discount.MaxUses {
		return nil, pkgerrors.New(pkgerrors.CodeLimitExceeded, "discount allocation exhausted")
	}

	usage, err := s.repo.UsageFor(ctx, discount.ID, userID)
	if err != nil {
		return nil, err
	}
	if usage.UsedCount+usage.PendingCount >= discount.MaxUsesPerUser {
		return nil, pkgerrors.New(pkgerrors.CodeLimitExceeded, "per-user discount limit reached")
	}

	now := s.now()
	if now.Before(discount.StartDate) || now.After(discount.EndDate) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "discount is outside its activation window")
	}
	if !discount.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "discount is not active")
	}

	// the minimum spend counts only products the code applies to
	eligible := eligibleSubtotal(discount, items)
	if eligible == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no eligible products for discount")
	}
	if eligible < discount.MinOrderValue {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "eligible order value below discount minimum").
			WithDetails(map[string]any{"min_order_value": discount.MinOrderValue, "eligible_value": eligible})
	}

	amount := discountAmount(discount, eligible)
	return &ValidationResult{Discount: discount, Amount: amount}, nil
}

// ReserveForUser moves one use into pending on both counters atomically.
func (s *service) ReserveForUser(ctx context.Context, discountID, userID uuid.UUID) error {
	discount, err := s.repo.FindByID(ctx, discountID)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReserveForUser(ctx, discountID, userID, discount.MaxUsesPerUser)
	})
}

// ConfirmForUser converts one pending use into a committed one.
func (s *service) ConfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ConfirmForUser(ctx, discountID, userID)
	})
}

// UnconfirmForUser moves one committed use back to pending, for checkout
// rollback after a confirm.
func (s *service) UnconfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).UnconfirmForUser(ctx, discountID, userID)
	})
}

// ReleaseForUser hands one pending use back.
func (s *service) ReleaseForUser(ctx context.Context, discountID, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReleaseForUser(ctx, discountID, userID)
	})
}

// CreateDiscount validates and inserts a merchant's new code. Product-scoped
// codes may only reference live listings of the same shop.
func (s *service) CreateDiscount(ctx context.Context, shopID uuid.UUID, input CreateDiscountInput) (*models.Discount, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	if input.AppliesTo == enums.DiscountAppliesToSpecific {
		missing, err := s.catalog.CheckPublishedProductIDs(ctx, shopID, input.ProductIDs)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			ids := make([]string, 0, len(missing))
			for _, id := range missing {
				ids = append(ids, id.String())
			}
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "products not found or not published in shop").
				WithDetails(map[string]any{"product_ids": ids})
		}
	}

	productIDs := make([]string, 0, len(input.ProductIDs))
	for _, id := range input.ProductIDs {
		productIDs = append(productIDs, id.String())
	}

	discount := &models.Discount{
		ID:             uuid.New(),
		ShopID:         shopID,
		Code:           normalizeCode(input.Code),
		Name:           strings.TrimSpace(input.Name),
		Description:    input.Description,
		Type:           input.Type,
		Value:          input.Value,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		MaxUses:        input.MaxUses,
		MaxUsesPerUser: input.MaxUsesPerUser,
		MinOrderValue:  input.MinOrderValue,
		AppliesTo:      input.AppliesTo,
		ProductIDs:     productIDs,
		IsActive:       true,
	}
	return s.repo.Create(ctx, discount)
}

// UpdateDiscount edits a shop's code. Expired codes are frozen, and the code
// string itself cannot change once the activation window has opened.
func (s *service) UpdateDiscount(ctx context.Context, shopID, discountID uuid.UUID, input UpdateDiscountInput) (*models.Discount, error) {
	discount, err := s.repo.FindByID(ctx, discountID)
	if err != nil {
		return nil, err
	}
	if discount.ShopID != shopID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount not found")
	}

	now := s.now()
	if now.After(discount.EndDate) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "expired discounts cannot be updated")
	}
	if input.Code != nil && normalizeCode(*input.Code) != discount.Code {
		if !now.Before(discount.StartDate) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "code cannot change after the discount has started")
		}
		if strings.TrimSpace(*input.Code) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
		}
		discount.Code = normalizeCode(*input.Code)
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
		}
		discount.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		discount.Description = *input.Description
	}
	if input.Value != nil {
		if *input.Value <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "value must be positive")
		}
		if discount.Type == enums.DiscountTypePercentage && *input.Value > 100 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage cannot exceed 100")
		}
		discount.Value = *input.Value
	}
	if input.EndDate != nil {
		if !input.EndDate.After(discount.StartDate) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
		}
		discount.EndDate = *input.EndDate
	}
	if input.MaxUses != nil {
		if *input.MaxUses <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "max uses must be positive when set")
		}
		if *input.MaxUses < discount.UsedCount+discount.PendingCount {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "max uses cannot drop below allocations already handed out")
		}
		discount.MaxUses = input.MaxUses
	}
	if input.MaxUsesPerUser != nil {
		if *input.MaxUsesPerUser <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "max uses per user must be positive")
		}
		discount.MaxUsesPerUser = *input.MaxUsesPerUser
	}
	if input.MinOrderValue != nil {
		if *input.MinOrderValue < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "min order value cannot be negative")
		}
		discount.MinOrderValue = *input.MinOrderValue
	}

	return s.repo.Update(ctx, discount)
}

// DeactivateDiscount turns off a shop's code. Existing pending uses drain
// through their normal confirm/release path.
func (s *service) DeactivateDiscount(ctx context.Context, shopID, discountID uuid.UUID) error {
	return s.repo.SetActive(ctx, shopID, discountID, false)
}

// ListShopDiscounts returns the shop's codes for the merchant dashboard.
func (s *service) ListShopDiscounts(ctx context.Context, shopID uuid.UUID) ([]models.Discount, error) {
	return s.repo.ListByShop(ctx, shopID)
}

// ListProductsForDiscount returns the live listings a code applies to: its
// scoped products for product-scoped codes, the shop's whole published
// catalog otherwise.
func (s *service) ListProductsForDiscount(ctx context.Context, shopID, discountID uuid.UUID) ([]models.Product, error) {
	discount, err := s.repo.FindByID(ctx, discountID)
	if err != nil {
		return nil, err
	}
	if discount.ShopID != shopID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount not found")
	}

	if discount.AppliesTo != enums.DiscountAppliesToSpecific {
		return s.catalog.ListPublishedProducts(ctx, shopID, nil)
	}

	ids := make([]uuid.UUID, 0, len(discount.ProductIDs))
	for _, raw := range discount.ProductIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return s.catalog.ListPublishedProducts(ctx, shopID, ids)
}

// GetDiscount loads one discount by ID.
func (s *service) GetDiscount(ctx context.Context, discountID uuid.UUID) (*models.Discount, error) {
	return s.repo.FindByID(ctx, discountID)
}

func eligibleSubtotal(discount *models.Discount, items []EligibleItem) int {
	total := 0
	for _, item := range items {
		if discount.AppliesToProduct(item.ProductID) {
			total += item.Subtotal
		}
	}
	return total
}

// discountAmount computes cents taken off the eligible subtotal. Percentage
// math goes through decimal and floors, so the buyer is never over-credited
// by a rounding step.
func discountAmount(discount *models.Discount, eligible int) int {
	switch discount.Type {
	case enums.DiscountTypePercentage:
		amount := decimal.NewFromInt(int64(eligible)).
			Mul(decimal.NewFromInt(int64(discount.Value))).
			Div(decimal.NewFromInt(100)).
			Floor()
		return int(amount.IntPart())
	default:
		if discount.Value > eligible {
			return eligible
		}
		return discount.Value
	}
}

func validateCreateInput(input CreateDiscountInput) error {
	if strings.TrimSpace(input.Code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown discount type")
	}
	if input.Value <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "value must be positive")
	}
	if input.Type == enums.DiscountTypePercentage && input.Value > 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage cannot exceed 100")
	}
	if !input.EndDate.After(input.StartDate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
	}
	if input.MaxUses != nil && *input.MaxUses <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max uses must be positive when set")
	}
	if input.MaxUsesPerUser <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max uses per user must be positive")
	}
	if input.MinOrderValue < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min order value cannot be negative")
	}
	if !input.AppliesTo.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown applies_to value")
	}
	if input.AppliesTo == enums.DiscountAppliesToSpecific && len(input.ProductIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "specific discounts need at least one product")
	}
	return nil
}
