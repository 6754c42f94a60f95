package discount

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopmesh-io/backend/pkg/db"
	"github.com/shopmesh-io/backend/pkg/db/models"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
)

// Repository persists discount codes and their allocation counters. All
// counter motion happens through guarded updates so concurrent checkouts can
// never push a code past its budget.
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

// Create inserts a new discount code.
func (r *Repository) Create(ctx context.Context, discount *models.Discount) (*models.Discount, error) {
	err := r.db.WithContext(ctx).Create(discount).Error
	if err != nil && db.IsUniqueViolation(err) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "discount code already exists for shop")
	}
	if err != nil {
		return nil, err
	}
	return discount, nil
}

// Update saves mutable discount fields.
func (r *Repository) Update(ctx context.Context, discount *models.Discount) (*models.Discount, error) {
	if err := r.db.WithContext(ctx).Save(discount).Error; err != nil {
		return nil, err
	}
	return discount, nil
}

// FindByID loads a discount by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
	var discount models.Discount
	err := r.db.WithContext(ctx).First(&discount, "id = ?", id).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount not found")
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

// FindByShopAndCode loads a discount by its natural key.
func (r *Repository) FindByShopAndCode(ctx context.Context, shopID uuid.UUID, code string) (*models.Discount, error) {
	var discount models.Discount
	err := r.db.WithContext(ctx).
		First(&discount, "shop_id = ? AND code = ?", shopID, normalizeCode(code)).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "discount not found")
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

// ListByShop returns all codes owned by the shop, newest first.
func (r *Repository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]models.Discount, error) {
	var discounts []models.Discount
	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("created_at DESC").
		Find(&discounts).Error
	if err != nil {
		return nil, err
	}
	return discounts, nil
}

// SetActive flips the is_active flag for a shop's discount.
func (r *Repository) SetActive(ctx context.Context, shopID, discountID uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Discount{}).
		Where("id = ? AND shop_id = ?", discountID, shopID).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "discount not found for shop")
	}
	return nil
}

// ReserveForUser moves one use into pending for both the global and per-user
// counters. Both guards live in the UPDATE itself; the caller's transaction
// rolls the global increment back when the per-user guard refuses.
func (r *Repository) ReserveForUser(ctx context.Context, discountID, userID uuid.UUID, maxUsesPerUser int) error {
	global := r.db.WithContext(ctx).
		Model(&models.Discount{}).
		Where("id = ? AND is_active = ? AND (max_uses IS NULL OR used_count + pending_count < max_uses)",
			discountID, true).
		Update("pending_count", gorm.Expr("pending_count + 1"))
	if global.Error != nil {
		return global.Error
	}
	if global.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "discount allocation exhausted")
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "discount_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&models.DiscountUsage{DiscountID: discountID, UserID: userID}).Error; err != nil {
		return err
	}

	perUser := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ? AND user_id = ? AND used_count + pending_count < ?",
			discountID, userID, maxUsesPerUser).
		Update("pending_count", gorm.Expr("pending_count + 1"))
	if perUser.Error != nil {
		return perUser.Error
	}
	if perUser.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "per-user discount limit reached")
	}
	return nil
}

// ConfirmForUser converts one pending use into a committed use on both
// counters. A missing pending use means the allocation lifecycle was broken.
func (r *Repository) ConfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error {
	global := r.db.WithContext(ctx).
		Model(&models.Discount{}).
		Where("id = ? AND pending_count > 0", discountID).
		Updates(map[string]any{
			"pending_count": gorm.Expr("pending_count - 1"),
			"used_count":    gorm.Expr("used_count + 1"),
		})
	if global.Error != nil {
		return global.Error
	}
	if global.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "no pending discount use to confirm")
	}

	perUser := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ? AND user_id = ? AND pending_count > 0", discountID, userID).
		Updates(map[string]any{
			"pending_count": gorm.Expr("pending_count - 1"),
			"used_count":    gorm.Expr("used_count + 1"),
		})
	if perUser.Error != nil {
		return perUser.Error
	}
	if perUser.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "no pending per-user discount use to confirm")
	}
	return nil
}

// UnconfirmForUser moves one committed use back to pending on both counters,
// for checkouts that abort after their coupons were confirmed. Unconfirming
// when nothing was committed is a no-op so rollback can run more than once.
func (r *Repository) UnconfirmForUser(ctx context.Context, discountID, userID uuid.UUID) error {
	perUser := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ? AND user_id = ? AND used_count > 0", discountID, userID).
		Updates(map[string]any{
			"used_count":    gorm.Expr("used_count - 1"),
			"pending_count": gorm.Expr("pending_count + 1"),
		})
	if perUser.Error != nil {
		return perUser.Error
	}
	if perUser.RowsAffected == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&models.Discount{}).
		Where("id = ? AND used_count > 0", discountID).
		Updates(map[string]any{
			"used_count":    gorm.Expr("used_count - 1"),
			"pending_count": gorm.Expr("pending_count + 1"),
		}).Error
}

// ReleaseForUser hands one pending use back on both counters. Releasing when
// nothing is pending is a no-op so compensation can run more than once.
func (r *Repository) ReleaseForUser(ctx context.Context, discountID, userID uuid.UUID) error {
	perUser := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ? AND user_id = ? AND pending_count > 0", discountID, userID).
		Update("pending_count", gorm.Expr("pending_count - 1"))
	if perUser.Error != nil {
		return perUser.Error
	}
	if perUser.RowsAffected == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&models.Discount{}).
		Where("id = ? AND pending_count > 0", discountID).
		Update("pending_count", gorm.Expr("pending_count - 1")).Error
}

// UsageFor returns the per-user counters, zero-valued when no row exists yet.
func (r *Repository) UsageFor(ctx context.Context, discountID, userID uuid.UUID) (*models.DiscountUsage, error) {
	var usage models.DiscountUsage
	err := r.db.WithContext(ctx).
		First(&usage, "discount_id = ? AND user_id = ?", discountID, userID).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return &models.DiscountUsage{DiscountID: discountID, UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
