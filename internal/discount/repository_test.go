package discount

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/pkg/db/models"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
)

type gormTxRunner struct {
	conn *gorm.DB
}

func (g gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return g.conn.Transaction(fn)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:discount_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Discount{}, &models.DiscountUsage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedDiscount(t *testing.T, conn *gorm.DB, mutate func(*models.Discount)) *models.Discount {
	t.Helper()
	now := time.Now()
	discount := &models.Discount{
		ID:             uuid.New(),
		ShopID:         uuid.New(),
		Code:           "SAVE10",
		Name:           "Ten Off",
		Type:           enums.DiscountTypeFixed,
		Value:          1000,
		StartDate:      now.Add(-time.Hour),
		EndDate:        now.Add(time.Hour),
		MaxUsesPerUser: 1,
		AppliesTo:      enums.DiscountAppliesToAll,
		IsActive:       true,
	}
	if mutate != nil {
		mutate(discount)
	}
	if err := conn.Create(discount).Error; err != nil {
		t.Fatalf("seed discount: %v", err)
	}
	return discount
}

func reloadDiscount(t *testing.T, conn *gorm.DB, id uuid.UUID) *models.Discount {
	t.Helper()
	var discount models.Discount
	if err := conn.First(&discount, "id = ?", id).Error; err != nil {
		t.Fatalf("reload discount: %v", err)
	}
	return &discount
}

func reserveInTx(t *testing.T, conn *gorm.DB, repo *Repository, discountID, userID uuid.UUID, maxPerUser int) error {
	t.Helper()
	return gormTxRunner{conn: conn}.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.WithTx(tx).ReserveForUser(context.Background(), discountID, userID, maxPerUser)
	})
}

func TestReserveForUserMovesCounters(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	maxUses := 5
	discount := seedDiscount(t, conn, func(d *models.Discount) { d.MaxUses = &maxUses })
	userID := uuid.New()

	if err := reserveInTx(t, conn, repo, discount.ID, userID, discount.MaxUsesPerUser); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got := reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 1 || got.UsedCount != 0 {
		t.Fatalf("expected pending=1 used=0, got pending=%d used=%d", got.PendingCount, got.UsedCount)
	}

	usage, err := repo.UsageFor(ctx, discount.ID, userID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.PendingCount != 1 || usage.UsedCount != 0 {
		t.Fatalf("expected user pending=1 used=0, got pending=%d used=%d", usage.PendingCount, usage.UsedCount)
	}
}

func TestReserveForUserGlobalBudgetExhausted(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)

	maxUses := 1
	discount := seedDiscount(t, conn, func(d *models.Discount) { d.MaxUses = &maxUses })

	if err := reserveInTx(t, conn, repo, discount.ID, uuid.New(), 1); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	err := reserveInTx(t, conn, repo, discount.ID, uuid.New(), 1)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLimitExceeded {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLimitExceeded, err)
	}

	got := reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 1 {
		t.Fatalf("refused reserve must not move the counter, got pending=%d", got.PendingCount)
	}
}

func TestReserveForUserPerUserCapRollsBackGlobal(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)

	discount := seedDiscount(t, conn, nil) // MaxUses nil, per-user cap 1
	userID := uuid.New()

	if err := reserveInTx(t, conn, repo, discount.ID, userID, 1); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	err := reserveInTx(t, conn, repo, discount.ID, userID, 1)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLimitExceeded {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLimitExceeded, err)
	}

	// the transaction must undo the global increment made before the
	// per-user guard refused
	got := reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 1 {
		t.Fatalf("expected pending=1 after rollback, got %d", got.PendingCount)
	}
}

func TestReserveForUserInactiveDiscount(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)

	discount := seedDiscount(t, conn, func(d *models.Discount) { d.IsActive = false })

	err := reserveInTx(t, conn, repo, discount.ID, uuid.New(), 1)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLimitExceeded {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLimitExceeded, err)
	}
}

func TestConfirmForUserCommitsPendingUse(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	discount := seedDiscount(t, conn, nil)
	userID := uuid.New()

	if err := reserveInTx(t, conn, repo, discount.ID, userID, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := repo.ConfirmForUser(ctx, discount.ID, userID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	got := reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 0 || got.UsedCount != 1 {
		t.Fatalf("expected pending=0 used=1, got pending=%d used=%d", got.PendingCount, got.UsedCount)
	}

	usage, err := repo.UsageFor(ctx, discount.ID, userID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.PendingCount != 0 || usage.UsedCount != 1 {
		t.Fatalf("expected user pending=0 used=1, got pending=%d used=%d", usage.PendingCount, usage.UsedCount)
	}
}

func TestConfirmForUserWithoutPending(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)

	discount := seedDiscount(t, conn, nil)

	err := repo.ConfirmForUser(context.Background(), discount.ID, uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeConflict, err)
	}
}

func TestReleaseForUserHandsBackPendingUse(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	discount := seedDiscount(t, conn, nil)
	userID := uuid.New()

	if err := reserveInTx(t, conn, repo, discount.ID, userID, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := repo.ReleaseForUser(ctx, discount.ID, userID); err != nil {
		t.Fatalf("release: %v", err)
	}

	got := reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 0 || got.UsedCount != 0 {
		t.Fatalf("expected counters back to zero, got pending=%d used=%d", got.PendingCount, got.UsedCount)
	}

	// releasing again is a no-op so compensation can repeat safely
	if err := repo.ReleaseForUser(ctx, discount.ID, userID); err != nil {
		t.Fatalf("repeat release: %v", err)
	}
	got = reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 0 {
		t.Fatalf("repeat release moved pending to %d", got.PendingCount)
	}
}

func TestUnconfirmForUserHandsBackCommittedUse(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	discount := seedDiscount(t, conn, nil)
	userID := uuid.New()

	if err := reserveInTx(t, conn, repo, discount.ID, userID, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := repo.ConfirmForUser(ctx, discount.ID, userID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := repo.UnconfirmForUser(ctx, discount.ID, userID); err != nil {
		t.Fatalf("unconfirm: %v", err)
	}

	got := reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 1 || got.UsedCount != 0 {
		t.Fatalf("expected pending=1 used=0, got pending=%d used=%d", got.PendingCount, got.UsedCount)
	}
	usage, err := repo.UsageFor(ctx, discount.ID, userID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.PendingCount != 1 || usage.UsedCount != 0 {
		t.Fatalf("expected user pending=1 used=0, got pending=%d used=%d", usage.PendingCount, usage.UsedCount)
	}

	// unconfirming with nothing committed is a no-op so rollback can repeat
	if err := repo.UnconfirmForUser(ctx, discount.ID, userID); err != nil {
		t.Fatalf("repeat unconfirm: %v", err)
	}
	got = reloadDiscount(t, conn, discount.ID)
	if got.PendingCount != 1 || got.UsedCount != 0 {
		t.Fatalf("repeat unconfirm moved counters, pending=%d used=%d", got.PendingCount, got.UsedCount)
	}
}

func TestFindByShopAndCodeNormalizes(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	discount := seedDiscount(t, conn, nil)

	got, err := repo.FindByShopAndCode(ctx, discount.ShopID, "  save10 ")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != discount.ID {
		t.Fatalf("wrong discount loaded")
	}

	_, err = repo.FindByShopAndCode(ctx, discount.ShopID, "NOPE")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeNotFound, err)
	}
}
