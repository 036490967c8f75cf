package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupAffiliateRepositoryTest(t *testing.T) (*GormAffiliateRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:affiliate_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Affiliate{},
		&models.ReferralClick{},
		&models.ReferralConversion{},
		&models.AffiliateEarning{},
		&models.AffiliateDeduction{},
		&models.AffiliatePayout{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewAffiliateRepository(db), db
}

func createTestAffiliate(t *testing.T, db *gorm.DB, email, code string) models.Affiliate {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	user := models.User{
		Email:       email,
		DisplayName: "Tester",
		Status:      constants.UserStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	affiliate := models.Affiliate{
		UserID:             user.ID,
		ReferralCode:       code,
		CommissionRate:     models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		MinPayoutThreshold: models.NewMoneyFromDecimal(decimal.NewFromInt(25)),
		PendingBalance:     models.NewMoneyFromDecimal(decimal.Zero),
		TotalEarnings:      models.NewMoneyFromDecimal(decimal.Zero),
		Status:             constants.AffiliateStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := db.Create(&affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return affiliate
}

func TestAffiliateRepositoryApplyBalanceDelta(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, "delta_repo@example.com", "DELTA01")
	now := time.Now().UTC()

	t.Run("positive delta accumulates", func(t *testing.T) {
		amount := decimal.RequireFromString("2.50")
		if err := repo.ApplyBalanceDelta(affiliate.ID, amount, amount, now); err != nil {
			t.Fatalf("apply delta failed: %v", err)
		}
		got, err := repo.GetByID(affiliate.ID)
		if err != nil {
			t.Fatalf("get affiliate failed: %v", err)
		}
		if !got.PendingBalance.Decimal.Equal(amount) {
			t.Fatalf("pending want 2.50 got %s", got.PendingBalance)
		}
		if !got.TotalEarnings.Decimal.Equal(amount) {
			t.Fatalf("total want 2.50 got %s", got.TotalEarnings)
		}
	})

	t.Run("negative delta floors at zero", func(t *testing.T) {
		over := decimal.RequireFromString("-10.00")
		if err := repo.ApplyBalanceDelta(affiliate.ID, over, over, now); err != nil {
			t.Fatalf("apply negative delta failed: %v", err)
		}
		got, err := repo.GetByID(affiliate.ID)
		if err != nil {
			t.Fatalf("get affiliate failed: %v", err)
		}
		if !got.PendingBalance.Decimal.IsZero() {
			t.Fatalf("pending want 0 got %s", got.PendingBalance)
		}
		if !got.TotalEarnings.Decimal.IsZero() {
			t.Fatalf("total want 0 got %s", got.TotalEarnings)
		}
	})

	t.Run("zero affiliate id is a no-op", func(t *testing.T) {
		if err := repo.ApplyBalanceDelta(0, decimal.NewFromInt(1), decimal.Zero, now); err != nil {
			t.Fatalf("apply delta failed: %v", err)
		}
	})
}

func TestAffiliateRepositoryConversionUnique(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, "conv_repo@example.com", "CONV01")

	conversion := models.ReferralConversion{
		AffiliateID:    affiliate.ID,
		ReferredUserID: 9001,
	}
	if err := repo.CreateConversion(&conversion); err != nil {
		t.Fatalf("create conversion failed: %v", err)
	}

	duplicate := models.ReferralConversion{
		AffiliateID:    affiliate.ID,
		ReferredUserID: 9001,
	}
	if err := repo.CreateConversion(&duplicate); err == nil {
		t.Fatal("expected unique violation on duplicate conversion")
	}

	got, err := repo.GetConversionByReferredUser(9001)
	if err != nil {
		t.Fatalf("get conversion failed: %v", err)
	}
	if got == nil || got.ID != conversion.ID {
		t.Fatalf("unexpected conversion lookup result: %+v", got)
	}
}

func TestAffiliateRepositoryEarningUnique(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, "earning_repo@example.com", "EARN01")
	amount := models.NewMoneyFromDecimal(decimal.RequireFromString("2.50"))

	earning := models.AffiliateEarning{
		AffiliateID: affiliate.ID,
		PaymentRef:  "cs_test_001",
		BaseAmount:  models.NewMoneyFromDecimal(decimal.NewFromInt(5)),
		RatePercent: models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Amount:      amount,
	}
	if err := repo.CreateEarning(&earning); err != nil {
		t.Fatalf("create earning failed: %v", err)
	}

	duplicate := models.AffiliateEarning{
		AffiliateID: affiliate.ID,
		PaymentRef:  "cs_test_001",
		Amount:      amount,
	}
	if err := repo.CreateEarning(&duplicate); err == nil {
		t.Fatal("expected unique violation on duplicate payment_ref")
	}

	other := models.AffiliateEarning{
		AffiliateID: affiliate.ID,
		PaymentRef:  "in_test_002",
		Amount:      amount,
	}
	if err := repo.CreateEarning(&other); err != nil {
		t.Fatalf("create second earning failed: %v", err)
	}

	total, err := repo.SumEarningsByAffiliate(affiliate.ID)
	if err != nil {
		t.Fatalf("sum earnings failed: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("sum want 5.00 got %s", total)
	}
}

func TestAffiliateRepositoryDeductionUnique(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, "deduction_repo@example.com", "DEDUCT01")

	deduction := models.AffiliateDeduction{
		AffiliateID: affiliate.ID,
		RefundRef:   "re_test_001",
		Amount:      models.NewMoneyFromDecimal(decimal.RequireFromString("2.50")),
		Reason:      constants.DeductionReasonRefund,
	}
	if err := repo.CreateDeduction(&deduction); err != nil {
		t.Fatalf("create deduction failed: %v", err)
	}

	duplicate := models.AffiliateDeduction{
		AffiliateID: affiliate.ID,
		RefundRef:   "re_test_001",
		Amount:      models.NewMoneyFromDecimal(decimal.RequireFromString("2.50")),
	}
	if err := repo.CreateDeduction(&duplicate); err == nil {
		t.Fatal("expected unique violation on duplicate refund_ref")
	}

	got, err := repo.GetDeductionByRefundRef(affiliate.ID, "re_test_001")
	if err != nil {
		t.Fatalf("get deduction failed: %v", err)
	}
	if got == nil || got.ID != deduction.ID {
		t.Fatalf("unexpected deduction lookup result: %+v", got)
	}
}

func TestAffiliateRepositoryListPayouts(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	now := time.Now().UTC().Truncate(time.Second)
	alpha := createTestAffiliate(t, db, "alpha_payout_repo@example.com", "ALPHA01")
	beta := createTestAffiliate(t, db, "beta_payout_repo@example.com", "BETA01")

	payouts := []models.AffiliatePayout{
		{
			AffiliateID: alpha.ID,
			Amount:      models.NewMoneyFromDecimal(decimal.RequireFromString("30.00")),
			Status:      constants.PayoutStatusPending,
			CreatedAt:   now.Add(-2 * time.Hour),
			UpdatedAt:   now.Add(-2 * time.Hour),
		},
		{
			AffiliateID: alpha.ID,
			Amount:      models.NewMoneyFromDecimal(decimal.RequireFromString("40.00")),
			Status:      constants.PayoutStatusPaid,
			TransferRef: "tr_test_001",
			PaidAt:      &now,
			CreatedAt:   now.Add(-1 * time.Hour),
			UpdatedAt:   now,
		},
		{
			AffiliateID: beta.ID,
			Amount:      models.NewMoneyFromDecimal(decimal.RequireFromString("25.00")),
			Status:      constants.PayoutStatusCompleted,
			TransferRef: "tr_test_002",
			PaidAt:      &now,
			CreatedAt:   now.Add(-30 * time.Minute),
			UpdatedAt:   now,
		},
	}
	if err := db.Create(&payouts).Error; err != nil {
		t.Fatalf("create payouts failed: %v", err)
	}

	t.Run("filter by affiliate and status", func(t *testing.T) {
		rows, total, err := repo.ListPayouts(PayoutListFilter{
			Page:        1,
			PageSize:    20,
			AffiliateID: alpha.ID,
			Status:      constants.PayoutStatusPaid,
		})
		if err != nil {
			t.Fatalf("list payouts failed: %v", err)
		}
		if total != 1 || len(rows) != 1 {
			t.Fatalf("want 1 row got total=%d len=%d", total, len(rows))
		}
		if rows[0].TransferRef != "tr_test_001" {
			t.Fatalf("unexpected transfer_ref=%s", rows[0].TransferRef)
		}
	})

	t.Run("pending status blocks further requests", func(t *testing.T) {
		has, err := repo.HasPayoutInStatus(alpha.ID, []string{constants.PayoutStatusPending})
		if err != nil {
			t.Fatalf("has payout failed: %v", err)
		}
		if !has {
			t.Fatal("expected alpha to have a pending payout")
		}
		has, err = repo.HasPayoutInStatus(beta.ID, []string{constants.PayoutStatusPending})
		if err != nil {
			t.Fatalf("has payout failed: %v", err)
		}
		if has {
			t.Fatal("expected beta to have no pending payout")
		}
	})

	t.Run("paid out totals", func(t *testing.T) {
		total, err := repo.SumPayoutsByAffiliate(alpha.ID, []string{constants.PayoutStatusPaid, constants.PayoutStatusCompleted})
		if err != nil {
			t.Fatalf("sum payouts failed: %v", err)
		}
		if !total.Equal(decimal.RequireFromString("40.00")) {
			t.Fatalf("sum want 40.00 got %s", total)
		}
	})
}

func TestAffiliateRepositoryStatsBatch(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	now := time.Now().UTC()
	affiliate := createTestAffiliate(t, db, "stats_repo@example.com", "STATS01")

	clicks := []models.ReferralClick{
		{AffiliateID: affiliate.ID, Source: constants.ClickSourceDirect, ClientIP: "203.0.113.1", CreatedAt: now},
		{AffiliateID: affiliate.ID, Source: "https://blog.example.com", ClientIP: "203.0.113.2", CreatedAt: now},
	}
	if err := db.Create(&clicks).Error; err != nil {
		t.Fatalf("create clicks failed: %v", err)
	}
	if err := db.Create(&models.ReferralConversion{AffiliateID: affiliate.ID, ReferredUserID: 42}).Error; err != nil {
		t.Fatalf("create conversion failed: %v", err)
	}
	earnings := []models.AffiliateEarning{
		{AffiliateID: affiliate.ID, PaymentRef: "cs_stats_1", Amount: models.NewMoneyFromDecimal(decimal.RequireFromString("2.50"))},
		{AffiliateID: affiliate.ID, PaymentRef: "in_stats_2", Amount: models.NewMoneyFromDecimal(decimal.RequireFromString("2.50"))},
	}
	if err := db.Create(&earnings).Error; err != nil {
		t.Fatalf("create earnings failed: %v", err)
	}
	if err := db.Create(&models.AffiliateDeduction{
		AffiliateID: affiliate.ID,
		RefundRef:   "re_stats_1",
		Amount:      models.NewMoneyFromDecimal(decimal.RequireFromString("2.50")),
	}).Error; err != nil {
		t.Fatalf("create deduction failed: %v", err)
	}

	stats, err := repo.GetStatsBatch([]uint{affiliate.ID})
	if err != nil {
		t.Fatalf("stats batch failed: %v", err)
	}
	item, ok := stats[affiliate.ID]
	if !ok {
		t.Fatal("missing stats entry")
	}
	if item.ClickCount != 2 {
		t.Fatalf("click count want 2 got %d", item.ClickCount)
	}
	if item.ConversionCount != 1 {
		t.Fatalf("conversion count want 1 got %d", item.ConversionCount)
	}
	if !item.EarningTotal.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("earning total want 5.00 got %s", item.EarningTotal)
	}
	if !item.DeductionTotal.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("deduction total want 2.50 got %s", item.DeductionTotal)
	}
}
