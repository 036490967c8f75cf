package service

import (
	"testing"

	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/models"

	"github.com/shopspring/decimal"
)

func TestAccrueCommission(t *testing.T) {
	t.Run("accrues half of base amount", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "accrue@example.com", "ACCRUE01")

		result, err := env.commissionSvc.AccrueCommission(affiliate.ID, "cs_accrue_1", decimal.NewFromInt(10), nil)
		if err != nil {
			t.Fatalf("AccrueCommission failed: %v", err)
		}
		if !result.Applied {
			t.Fatal("expected accrual to apply")
		}
		if result.Amount.Decimal.String() != "5" {
			t.Fatalf("expected amount 5, got %s", result.Amount.Decimal.String())
		}

		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "5" {
			t.Fatalf("expected pending balance 5, got %s", reloaded.PendingBalance.Decimal.String())
		}
		if reloaded.TotalEarnings.Decimal.String() != "5" {
			t.Fatalf("expected total earnings 5, got %s", reloaded.TotalEarnings.Decimal.String())
		}
	})

	t.Run("duplicate payment ref does not double credit", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "dup@example.com", "DUPREF01")

		if _, err := env.commissionSvc.AccrueCommission(affiliate.ID, "cs_dup", decimal.NewFromInt(10), nil); err != nil {
			t.Fatalf("first accrual failed: %v", err)
		}
		second, err := env.commissionSvc.AccrueCommission(affiliate.ID, "cs_dup", decimal.NewFromInt(10), nil)
		if err != nil {
			t.Fatalf("second accrual failed: %v", err)
		}
		if second.Applied {
			t.Fatal("expected duplicate accrual to be skipped")
		}

		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "5" {
			t.Fatalf("expected pending balance 5 after duplicate, got %s", reloaded.PendingBalance.Decimal.String())
		}
		var count int64
		if err := env.db.Model(&models.AffiliateEarning{}).Where("affiliate_id = ?", affiliate.ID).Count(&count).Error; err != nil {
			t.Fatalf("count earnings failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 earning row, got %d", count)
		}
	})

	t.Run("threshold crossing reported exactly once", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "cross@example.com", "CROSS001")

		// 3 × (40 × 50%) = 60：第二笔越过 25 的阈值，其余两笔都不算越过
		first, err := env.commissionSvc.AccrueCommission(affiliate.ID, "cs_cross_1", decimal.NewFromInt(40), nil)
		if err != nil {
			t.Fatalf("first accrual failed: %v", err)
		}
		if first.CrossedThreshold {
			t.Fatal("20 < 25 should not cross threshold")
		}
		second, err := env.commissionSvc.AccrueCommission(affiliate.ID, "cs_cross_2", decimal.NewFromInt(40), nil)
		if err != nil {
			t.Fatalf("second accrual failed: %v", err)
		}
		if !second.CrossedThreshold {
			t.Fatal("expected second accrual to cross threshold")
		}
		third, err := env.commissionSvc.AccrueCommission(affiliate.ID, "cs_cross_3", decimal.NewFromInt(40), nil)
		if err != nil {
			t.Fatalf("third accrual failed: %v", err)
		}
		if third.CrossedThreshold {
			t.Fatal("threshold already crossed, third accrual should not report crossing")
		}
	})

	t.Run("inactive affiliate skipped silently", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "frozen@example.com", "FROZEN01")
		if err := env.db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
			Update("status", constants.AffiliateStatusDisabled).Error; err != nil {
			t.Fatalf("disable affiliate failed: %v", err)
		}

		result, err := env.commissionSvc.AccrueCommission(affiliate.ID, "cs_frozen", decimal.NewFromInt(10), nil)
		if err != nil {
			t.Fatalf("AccrueCommission failed: %v", err)
		}
		if result.Applied {
			t.Fatal("expected accrual to be skipped for disabled affiliate")
		}
		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if !reloaded.PendingBalance.Decimal.IsZero() {
			t.Fatalf("expected zero pending balance, got %s", reloaded.PendingBalance.Decimal.String())
		}
	})

	t.Run("unknown affiliate and empty ref are no-ops", func(t *testing.T) {
		env := newServiceTestEnv(t)
		if result, err := env.commissionSvc.AccrueCommission(9999, "cs_ghost", decimal.NewFromInt(10), nil); err != nil || result.Applied {
			t.Fatalf("expected silent skip for unknown affiliate, got applied=%v err=%v", result.Applied, err)
		}
		affiliate := env.createAffiliate(t, "noref@example.com", "NOREF001")
		if result, err := env.commissionSvc.AccrueCommission(affiliate.ID, "  ", decimal.NewFromInt(10), nil); err != nil || result.Applied {
			t.Fatalf("expected silent skip for blank ref, got applied=%v err=%v", result.Applied, err)
		}
	})
}

func TestReverseCommission(t *testing.T) {
	seedConversionWithEarning := func(t *testing.T, env *serviceTestEnv, email, code, paymentRef string, base int64) (models.Affiliate, models.User) {
		t.Helper()
		affiliate := env.createAffiliate(t, "owner-"+email, code)
		referred := env.createUser(t, email)
		if _, _, err := env.affiliateSvc.RecordConversionIfAbsent(affiliate.ID, referred.ID); err != nil {
			t.Fatalf("record conversion failed: %v", err)
		}
		if _, err := env.commissionSvc.AccrueCommission(affiliate.ID, paymentRef, decimal.NewFromInt(base), nil); err != nil {
			t.Fatalf("seed accrual failed: %v", err)
		}
		return affiliate, referred
	}

	t.Run("deducts commission share of refund", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate, _ := seedConversionWithEarning(t, env, "buyer@example.com", "REVERSE1", "in_rev_1", 10)

		result, err := env.commissionSvc.ReverseCommission("buyer@example.com", decimal.NewFromInt(4), "re_rev_1", "in_rev_1")
		if err != nil {
			t.Fatalf("ReverseCommission failed: %v", err)
		}
		if !result.Applied {
			t.Fatal("expected reversal to apply")
		}
		if result.Amount.Decimal.String() != "2" {
			t.Fatalf("expected deduction 2, got %s", result.Amount.Decimal.String())
		}

		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "3" {
			t.Fatalf("expected pending balance 3, got %s", reloaded.PendingBalance.Decimal.String())
		}
		if reloaded.TotalEarnings.Decimal.String() != "3" {
			t.Fatalf("expected total earnings 3, got %s", reloaded.TotalEarnings.Decimal.String())
		}
	})

	t.Run("deduction links the original earning by payment ref", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate, _ := seedConversionWithEarning(t, env, "linked@example.com", "LINKED01", "in_link_1", 10)

		if _, err := env.commissionSvc.ReverseCommission("linked@example.com", decimal.NewFromInt(4), "re_link_1", "in_link_1"); err != nil {
			t.Fatalf("ReverseCommission failed: %v", err)
		}

		earning, err := env.repo.GetEarningByPaymentRef(affiliate.ID, "in_link_1")
		if err != nil || earning == nil {
			t.Fatalf("load earning failed: %v", err)
		}
		var deduction models.AffiliateDeduction
		if err := env.db.Where("affiliate_id = ? AND refund_ref = ?", affiliate.ID, "re_link_1").First(&deduction).Error; err != nil {
			t.Fatalf("load deduction failed: %v", err)
		}
		if deduction.EarningID == nil || *deduction.EarningID != earning.ID {
			t.Fatalf("expected deduction linked to earning %d, got %v", earning.ID, deduction.EarningID)
		}

		// 退款引用从不作为入账键匹配
		if got, err := env.repo.GetEarningByPaymentRef(affiliate.ID, "re_link_1"); err != nil || got != nil {
			t.Fatalf("refund ref must not resolve an earning, got %v err=%v", got, err)
		}
	})

	t.Run("balance floors at zero", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate, _ := seedConversionWithEarning(t, env, "floor@example.com", "FLOORED1", "in_floor_1", 10)

		// 退款 100 → 扣减 50，远超余额 5，落到 0 而不是负数
		result, err := env.commissionSvc.ReverseCommission("floor@example.com", decimal.NewFromInt(100), "re_floor_1", "in_floor_1")
		if err != nil {
			t.Fatalf("ReverseCommission failed: %v", err)
		}
		if !result.Applied {
			t.Fatal("expected reversal to apply")
		}

		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if !reloaded.PendingBalance.Decimal.IsZero() {
			t.Fatalf("expected pending balance 0, got %s", reloaded.PendingBalance.Decimal.String())
		}
		if !reloaded.TotalEarnings.Decimal.IsZero() {
			t.Fatalf("expected total earnings 0, got %s", reloaded.TotalEarnings.Decimal.String())
		}
	})

	t.Run("duplicate refund ref recorded once", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate, _ := seedConversionWithEarning(t, env, "dupref@example.com", "DUPREV01", "in_dup_1", 10)

		if _, err := env.commissionSvc.ReverseCommission("dupref@example.com", decimal.NewFromInt(4), "re_dup_1", "in_dup_1"); err != nil {
			t.Fatalf("first reversal failed: %v", err)
		}
		second, err := env.commissionSvc.ReverseCommission("dupref@example.com", decimal.NewFromInt(4), "re_dup_1", "in_dup_1")
		if err != nil {
			t.Fatalf("second reversal failed: %v", err)
		}
		if second.Applied {
			t.Fatal("expected duplicate reversal to be skipped")
		}

		reloaded := env.reloadAffiliate(t, affiliate.ID)
		if reloaded.PendingBalance.Decimal.String() != "3" {
			t.Fatalf("expected pending balance 3 after duplicate, got %s", reloaded.PendingBalance.Decimal.String())
		}
		var count int64
		if err := env.db.Model(&models.AffiliateDeduction{}).Where("affiliate_id = ?", affiliate.ID).Count(&count).Error; err != nil {
			t.Fatalf("count deductions failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 deduction row, got %d", count)
		}
	})

	t.Run("unattributed customer skipped silently", func(t *testing.T) {
		env := newServiceTestEnv(t)
		env.createUser(t, "organic@example.com")

		result, err := env.commissionSvc.ReverseCommission("organic@example.com", decimal.NewFromInt(4), "re_organic", "")
		if err != nil {
			t.Fatalf("ReverseCommission failed: %v", err)
		}
		if result.Applied {
			t.Fatal("expected reversal skipped for customer without conversion")
		}
	})

	t.Run("unknown email skipped silently", func(t *testing.T) {
		env := newServiceTestEnv(t)
		result, err := env.commissionSvc.ReverseCommission("ghost@example.com", decimal.NewFromInt(4), "re_ghost", "")
		if err != nil {
			t.Fatalf("ReverseCommission failed: %v", err)
		}
		if result.Applied {
			t.Fatal("expected reversal skipped for unknown email")
		}
	})
}
