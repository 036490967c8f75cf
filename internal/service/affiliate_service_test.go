package service

import (
	"errors"
	"testing"

	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/models"
)

func TestOpenAffiliate(t *testing.T) {
	t.Run("creates account with program defaults", func(t *testing.T) {
		env := newServiceTestEnv(t)
		user := env.createUser(t, "opener@example.com")

		affiliate, err := env.affiliateSvc.OpenAffiliate(user.ID)
		if err != nil {
			t.Fatalf("OpenAffiliate failed: %v", err)
		}
		if affiliate == nil || affiliate.ID == 0 {
			t.Fatal("expected a persisted affiliate")
		}
		if affiliate.Status != constants.AffiliateStatusActive {
			t.Fatalf("expected active status, got %q", affiliate.Status)
		}
		if len(affiliate.ReferralCode) != affiliateCodeLength {
			t.Fatalf("expected a %d-char referral code, got %q", affiliateCodeLength, affiliate.ReferralCode)
		}
		if affiliate.CommissionRate.Decimal.String() != "50" {
			t.Fatalf("expected commission rate 50, got %s", affiliate.CommissionRate.Decimal.String())
		}
		if affiliate.MinPayoutThreshold.Decimal.String() != "25" {
			t.Fatalf("expected payout threshold 25, got %s", affiliate.MinPayoutThreshold.Decimal.String())
		}
	})

	t.Run("idempotent for already opened user", func(t *testing.T) {
		env := newServiceTestEnv(t)
		user := env.createUser(t, "twice@example.com")

		first, err := env.affiliateSvc.OpenAffiliate(user.ID)
		if err != nil {
			t.Fatalf("first OpenAffiliate failed: %v", err)
		}
		second, err := env.affiliateSvc.OpenAffiliate(user.ID)
		if err != nil {
			t.Fatalf("second OpenAffiliate failed: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("expected same affiliate, got %d and %d", first.ID, second.ID)
		}
		var count int64
		if err := env.db.Model(&models.Affiliate{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			t.Fatalf("count affiliates failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 affiliate row, got %d", count)
		}
	})

	t.Run("rejected when program disabled", func(t *testing.T) {
		env := newServiceTestEnv(t)
		user := env.createUser(t, "late@example.com")
		setting, err := env.settingService.GetAffiliateSetting()
		if err != nil {
			t.Fatalf("get affiliate setting failed: %v", err)
		}
		setting.Enabled = false
		if _, err := env.settingService.UpdateAffiliateSetting(setting); err != nil {
			t.Fatalf("update affiliate setting failed: %v", err)
		}

		if _, err := env.affiliateSvc.OpenAffiliate(user.ID); !errors.Is(err, ErrAffiliateDisabled) {
			t.Fatalf("expected ErrAffiliateDisabled, got %v", err)
		}
	})

	t.Run("rejected for disabled user", func(t *testing.T) {
		env := newServiceTestEnv(t)
		user := env.createUser(t, "banned@example.com")
		if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).
			Update("status", constants.UserStatusDisabled).Error; err != nil {
			t.Fatalf("disable user failed: %v", err)
		}

		if _, err := env.affiliateSvc.OpenAffiliate(user.ID); !errors.Is(err, ErrUserDisabled) {
			t.Fatalf("expected ErrUserDisabled, got %v", err)
		}
	})
}

func TestUpdateReferralCode(t *testing.T) {
	t.Run("normalizes to upper case", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "codes@example.com", "OLDCODE1")

		updated, err := env.affiliateSvc.UpdateReferralCode(affiliate.ID, "my-code_9")
		if err != nil {
			t.Fatalf("UpdateReferralCode failed: %v", err)
		}
		if updated.ReferralCode != "MY-CODE_9" {
			t.Fatalf("expected MY-CODE_9, got %q", updated.ReferralCode)
		}
	})

	t.Run("rejects invalid codes", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "strict@example.com", "STRICT01")

		for _, code := range []string{"abc", "waytoolongforareferralcode", "bad code", "no/slash", ""} {
			if _, err := env.affiliateSvc.UpdateReferralCode(affiliate.ID, code); !errors.Is(err, ErrAffiliateCodeInvalid) {
				t.Fatalf("code %q: expected ErrAffiliateCodeInvalid, got %v", code, err)
			}
		}
	})

	t.Run("rejects taken code", func(t *testing.T) {
		env := newServiceTestEnv(t)
		env.createAffiliate(t, "holder@example.com", "TAKEN001")
		affiliate := env.createAffiliate(t, "claimer@example.com", "CLAIM001")

		if _, err := env.affiliateSvc.UpdateReferralCode(affiliate.ID, "taken001"); !errors.Is(err, ErrAffiliateCodeTaken) {
			t.Fatalf("expected ErrAffiliateCodeTaken, got %v", err)
		}
	})

	t.Run("same code is a no-op", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "same@example.com", "SAME0001")

		updated, err := env.affiliateSvc.UpdateReferralCode(affiliate.ID, "same0001")
		if err != nil {
			t.Fatalf("UpdateReferralCode failed: %v", err)
		}
		if updated.ReferralCode != "SAME0001" {
			t.Fatalf("expected SAME0001, got %q", updated.ReferralCode)
		}
	})
}

func TestTrackClick(t *testing.T) {
	t.Run("records click for active code", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "clicks@example.com", "CLICKIT1")

		result, err := env.affiliateSvc.TrackClick(TrackClickInput{
			ReferralCode: "clickit1",
			LandingPath:  "/pricing",
			ClientIP:     "203.0.113.10",
			UserAgent:    "test-agent",
		})
		if err != nil {
			t.Fatalf("TrackClick failed: %v", err)
		}
		if !result.Recorded {
			t.Fatal("expected click to be recorded")
		}
		if result.AffiliateID != affiliate.ID {
			t.Fatalf("expected affiliate id %d, got %d", affiliate.ID, result.AffiliateID)
		}

		var click models.ReferralClick
		if err := env.db.Where("affiliate_id = ?", affiliate.ID).First(&click).Error; err != nil {
			t.Fatalf("load click failed: %v", err)
		}
		if click.Source != constants.ClickSourceDirect {
			t.Fatalf("expected default source, got %q", click.Source)
		}
	})

	t.Run("unknown code is a silent no-op", func(t *testing.T) {
		env := newServiceTestEnv(t)

		result, err := env.affiliateSvc.TrackClick(TrackClickInput{ReferralCode: "NOPE0001", ClientIP: "203.0.113.10"})
		if err != nil {
			t.Fatalf("TrackClick failed: %v", err)
		}
		if result.Recorded || result.AffiliateID != 0 {
			t.Fatalf("expected nothing recorded, got %+v", result)
		}
	})

	t.Run("repeat visits within dedupe window collapse", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "dedupe@example.com", "DEDUPE01")
		input := TrackClickInput{ReferralCode: "DEDUPE01", LandingPath: "/pricing", ClientIP: "203.0.113.20"}

		first, err := env.affiliateSvc.TrackClick(input)
		if err != nil {
			t.Fatalf("first TrackClick failed: %v", err)
		}
		if !first.Recorded {
			t.Fatal("expected first click recorded")
		}
		second, err := env.affiliateSvc.TrackClick(input)
		if err != nil {
			t.Fatalf("second TrackClick failed: %v", err)
		}
		if second.Recorded {
			t.Fatal("expected second click deduplicated")
		}
		if second.AffiliateID != affiliate.ID {
			t.Fatal("deduplicated click should still return the attribution token")
		}

		// 不同落地页不算重复
		other := input
		other.LandingPath = "/features"
		third, err := env.affiliateSvc.TrackClick(other)
		if err != nil {
			t.Fatalf("third TrackClick failed: %v", err)
		}
		if !third.Recorded {
			t.Fatal("expected click on a different landing path to be recorded")
		}
	})

	t.Run("disabled affiliate ignored", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "paused@example.com", "PAUSED01")
		if err := env.db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
			Update("status", constants.AffiliateStatusDisabled).Error; err != nil {
			t.Fatalf("disable affiliate failed: %v", err)
		}

		result, err := env.affiliateSvc.TrackClick(TrackClickInput{ReferralCode: "PAUSED01", ClientIP: "203.0.113.30"})
		if err != nil {
			t.Fatalf("TrackClick failed: %v", err)
		}
		if result.Recorded || result.AffiliateID != 0 {
			t.Fatalf("expected nothing recorded for disabled affiliate, got %+v", result)
		}
	})
}

func TestRecordConversionIfAbsent(t *testing.T) {
	t.Run("first conversion wins", func(t *testing.T) {
		env := newServiceTestEnv(t)
		first := env.createAffiliate(t, "first@example.com", "FIRST001")
		second := env.createAffiliate(t, "second@example.com", "SECOND01")
		referred := env.createUser(t, "referred@example.com")

		created, conversion, err := env.affiliateSvc.RecordConversionIfAbsent(first.ID, referred.ID)
		if err != nil {
			t.Fatalf("first RecordConversionIfAbsent failed: %v", err)
		}
		if !created || conversion == nil {
			t.Fatal("expected conversion created")
		}

		createdAgain, again, err := env.affiliateSvc.RecordConversionIfAbsent(first.ID, referred.ID)
		if err != nil {
			t.Fatalf("repeat RecordConversionIfAbsent failed: %v", err)
		}
		if createdAgain {
			t.Fatal("expected repeat call to reuse existing conversion")
		}
		if again.ID != conversion.ID {
			t.Fatal("expected the original conversion returned")
		}

		// 另一个推广账户对同一用户也无法再次绑定
		createdOther, _, err := env.affiliateSvc.RecordConversionIfAbsent(second.ID, referred.ID)
		if err != nil {
			t.Fatalf("competing RecordConversionIfAbsent failed: %v", err)
		}
		if createdOther {
			t.Fatal("expected competing affiliate not to steal the conversion")
		}
	})

	t.Run("self referral recorded but flagged", func(t *testing.T) {
		env := newServiceTestEnv(t)
		affiliate := env.createAffiliate(t, "selfie@example.com", "SELFIE01")

		created, conversion, err := env.affiliateSvc.RecordConversionIfAbsent(affiliate.ID, affiliate.UserID)
		if err != nil {
			t.Fatalf("RecordConversionIfAbsent failed: %v", err)
		}
		if !created || conversion == nil {
			t.Fatal("expected self referral conversion to be recorded")
		}
	})
}

func TestResolveAffiliateForAttribution(t *testing.T) {
	env := newServiceTestEnv(t)
	active := env.createAffiliate(t, "valid@example.com", "VALID001")
	disabled := env.createAffiliate(t, "invalid@example.com", "INVALID1")
	if err := env.db.Model(&models.Affiliate{}).Where("id = ?", disabled.ID).
		Update("status", constants.AffiliateStatusDisabled).Error; err != nil {
		t.Fatalf("disable affiliate failed: %v", err)
	}

	resolved, err := env.affiliateSvc.ResolveAffiliateForAttribution(active.ID)
	if err != nil {
		t.Fatalf("resolve active failed: %v", err)
	}
	if resolved == nil || resolved.ID != active.ID {
		t.Fatal("expected active affiliate resolved")
	}

	for _, id := range []uint{disabled.ID, 9999, 0} {
		resolved, err := env.affiliateSvc.ResolveAffiliateForAttribution(id)
		if err != nil {
			t.Fatalf("resolve %d failed: %v", id, err)
		}
		if resolved != nil {
			t.Fatalf("expected nil for token %d", id)
		}
	}
}

func TestGetDashboard(t *testing.T) {
	env := newServiceTestEnv(t)
	user := env.createUser(t, "dash@example.com")

	dashboard, err := env.affiliateSvc.GetDashboard(user.ID)
	if err != nil {
		t.Fatalf("GetDashboard before opening failed: %v", err)
	}
	if dashboard.Opened {
		t.Fatal("expected dashboard to report not opened")
	}

	affiliate, err := env.affiliateSvc.OpenAffiliate(user.ID)
	if err != nil {
		t.Fatalf("OpenAffiliate failed: %v", err)
	}
	if _, err := env.affiliateSvc.TrackClick(TrackClickInput{ReferralCode: affiliate.ReferralCode, ClientIP: "203.0.113.40"}); err != nil {
		t.Fatalf("TrackClick failed: %v", err)
	}
	referred := env.createUser(t, "dash-referred@example.com")
	if _, _, err := env.affiliateSvc.RecordConversionIfAbsent(affiliate.ID, referred.ID); err != nil {
		t.Fatalf("RecordConversionIfAbsent failed: %v", err)
	}

	dashboard, err = env.affiliateSvc.GetDashboard(user.ID)
	if err != nil {
		t.Fatalf("GetDashboard failed: %v", err)
	}
	if !dashboard.Opened {
		t.Fatal("expected dashboard opened")
	}
	if dashboard.ReferralCode != affiliate.ReferralCode {
		t.Fatalf("expected referral code %q, got %q", affiliate.ReferralCode, dashboard.ReferralCode)
	}
	if dashboard.ClickCount != 1 {
		t.Fatalf("expected 1 click, got %d", dashboard.ClickCount)
	}
	if dashboard.ConversionCount != 1 {
		t.Fatalf("expected 1 conversion, got %d", dashboard.ConversionCount)
	}
}
