package service

import (
	"fmt"
	"math"

	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/models"
)

const (
	affiliateCommissionRateMin     = 0
	affiliateCommissionRateMax     = 100
	affiliatePayoutThresholdMin    = 0
	affiliateClickDedupeMinutesMin = 0
	affiliateClickDedupeMinutesMax = 1440
)

// AffiliateSetting 推广计划配置
type AffiliateSetting struct {
	Enabled            bool    `json:"program_enabled"`
	CommissionRate     float64 `json:"commission_rate"`
	PayoutThreshold    float64 `json:"payout_threshold"`
	ClickDedupeMinutes int     `json:"click_dedupe_minutes"`
}

// AffiliateDefaultSetting 默认推广计划配置
func AffiliateDefaultSetting() AffiliateSetting {
	return NormalizeAffiliateSetting(AffiliateSetting{
		Enabled:            true,
		CommissionRate:     50,
		PayoutThreshold:    25,
		ClickDedupeMinutes: 10,
	})
}

// NormalizeAffiliateSetting 归一化推广计划配置
func NormalizeAffiliateSetting(setting AffiliateSetting) AffiliateSetting {
	setting.CommissionRate = roundAffiliateDecimal(setting.CommissionRate)
	if setting.CommissionRate < affiliateCommissionRateMin {
		setting.CommissionRate = affiliateCommissionRateMin
	}
	if setting.CommissionRate > affiliateCommissionRateMax {
		setting.CommissionRate = affiliateCommissionRateMax
	}

	setting.PayoutThreshold = roundAffiliateDecimal(setting.PayoutThreshold)
	if setting.PayoutThreshold < affiliatePayoutThresholdMin {
		setting.PayoutThreshold = affiliatePayoutThresholdMin
	}

	if setting.ClickDedupeMinutes < affiliateClickDedupeMinutesMin {
		setting.ClickDedupeMinutes = affiliateClickDedupeMinutesMin
	}
	if setting.ClickDedupeMinutes > affiliateClickDedupeMinutesMax {
		setting.ClickDedupeMinutes = affiliateClickDedupeMinutesMax
	}
	return setting
}

// ValidateAffiliateSetting 校验推广计划配置
func ValidateAffiliateSetting(setting AffiliateSetting) error {
	normalized := NormalizeAffiliateSetting(setting)
	if normalized.CommissionRate < affiliateCommissionRateMin || normalized.CommissionRate > affiliateCommissionRateMax {
		return fmt.Errorf("%w: 佣金比例必须在 0-100 之间", ErrAffiliateConfigInvalid)
	}
	if normalized.PayoutThreshold < affiliatePayoutThresholdMin {
		return fmt.Errorf("%w: 最低提现金额不能小于 0", ErrAffiliateConfigInvalid)
	}
	return nil
}

// AffiliateSettingToMap 将推广计划配置转换为 settings 存储结构
func AffiliateSettingToMap(setting AffiliateSetting) map[string]interface{} {
	normalized := NormalizeAffiliateSetting(setting)
	return map[string]interface{}{
		constants.SettingFieldProgramEnabled:     normalized.Enabled,
		constants.SettingFieldCommissionRate:     normalized.CommissionRate,
		constants.SettingFieldPayoutThreshold:    normalized.PayoutThreshold,
		constants.SettingFieldClickDedupeMinutes: normalized.ClickDedupeMinutes,
	}
}

func affiliateSettingFromJSON(raw models.JSON, fallback AffiliateSetting) AffiliateSetting {
	result := fallback

	if enabledRaw, ok := raw[constants.SettingFieldProgramEnabled]; ok {
		result.Enabled = parseSettingBool(enabledRaw)
	}
	if rateRaw, ok := raw[constants.SettingFieldCommissionRate]; ok {
		if parsed, err := parseSettingFloat(rateRaw); err == nil {
			result.CommissionRate = parsed
		}
	}
	if thresholdRaw, ok := raw[constants.SettingFieldPayoutThreshold]; ok {
		if parsed, err := parseSettingFloat(thresholdRaw); err == nil {
			result.PayoutThreshold = parsed
		}
	}
	if dedupeRaw, ok := raw[constants.SettingFieldClickDedupeMinutes]; ok {
		if parsed, err := parseSettingInt(dedupeRaw); err == nil {
			result.ClickDedupeMinutes = parsed
		}
	}

	return NormalizeAffiliateSetting(result)
}

func normalizeAffiliateSettingMap(value map[string]interface{}) models.JSON {
	setting := affiliateSettingFromJSON(models.JSON(value), AffiliateDefaultSetting())
	return models.JSON(AffiliateSettingToMap(setting))
}

// GetAffiliateSetting 获取推广计划设置（优先 settings，空时回退默认）
func (s *SettingService) GetAffiliateSetting() (AffiliateSetting, error) {
	fallback := AffiliateDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(constants.SettingKeyAffiliate)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return affiliateSettingFromJSON(value, fallback), nil
}

// UpdateAffiliateSetting 更新推广计划设置
func (s *SettingService) UpdateAffiliateSetting(setting AffiliateSetting) (AffiliateSetting, error) {
	normalized := NormalizeAffiliateSetting(setting)
	if err := ValidateAffiliateSetting(normalized); err != nil {
		return AffiliateDefaultSetting(), err
	}
	if _, err := s.Update(constants.SettingKeyAffiliate, AffiliateSettingToMap(normalized)); err != nil {
		return AffiliateDefaultSetting(), err
	}
	return normalized, nil
}

func roundAffiliateDecimal(value float64) float64 {
	return math.Round(value*100) / 100
}
