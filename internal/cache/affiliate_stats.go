package cache

import (
	"context"
	"fmt"
	"time"
)

const affiliateStatsCacheTTL = 2 * time.Minute

// AffiliateStatsSnapshot 推广看板统计快照，短 TTL 缓解高频看板刷新。
type AffiliateStatsSnapshot struct {
	AffiliateID     uint   `json:"affiliate_id"`
	ClickCount      int64  `json:"click_count"`
	ConversionCount int64  `json:"conversion_count"`
	PendingBalance  string `json:"pending_balance"`
	TotalEarnings   string `json:"total_earnings"`
	PaidOutTotal    string `json:"paid_out_total"`
	UpdatedAt       int64  `json:"updated_at"`
}

func affiliateStatsKey(affiliateID uint) string {
	return fmt.Sprintf("affiliate:stats:%d", affiliateID)
}

// GetAffiliateStats 获取推广看板统计快照
func GetAffiliateStats(ctx context.Context, affiliateID uint) (*AffiliateStatsSnapshot, bool, error) {
	if affiliateID == 0 {
		return nil, false, nil
	}
	var snapshot AffiliateStatsSnapshot
	hit, err := GetJSON(ctx, affiliateStatsKey(affiliateID), &snapshot)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &snapshot, true, nil
}

// SetAffiliateStats 写入推广看板统计快照
func SetAffiliateStats(ctx context.Context, snapshot *AffiliateStatsSnapshot) error {
	if snapshot == nil || snapshot.AffiliateID == 0 {
		return nil
	}
	snapshot.UpdatedAt = time.Now().Unix()
	return SetJSON(ctx, affiliateStatsKey(snapshot.AffiliateID), snapshot, affiliateStatsCacheTTL)
}

// DelAffiliateStats 删除推广看板统计快照，余额变动后调用。
func DelAffiliateStats(ctx context.Context, affiliateID uint) error {
	if affiliateID == 0 {
		return nil
	}
	return Del(ctx, affiliateStatsKey(affiliateID))
}
