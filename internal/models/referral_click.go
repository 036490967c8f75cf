package models

import "time"

// ReferralClick 推广点击记录（只追加，仅用于展示统计，不参与佣金计算）
type ReferralClick struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                       // 主键
	AffiliateID uint      `gorm:"not null;index" json:"affiliate_id"`                         // 推广账户ID
	Source      string    `gorm:"type:varchar(1024);default:''" json:"source"`                // 来源（referrer 或 direct）
	LandingPath string    `gorm:"type:varchar(512)" json:"landing_path"`                      // 落地页面路径
	ClientIP    string    `gorm:"type:varchar(64)" json:"client_ip"`                          // 客户端IP
	UserAgent   string    `gorm:"type:varchar(1024)" json:"user_agent"`                       // 客户端UA
	CreatedAt   time.Time `gorm:"index;not null;default:CURRENT_TIMESTAMP" json:"created_at"` // 创建时间

	Affiliate Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 推广账户
}

// TableName 指定表名
func (ReferralClick) TableName() string {
	return "referral_clicks"
}
