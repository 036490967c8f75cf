package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription 订阅投影（Stripe 客户/订阅与本地用户的绑定）
// 付费墙读取该表；webhook 服务在收到平台事件时维护。
type Subscription struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                                       // 主键
	UserID             uint           `gorm:"not null;uniqueIndex" json:"user_id"`                        // 用户ID
	CustomerRef        string         `gorm:"type:varchar(64);index" json:"customer_ref"`                 // Stripe customer id
	SubscriptionRef    string         `gorm:"type:varchar(64);index" json:"subscription_ref"`             // Stripe subscription id
	Status             string         `gorm:"type:varchar(20);not null;index" json:"status"`              // 订阅状态
	CurrentPeriodEndAt *time.Time     `gorm:"index" json:"current_period_end_at,omitempty"`               // 本期结束时间
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                                    // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                                             // 软删除时间

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"` // 用户信息
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}
