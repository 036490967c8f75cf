package models

import "time"

// AffiliatePayout 提现结算单
// 状态机：pending -> paid | denied（后台审批流），
// 或直接 completed（自助结算流）；到达 paid/denied/completed 后不再变更。
type AffiliatePayout struct {
	ID          uint       `gorm:"primarykey" json:"id"`                                    // 主键
	AffiliateID uint       `gorm:"not null;index" json:"affiliate_id"`                      // 推广账户ID
	Amount      Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`     // 结算金额
	Status      string     `gorm:"type:varchar(20);not null;index" json:"status"`           // 状态
	TransferRef string     `gorm:"type:varchar(128);default:''" json:"transfer_ref"`        // 外部转账标识
	PaidAt      *time.Time `gorm:"index" json:"paid_at,omitempty"`                          // 支付时间
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt   time.Time  `gorm:"index" json:"updated_at"`                                 // 更新时间

	Affiliate Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 推广账户
}

// TableName 指定表名
func (AffiliatePayout) TableName() string {
	return "affiliate_payouts"
}
