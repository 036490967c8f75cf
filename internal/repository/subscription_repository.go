package repository

import (
	"errors"
	"strings"

	"github.com/threadposts/internal/models"

	"gorm.io/gorm"
)

// SubscriptionRepository 订阅投影数据访问接口
type SubscriptionRepository interface {
	GetByUserID(userID uint) (*models.Subscription, error)
	GetBySubscriptionRef(ref string) (*models.Subscription, error)
	GetByCustomerRef(ref string) (*models.Subscription, error)
	Create(sub *models.Subscription) error
	Update(sub *models.Subscription) error
	WithTx(tx *gorm.DB) SubscriptionRepository
}

// GormSubscriptionRepository GORM 实现
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建订阅仓库
func NewSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	if tx == nil {
		return r
	}
	return &GormSubscriptionRepository{db: tx}
}

// GetByUserID 按用户ID获取订阅
func (r *GormSubscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	if userID == 0 {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// GetBySubscriptionRef 按外部订阅标识获取订阅
func (r *GormSubscriptionRepository) GetBySubscriptionRef(ref string) (*models.Subscription, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.Where("subscription_ref = ?", trimmed).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// GetByCustomerRef 按外部客户标识获取订阅
func (r *GormSubscriptionRepository) GetByCustomerRef(ref string) (*models.Subscription, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.Where("customer_ref = ?", trimmed).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Create 创建订阅
func (r *GormSubscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// Update 更新订阅
func (r *GormSubscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}
