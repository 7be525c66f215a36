package repository

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushLogRepository 下推日志仓库
type PushLogRepository struct {
	db *gorm.DB
}

func NewPushLogRepository(db *gorm.DB) *PushLogRepository {
	return &PushLogRepository{db: db}
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entity.PushLog{}); err != nil {
		return fmt.Errorf("迁移下推日志表失败: %w", err)
	}
	return nil
}

// Create 写入下推日志
func (r *PushLogRepository) Create(ctx context.Context, log *entity.PushLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// PushLogQuery 查询条件
type PushLogQuery struct {
	OrderID  int64
	Target   string
	Outcome  string
	Page     int
	PageSize int
}

// List 按订单/目标分页查询，时间倒序
func (r *PushLogRepository) List(ctx context.Context, q PushLogQuery) ([]entity.PushLog, int64, error) {
	var items []entity.PushLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.PushLog{})
	if q.OrderID > 0 {
		query = query.Where("order_id = ?", q.OrderID)
	}
	if q.Target != "" {
		query = query.Where("target = ?", q.Target)
	}
	if q.Outcome != "" {
		query = query.Where("outcome = ?", q.Outcome)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	err := query.
		Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&items).Error

	return items, total, err
}
