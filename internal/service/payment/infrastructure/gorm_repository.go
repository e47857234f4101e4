package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"paysync/internal/service/payment/domain"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例。
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Migrate 执行表结构迁移，由组装根在启动时调用一次。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{})
}

func (r *GormOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string, kind domain.RecordKind) (*domain.OrderRecord, error) {
	query := r.db.WithContext(ctx).Where("order_number = ?", orderNumber)
	switch kind {
	case domain.KindProvisional, domain.KindFinalized:
		query = query.Where("lifecycle = ?", string(kind))
	default:
		// Any：Finalized 优先命中
		query = query.Order("lifecycle ASC")
	}

	var model OrderModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "find order by number")
	}
	return toDomain(&model)
}

func (r *GormOrderRepository) Create(ctx context.Context, record *domain.OrderRecord) error {
	model, err := toModel(record)
	if err != nil {
		return errors.Wrap(err, "marshal order record")
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "create order record")
	}
	return nil
}

// CreateFinalizedAndDeleteProvisional 在一个数据库事务里完成
// Finalized 记录的创建和 Provisional 记录的删除。
// 删除影响行数为 0 说明 Provisional 已被并发消费，整个事务回滚。
func (r *GormOrderRepository) CreateFinalizedAndDeleteProvisional(ctx context.Context, record *domain.OrderRecord, provisionalID string) (*domain.OrderRecord, error) {
	model, err := toModel(record)
	if err != nil {
		return nil, errors.Wrap(err, "marshal finalized record")
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND lifecycle = ?", provisionalID, string(domain.LifecycleProvisional)).
			Delete(&OrderModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrPersistenceConflict
		}
		return tx.Create(model).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrPersistenceConflict) {
			return nil, errors.Wrapf(domain.ErrPersistenceConflict, "provisional %s already consumed", provisionalID)
		}
		return nil, errors.Wrap(err, "finalize order transaction")
	}
	return record, nil
}

func (r *GormOrderRepository) PatchStatus(ctx context.Context, id string, status domain.Status, details domain.GatewayDetails, updatedAt time.Time) (*domain.OrderRecord, error) {
	updates := map[string]interface{}{
		"status":                 string(status),
		"gateway_transaction_id": details.TransactionID,
		"gateway_number":         details.Number,
		"gateway_method":         details.Method,
		"gateway_raw_status":     details.RawStatus,
		"gateway_error_code":     details.ErrorCode,
		"gateway_amount":         details.Amount,
		"gateway_currency":       details.Currency,
		"updated_at":             updatedAt,
	}

	result := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "patch order status")
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrOrderNotFound
	}

	var model OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, errors.Wrap(err, "reload patched order")
	}
	return toDomain(&model)
}

func (r *GormOrderRepository) ListPendingProvisional(ctx context.Context) ([]*domain.OrderRecord, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Where("lifecycle = ?", string(domain.LifecycleProvisional)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list provisional orders")
	}

	records := make([]*domain.OrderRecord, 0, len(models))
	for i := range models {
		record, err := toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *GormOrderRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("lifecycle = ? AND expires_at IS NOT NULL AND expires_at < ?", string(domain.LifecycleProvisional), before).
		Delete(&OrderModel{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "delete expired provisional orders")
	}
	return result.RowsAffected, nil
}

func (r *GormOrderRepository) CountByOrderNumber(ctx context.Context, orderNumber string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count orders by number")
	}
	return count, nil
}
