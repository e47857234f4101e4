package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"paysync/internal/service/payment/domain"
)

// MemoryOrderRepository 是 domain.OrderRepository 的进程内实现，
// 用于测试和本地联调。所有操作在同一把互斥锁下执行，
// 事务性操作（确认迁移）天然原子。
type MemoryOrderRepository struct {
	mu      sync.Mutex
	records map[string]*domain.OrderRecord // key 为记录 ID
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		records: make(map[string]*domain.OrderRecord),
	}
}

func (r *MemoryOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string, kind domain.RecordKind) (*domain.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var provisional *domain.OrderRecord
	for _, record := range r.records {
		if record.OrderNumber != orderNumber {
			continue
		}
		switch kind {
		case domain.KindProvisional:
			if record.Lifecycle == domain.LifecycleProvisional {
				return cloneRecord(record), nil
			}
		case domain.KindFinalized:
			if record.Lifecycle == domain.LifecycleFinalized {
				return cloneRecord(record), nil
			}
		default:
			// Any：Finalized 优先
			if record.Lifecycle == domain.LifecycleFinalized {
				return cloneRecord(record), nil
			}
			provisional = record
		}
	}
	if provisional != nil {
		return cloneRecord(provisional), nil
	}
	return nil, domain.ErrOrderNotFound
}

func (r *MemoryOrderRepository) Create(ctx context.Context, record *domain.OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, exists := r.records[record.ID]; exists {
		return errors.Wrapf(domain.ErrPersistenceConflict, "duplicate id %s", record.ID)
	}
	for _, existing := range r.records {
		if existing.OrderNumber == record.OrderNumber && existing.Lifecycle == record.Lifecycle {
			return errors.Wrapf(domain.ErrPersistenceConflict, "duplicate %s record for %s", record.Lifecycle, record.OrderNumber)
		}
	}
	r.records[record.ID] = cloneRecord(record)
	return nil
}

func (r *MemoryOrderRepository) CreateFinalizedAndDeleteProvisional(ctx context.Context, record *domain.OrderRecord, provisionalID string) (*domain.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[provisionalID]
	if !ok || existing.Lifecycle != domain.LifecycleProvisional {
		return nil, errors.Wrapf(domain.ErrPersistenceConflict, "provisional %s already consumed", provisionalID)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	delete(r.records, provisionalID)
	r.records[record.ID] = cloneRecord(record)
	return cloneRecord(record), nil
}

func (r *MemoryOrderRepository) PatchStatus(ctx context.Context, id string, status domain.Status, details domain.GatewayDetails, updatedAt time.Time) (*domain.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	record.Status = status
	record.GatewayDetails = details
	record.UpdatedAt = updatedAt
	return cloneRecord(record), nil
}

func (r *MemoryOrderRepository) ListPendingProvisional(ctx context.Context) ([]*domain.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.OrderRecord
	for _, record := range r.records {
		if record.Lifecycle == domain.LifecycleProvisional {
			out = append(out, cloneRecord(record))
		}
	}
	return out, nil
}

func (r *MemoryOrderRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, record := range r.records {
		if record.Lifecycle == domain.LifecycleProvisional && record.ExpiresAt != nil && record.ExpiresAt.Before(before) {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemoryOrderRepository) CountByOrderNumber(ctx context.Context, orderNumber string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, record := range r.records {
		if record.OrderNumber == orderNumber {
			count++
		}
	}
	return count, nil
}

// cloneRecord 深拷贝记录，避免调用方与仓储内部状态互相污染。
func cloneRecord(record *domain.OrderRecord) *domain.OrderRecord {
	out := *record
	if record.ExpiresAt != nil {
		expires := *record.ExpiresAt
		out.ExpiresAt = &expires
	}
	if record.Items != nil {
		out.Items = make([]domain.OrderItem, len(record.Items))
		copy(out.Items, record.Items)
	}
	return &out
}
