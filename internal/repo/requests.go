package repo

import (
	"context"

	"github.com/richardliu001/ledger-core/internal/model"
	"gorm.io/gorm"
)

func (r *Repository) CreateDepositRequest(ctx context.Context, req *model.DepositRequest) error {
	return storageErr("create deposit request", r.db.WithContext(ctx).Create(req).Error)
}

func (r *Repository) GetDepositRequest(ctx context.Context, id string) (*model.DepositRequest, error) {
	var req model.DepositRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, notFoundOr(err, "deposit request %s", id)
	}
	return &req, nil
}

func (r *Repository) ListDepositRequests(ctx context.Context, f model.RequestFilter) ([]model.DepositRequest, error) {
	var out []model.DepositRequest
	err := requestQuery(r.db.WithContext(ctx), f).Find(&out).Error
	return out, storageErr("list deposit requests", err)
}

func (r *Repository) TransitionDepositRequest(ctx context.Context, id string, t model.Transition) error {
	return r.transition(ctx, &model.DepositRequest{}, id, t)
}

func (r *Repository) CreateWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error {
	return storageErr("create withdrawal request", r.db.WithContext(ctx).Create(req).Error)
}

func (r *Repository) GetWithdrawalRequest(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	var req model.WithdrawalRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, notFoundOr(err, "withdrawal request %s", id)
	}
	return &req, nil
}

func (r *Repository) ListWithdrawalRequests(ctx context.Context, f model.RequestFilter) ([]model.WithdrawalRequest, error) {
	var out []model.WithdrawalRequest
	err := requestQuery(r.db.WithContext(ctx), f).Find(&out).Error
	return out, storageErr("list withdrawal requests", err)
}

func (r *Repository) TransitionWithdrawalRequest(ctx context.Context, id string, t model.Transition) error {
	return r.transition(ctx, &model.WithdrawalRequest{}, id, t)
}

// transition moves a pending request to a terminal status. The status guard in the
// WHERE clause makes it a compare-and-set: zero rows means someone else already did it.
func (r *Repository) transition(ctx context.Context, m interface{}, id string, t model.Transition) error {
	if !model.RequestPending.CanTransition(t.Status) {
		return model.Errorf(model.KindInvalidArgument, "cannot move request to %q", t.Status)
	}
	res := r.db.WithContext(ctx).Model(m).
		Where("id = ? AND status = ?", id, model.RequestPending).
		Updates(map[string]interface{}{
			"status":       t.Status,
			"admin_note":   t.AdminNote,
			"processed_by": t.ProcessedBy,
			"processed_at": t.ProcessedAt,
		})
	if res.Error != nil {
		return storageErr("transition request", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Errorf(model.KindAlreadyProcessed, "request %s is no longer pending", id)
	}
	return nil
}

func requestQuery(q *gorm.DB, f model.RequestFilter) *gorm.DB {
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	return paginate(q.Order("created_at desc"), f.Limit, f.Offset)
}

func paginate(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q = q.Limit(limit)
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}
