package repo

import (
	"context"
	"time"

	"github.com/richardliu001/ledger-core/internal/model"
)

func (r *Repository) CreateStakingPosition(ctx context.Context, p *model.StakingPosition) error {
	return storageErr("create staking position", r.db.WithContext(ctx).Create(p).Error)
}

func (r *Repository) GetStakingPosition(ctx context.Context, id string) (*model.StakingPosition, error) {
	var p model.StakingPosition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFoundOr(err, "staking position %s", id)
	}
	return &p, nil
}

// CloseStakingPosition persists the unstake of an active position.
func (r *Repository) CloseStakingPosition(ctx context.Context, p *model.StakingPosition) error {
	res := r.db.WithContext(ctx).Model(&model.StakingPosition{}).
		Where("id = ? AND status = ?", p.ID, model.StakingActive).
		Updates(map[string]interface{}{
			"status":         model.StakingUnstaked,
			"rewards_earned": p.RewardsEarned,
			"unstaked_at":    p.UnstakedAt,
		})
	if res.Error != nil {
		return storageErr("close staking position", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Errorf(model.KindAlreadyProcessed, "staking position %s is already unstaked", p.ID)
	}
	return nil
}

func (r *Repository) ListStakingPositions(ctx context.Context, userID string, status model.StakingStatus) ([]model.StakingPosition, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []model.StakingPosition
	err := q.Order("created_at desc").Find(&out).Error
	return out, storageErr("list staking positions", err)
}

// DueStakingPositions returns active positions whose lock has expired at now.
func (r *Repository) DueStakingPositions(ctx context.Context, now time.Time, limit int) ([]model.StakingPosition, error) {
	var out []model.StakingPosition
	err := r.db.WithContext(ctx).
		Where("status = ? AND locked_until <= ?", model.StakingActive, now).
		Order("locked_until").Limit(limit).Find(&out).Error
	return out, storageErr("due staking positions", err)
}

func (r *Repository) CreateInvestmentPosition(ctx context.Context, p *model.InvestmentPosition) error {
	return storageErr("create investment position", r.db.WithContext(ctx).Create(p).Error)
}

func (r *Repository) GetInvestmentPosition(ctx context.Context, id string) (*model.InvestmentPosition, error) {
	var p model.InvestmentPosition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFoundOr(err, "investment position %s", id)
	}
	return &p, nil
}

// CloseInvestmentPosition persists the completion of an active position.
func (r *Repository) CloseInvestmentPosition(ctx context.Context, p *model.InvestmentPosition) error {
	res := r.db.WithContext(ctx).Model(&model.InvestmentPosition{}).
		Where("id = ? AND status = ?", p.ID, model.InvestmentActive).
		Updates(map[string]interface{}{
			"status":        model.InvestmentCompleted,
			"actual_return": p.ActualReturn,
			"completed_at":  p.CompletedAt,
		})
	if res.Error != nil {
		return storageErr("close investment position", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Errorf(model.KindAlreadyProcessed, "investment position %s is already completed", p.ID)
	}
	return nil
}

func (r *Repository) ListInvestmentPositions(ctx context.Context, userID string, status model.InvestmentStatus) ([]model.InvestmentPosition, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []model.InvestmentPosition
	err := q.Order("created_at desc").Find(&out).Error
	return out, storageErr("list investment positions", err)
}

func (r *Repository) DueInvestmentPositions(ctx context.Context, now time.Time, limit int) ([]model.InvestmentPosition, error) {
	var out []model.InvestmentPosition
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.InvestmentActive, now).
		Order("expires_at").Limit(limit).Find(&out).Error
	return out, storageErr("due investment positions", err)
}
