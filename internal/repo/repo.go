package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore is the durable store behind the wallet, workflow and position services.
// Apply is the only path that writes wallet balances.
type LedgerStore interface {
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	Apply(ctx context.Context, op Operation) (*model.Wallet, *model.Transaction, error)
	Atomic(ctx context.Context, userID string, fn func(tx LedgerStore) error) error
	RecordFailed(ctx context.Context, t *model.Transaction) error
	FindTransaction(ctx context.Context, userID string, typ model.TxType, requestID string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, f model.TxFilter) ([]model.Transaction, error)
	SumDeltas(ctx context.Context, userID string) (balance, locked decimal.Decimal, err error)

	CreateDepositRequest(ctx context.Context, r *model.DepositRequest) error
	GetDepositRequest(ctx context.Context, id string) (*model.DepositRequest, error)
	ListDepositRequests(ctx context.Context, f model.RequestFilter) ([]model.DepositRequest, error)
	TransitionDepositRequest(ctx context.Context, id string, t model.Transition) error
	CreateWithdrawalRequest(ctx context.Context, r *model.WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id string) (*model.WithdrawalRequest, error)
	ListWithdrawalRequests(ctx context.Context, f model.RequestFilter) ([]model.WithdrawalRequest, error)
	TransitionWithdrawalRequest(ctx context.Context, id string, t model.Transition) error

	CreateStakingPosition(ctx context.Context, p *model.StakingPosition) error
	GetStakingPosition(ctx context.Context, id string) (*model.StakingPosition, error)
	CloseStakingPosition(ctx context.Context, p *model.StakingPosition) error
	ListStakingPositions(ctx context.Context, userID string, status model.StakingStatus) ([]model.StakingPosition, error)
	DueStakingPositions(ctx context.Context, now time.Time, limit int) ([]model.StakingPosition, error)
	CreateInvestmentPosition(ctx context.Context, p *model.InvestmentPosition) error
	GetInvestmentPosition(ctx context.Context, id string) (*model.InvestmentPosition, error)
	CloseInvestmentPosition(ctx context.Context, p *model.InvestmentPosition) error
	ListInvestmentPositions(ctx context.Context, userID string, status model.InvestmentStatus) ([]model.InvestmentPosition, error)
	DueInvestmentPositions(ctx context.Context, now time.Time, limit int) ([]model.InvestmentPosition, error)

	Stats(ctx context.Context) (*model.DashboardStats, error)

	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheWallet(ctx context.Context, w *model.Wallet) error
	GetCachedWallet(ctx context.Context, userID string) (*model.Wallet, error)
}

// Operation is one atomic delta against a single wallet.
type Operation struct {
	UserID       string
	Type         model.TxType
	Amount       decimal.Decimal
	BalanceDelta decimal.Decimal
	LockedDelta  decimal.Decimal
	RequestID    string
	Metadata     model.Metadata
	// CreateWallet lets a credit open the wallet on first use.
	CreateWallet bool
}

func (op Operation) validate() error {
	if op.UserID == "" {
		return model.Errorf(model.KindInvalidArgument, "user id is required")
	}
	if _, err := model.ParseTxType(string(op.Type)); err != nil {
		return err
	}
	if !op.Amount.IsPositive() {
		return model.ErrInvalidAmount
	}
	return nil
}

// Repository implements LedgerStore on GORM, with Redis as a balance cache and Kafka for the outbox.
type Repository struct {
	db       *gorm.DB
	rdb      *redis.Client
	writer   *kafka.Writer
	log      *zap.SugaredLogger
	locks    *userLocks
	retry    RetryPolicy
	cacheTTL time.Duration
	now      func() time.Time

	// set on copies bound to an open transaction
	inTx   bool
	txUser string
}

type Option func(*Repository)

func WithRetry(p RetryPolicy) Option { return func(r *Repository) { r.retry = p } }

func WithCacheTTL(ttl time.Duration) Option { return func(r *Repository) { r.cacheTTL = ttl } }

func WithClock(now func() time.Time) Option { return func(r *Repository) { r.now = now } }

// NewRepository constructs repo. rdb and w may be nil, which disables the cache and event publishing.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger, opts ...Option) *Repository {
	r := &Repository{
		db:       db,
		rdb:      rdb,
		writer:   w,
		log:      logger,
		locks:    newUserLocks(256),
		retry:    DefaultRetryPolicy,
		cacheTTL: 5 * time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Migrate creates or updates every ledger table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{},
		&model.DepositRequest{}, &model.WithdrawalRequest{},
		&model.StakingPosition{}, &model.InvestmentPosition{},
	)
}

func (r *Repository) bind(tx *gorm.DB, userID string) *Repository {
	c := *r
	c.db = tx
	c.inTx = true
	c.txUser = userID
	return &c
}

// Atomic runs fn in one database transaction while holding the user's wallet lock.
// Conflicts restart the whole unit under the retry policy. On a store that is already
// inside a transaction fn runs directly on it.
func (r *Repository) Atomic(ctx context.Context, userID string, fn func(tx LedgerStore) error) error {
	if r.inTx {
		if userID != r.txUser {
			return fmt.Errorf("atomic unit for %q cannot touch wallet %q", r.txUser, userID)
		}
		return fn(r)
	}
	unlock := r.locks.lock(userID)
	defer unlock()
	return r.retry.Do(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(r.bind(tx, userID))
		})
	})
}

// Apply executes op's deltas and appends its transaction as one all-or-nothing unit.
// A replay of a completed (user, type, request id) returns the prior transaction untouched.
func (r *Repository) Apply(ctx context.Context, op Operation) (*model.Wallet, *model.Transaction, error) {
	if err := op.validate(); err != nil {
		return nil, nil, err
	}
	var (
		w *model.Wallet
		t *model.Transaction
	)
	err := r.Atomic(ctx, op.UserID, func(tx LedgerStore) error {
		var err error
		w, t, err = tx.(*Repository).apply(ctx, op)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return w, t, nil
}

func (r *Repository) apply(ctx context.Context, op Operation) (*model.Wallet, *model.Transaction, error) {
	w, err := r.walletForUpdate(ctx, op.UserID)
	switch {
	case errors.Is(err, model.ErrNotFound) && op.CreateWallet:
		w = &model.Wallet{UserID: op.UserID}
		if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
			return nil, nil, storageErr("create wallet", err)
		}
	case err != nil:
		return nil, nil, err
	}

	// checked after the row lock so a concurrent settle of the same request is visible
	if op.RequestID != "" {
		prior, err := r.FindTransaction(ctx, op.UserID, op.Type, op.RequestID)
		if err == nil {
			return w, prior, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, nil, err
		}
	}

	newBal := w.Balance.Add(op.BalanceDelta)
	newLocked := w.LockedBalance.Add(op.LockedDelta)
	if newBal.IsNegative() {
		return nil, nil, model.Errorf(model.KindInsufficientFunds,
			"available balance %s is less than %s", w.Balance.String(), op.BalanceDelta.Neg().String())
	}
	if newLocked.IsNegative() {
		return nil, nil, model.Errorf(model.KindInsufficientFunds,
			"locked balance %s is less than %s", w.LockedBalance.String(), op.LockedDelta.Neg().String())
	}

	now := r.now()
	res := r.db.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND version = ?", w.UserID, w.Version).
		Updates(map[string]interface{}{
			"balance":        newBal,
			"locked_balance": newLocked,
			"version":        w.Version + 1,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, nil, storageErr("update wallet", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil, model.Errorf(model.KindConflict, "wallet %s changed concurrently", w.UserID)
	}

	t := &model.Transaction{
		ID:           ulid.Make().String(),
		UserID:       op.UserID,
		Type:         op.Type,
		Amount:       op.Amount,
		BalanceDelta: op.BalanceDelta,
		LockedDelta:  op.LockedDelta,
		Status:       model.TxCompleted,
		Metadata:     withRequestID(op.Metadata, op.RequestID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if op.RequestID != "" {
		key := op.RequestID
		t.RequestID = &key
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, nil, storageErr("insert transaction", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"transaction_id": t.ID, "user_id": t.UserID, "type": t.Type, "amount": t.Amount,
		"balance": newBal, "locked_balance": newLocked,
	})
	evt := &model.OutboxEvent{
		Aggregate: "Wallet", AggregateID: op.UserID, EventType: string(op.Type), Payload: string(payload),
	}
	if err := r.db.WithContext(ctx).Create(evt).Error; err != nil {
		return nil, nil, storageErr("insert outbox event", err)
	}

	w.Balance, w.LockedBalance = newBal, newLocked
	w.Version++
	w.UpdatedAt = now
	return w, t, nil
}

func withRequestID(md model.Metadata, requestID string) model.Metadata {
	out := model.Metadata{}
	for k, v := range md {
		out[k] = v
	}
	if requestID != "" {
		out["request_id"] = requestID
	}
	return out
}

// GetWallet reads the wallet without locking.
func (r *Repository) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, notFoundOr(err, "wallet for user %s", userID)
	}
	return &w, nil
}

// walletForUpdate locks wallet row.
func (r *Repository) walletForUpdate(ctx context.Context, userID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, notFoundOr(err, "wallet for user %s", userID)
	}
	return &w, nil
}

// RecordFailed appends a failed, zero-delta transaction for audit purposes.
func (r *Repository) RecordFailed(ctx context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	t.Status = model.TxFailed
	t.BalanceDelta = decimal.Zero
	t.LockedDelta = decimal.Zero
	t.RequestID = nil
	if t.Metadata == nil {
		t.Metadata = model.Metadata{}
	}
	return storageErr("insert failed transaction", r.db.WithContext(ctx).Create(t).Error)
}

// FindTransaction looks up a completed transaction by its idempotency key.
func (r *Repository) FindTransaction(ctx context.Context, userID string, typ model.TxType, requestID string) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND request_id = ? AND status = ?", userID, typ, requestID, model.TxCompleted).
		First(&t).Error
	if err != nil {
		return nil, notFoundOr(err, "%s transaction %s", typ, requestID)
	}
	return &t, nil
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound error naming the entity.
func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Wrap(model.KindNotFound, err, format, args...)
	}
	return fmt.Errorf("query %s: %w", fmt.Sprintf(format, args...), err)
}

// storageErr keeps raw driver errors out of the taxonomy. Unique violations
// mean another writer got there first and are retried as conflicts.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.Wrap(model.KindConflict, err, "%s: duplicate key", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
