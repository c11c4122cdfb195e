package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-core/internal/audit"
	"github.com/richardliu001/ledger-core/internal/auth"
	"github.com/richardliu001/ledger-core/internal/metrics"
	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Request is the part of a deposit or withdrawal request the workflow reads.
type Request interface {
	Key() string
	Owner() string
	State() model.RequestStatus
	RequestedAmount() decimal.Decimal
}

// requestKind binds the workflow to one request collection.
type requestKind[R Request] struct {
	kind           model.RequestKind
	txType         model.TxType
	approvedAction string
	rejectedAction string
	// autoReject turns a failed settle for lack of funds into a rejection
	autoReject bool

	validate   func(r R) error
	prepare    func(r R, id string)
	create     func(ctx context.Context, s repo.LedgerStore, r R) error
	get        func(ctx context.Context, s repo.LedgerStore, id string) (R, error)
	list       func(ctx context.Context, s repo.LedgerStore, f model.RequestFilter) ([]R, error)
	transition func(ctx context.Context, s repo.LedgerStore, id string, t model.Transition) error
	settle     func(ctx context.Context, w *WalletService, r R) (*model.Wallet, *model.Transaction, error)
}

// RequestWorkflow moves deposit or withdrawal requests from pending to a terminal status,
// settling the wallet on approval. Each request is settled at most once.
type RequestWorkflow[R Request] struct {
	store  repo.LedgerStore
	wallet *WalletService
	audit  audit.Emitter
	clock  Clock
	log    *zap.SugaredLogger
	kind   requestKind[R]
}

type (
	DepositWorkflow    = RequestWorkflow[*model.DepositRequest]
	WithdrawalWorkflow = RequestWorkflow[*model.WithdrawalRequest]
)

func NewDepositWorkflow(store repo.LedgerStore, wallet *WalletService, emitter audit.Emitter, clock Clock, logger *zap.SugaredLogger) *DepositWorkflow {
	return &DepositWorkflow{
		store: store, wallet: wallet, audit: emitter, clock: clock, log: logger,
		kind: requestKind[*model.DepositRequest]{
			kind:           model.KindDeposit,
			txType:         model.TxDeposit,
			approvedAction: audit.ActionDepositApproved,
			rejectedAction: audit.ActionDepositRejected,
			validate: func(r *model.DepositRequest) error {
				if strings.TrimSpace(r.PaymentMethod) == "" {
					return model.Errorf(model.KindInvalidArgument, "payment method is required")
				}
				return nil
			},
			prepare: func(r *model.DepositRequest, id string) {
				r.ID, r.Status = id, model.RequestPending
				r.AdminNote, r.ProcessedBy, r.ProcessedAt = "", "", nil
			},
			create: func(ctx context.Context, s repo.LedgerStore, r *model.DepositRequest) error {
				return s.CreateDepositRequest(ctx, r)
			},
			get: func(ctx context.Context, s repo.LedgerStore, id string) (*model.DepositRequest, error) {
				return s.GetDepositRequest(ctx, id)
			},
			list: func(ctx context.Context, s repo.LedgerStore, f model.RequestFilter) ([]*model.DepositRequest, error) {
				rows, err := s.ListDepositRequests(ctx, f)
				return pointers(rows), err
			},
			transition: func(ctx context.Context, s repo.LedgerStore, id string, t model.Transition) error {
				return s.TransitionDepositRequest(ctx, id, t)
			},
			settle: func(ctx context.Context, w *WalletService, r *model.DepositRequest) (*model.Wallet, *model.Transaction, error) {
				return w.Deposit(ctx, r.UserID, r.Amount, r.ID)
			},
		},
	}
}

func NewWithdrawalWorkflow(store repo.LedgerStore, wallet *WalletService, emitter audit.Emitter, clock Clock, logger *zap.SugaredLogger) *WithdrawalWorkflow {
	return &WithdrawalWorkflow{
		store: store, wallet: wallet, audit: emitter, clock: clock, log: logger,
		kind: requestKind[*model.WithdrawalRequest]{
			kind:           model.KindWithdrawal,
			txType:         model.TxWithdrawal,
			approvedAction: audit.ActionWithdrawalApproved,
			rejectedAction: audit.ActionWithdrawalRejected,
			autoReject:     true,
			validate: func(r *model.WithdrawalRequest) error {
				if strings.TrimSpace(r.WithdrawalMethod) == "" {
					return model.Errorf(model.KindInvalidArgument, "withdrawal method is required")
				}
				if strings.TrimSpace(r.WithdrawalAddress) == "" {
					return model.Errorf(model.KindInvalidArgument, "withdrawal address is required")
				}
				return nil
			},
			prepare: func(r *model.WithdrawalRequest, id string) {
				r.ID, r.Status = id, model.RequestPending
				r.AdminNote, r.ProcessedBy, r.ProcessedAt = "", "", nil
			},
			create: func(ctx context.Context, s repo.LedgerStore, r *model.WithdrawalRequest) error {
				return s.CreateWithdrawalRequest(ctx, r)
			},
			get: func(ctx context.Context, s repo.LedgerStore, id string) (*model.WithdrawalRequest, error) {
				return s.GetWithdrawalRequest(ctx, id)
			},
			list: func(ctx context.Context, s repo.LedgerStore, f model.RequestFilter) ([]*model.WithdrawalRequest, error) {
				rows, err := s.ListWithdrawalRequests(ctx, f)
				return pointers(rows), err
			},
			transition: func(ctx context.Context, s repo.LedgerStore, id string, t model.Transition) error {
				return s.TransitionWithdrawalRequest(ctx, id, t)
			},
			settle: func(ctx context.Context, w *WalletService, r *model.WithdrawalRequest) (*model.Wallet, *model.Transaction, error) {
				return w.Withdraw(ctx, r.UserID, r.Amount, r.ID)
			},
		},
	}
}

func pointers[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

// Submit stores r as a new pending request owned by r's user.
func (w *RequestWorkflow[R]) Submit(ctx context.Context, r R) (R, error) {
	var zero R
	if r.Owner() == "" {
		return zero, model.Errorf(model.KindInvalidArgument, "user id is required")
	}
	if !r.RequestedAmount().IsPositive() {
		return zero, model.ErrInvalidAmount
	}
	if err := w.kind.validate(r); err != nil {
		return zero, err
	}
	w.kind.prepare(r, uuid.NewString())
	if err := w.kind.create(ctx, w.store, r); err != nil {
		return zero, err
	}
	w.log.Infow("request submitted", "kind", w.kind.kind, "id", r.Key(), "user_id", r.Owner(), "amount", r.RequestedAmount())
	return r, nil
}

func (w *RequestWorkflow[R]) Get(ctx context.Context, id string) (R, error) {
	return w.kind.get(ctx, w.store, id)
}

func (w *RequestWorkflow[R]) List(ctx context.Context, f model.RequestFilter) ([]R, error) {
	if f.Status != "" {
		if _, err := model.ParseRequestStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	return w.kind.list(ctx, w.store, f)
}

// Approve settles the request against the wallet and marks it approved.
// A withdrawal the wallet cannot cover is rejected instead, with a failed transaction on record.
// A request that is no longer pending comes back unchanged with an AlreadyProcessed error.
func (w *RequestWorkflow[R]) Approve(ctx context.Context, actor auth.Actor, id string) (R, error) {
	return w.approve(ctx, actor, id, "")
}

// Reject marks a pending request rejected without touching the wallet.
func (w *RequestWorkflow[R]) Reject(ctx context.Context, actor auth.Actor, id, note string) (R, error) {
	var zero R
	if err := auth.RequireAdmin(actor); err != nil {
		return zero, err
	}
	err := w.kind.transition(ctx, w.store, id, model.Transition{
		Status: model.RequestRejected, AdminNote: note, ProcessedBy: actor.UserID, ProcessedAt: w.clock.Now(),
	})
	if err != nil && !errors.Is(err, model.ErrAlreadyProcessed) {
		return zero, err
	}
	r, getErr := w.kind.get(ctx, w.store, id)
	if getErr != nil {
		return zero, getErr
	}
	if err != nil {
		return r, err
	}
	w.processed(ctx, actor, r, w.kind.rejectedAction, note)
	return r, nil
}

// Process is the single admin entry point: approve or reject with an optional note.
func (w *RequestWorkflow[R]) Process(ctx context.Context, actor auth.Actor, id string, approved bool, note string) (R, error) {
	if approved {
		return w.approve(ctx, actor, id, note)
	}
	return w.Reject(ctx, actor, id, note)
}

func (w *RequestWorkflow[R]) approve(ctx context.Context, actor auth.Actor, id, note string) (R, error) {
	var zero R
	if err := auth.RequireAdmin(actor); err != nil {
		return zero, err
	}
	// the owner decides which wallet lock the unit runs under
	r, err := w.kind.get(ctx, w.store, id)
	if err != nil {
		return zero, err
	}
	if r.State().Terminal() {
		return r, alreadyProcessed(w.kind.kind, r)
	}

	var (
		out    R
		action string
		reason string
	)
	err = w.store.Atomic(ctx, r.Owner(), func(tx repo.LedgerStore) error {
		cur, err := w.kind.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.State().Terminal() {
			return alreadyProcessed(w.kind.kind, cur)
		}

		status, adminNote := model.RequestApproved, note
		action, reason = w.kind.approvedAction, ""
		_, _, err = w.kind.settle(ctx, w.wallet.WithStore(tx), cur)
		switch {
		case err == nil:
		case w.kind.autoReject && (errors.Is(err, model.ErrInsufficientFunds) || errors.Is(err, model.ErrNotFound)):
			bal := decimal.Zero
			if wal, werr := tx.GetWallet(ctx, cur.Owner()); werr == nil {
				bal = wal.Balance
			}
			reason = fmt.Sprintf("auto-rejected: insufficient funds (balance %s, requested %s)",
				bal.String(), cur.RequestedAmount().String())
			status, adminNote, action = model.RequestRejected, reason, w.kind.rejectedAction
			if err := tx.RecordFailed(ctx, &model.Transaction{
				UserID: cur.Owner(), Type: w.kind.txType, Amount: cur.RequestedAmount(),
				Metadata: model.Metadata{"request_id": cur.Key(), "reason": reason},
			}); err != nil {
				return err
			}
		default:
			return err
		}

		err = w.kind.transition(ctx, tx, id, model.Transition{
			Status: status, AdminNote: adminNote, ProcessedBy: actor.UserID, ProcessedAt: w.clock.Now(),
		})
		if err != nil {
			return err
		}
		out, err = w.kind.get(ctx, tx, id)
		return err
	})
	if errors.Is(err, model.ErrAlreadyProcessed) {
		// another admin may have won between the read and the transition
		stored, getErr := w.kind.get(ctx, w.store, id)
		if getErr != nil {
			return zero, getErr
		}
		return stored, err
	}
	if err != nil {
		return zero, err
	}
	if action == w.kind.approvedAction {
		w.wallet.Refresh(ctx, out.Owner())
	} else {
		w.log.Infow("request auto-rejected", "kind", w.kind.kind, "id", id, "user_id", out.Owner(), "reason", reason)
	}
	w.processed(ctx, actor, out, action, note)
	return out, nil
}

func (w *RequestWorkflow[R]) processed(ctx context.Context, actor auth.Actor, r R, action, note string) {
	metrics.RequestsProcessed.WithLabelValues(w.kind.kind.String(), string(r.State())).Inc()
	details := map[string]interface{}{
		"request_id": r.Key(),
		"amount":     r.RequestedAmount().String(),
		"status":     string(r.State()),
	}
	if note != "" {
		details["admin_note"] = note
	}
	w.audit.Emit(ctx, audit.Event{
		UserID:  r.Owner(),
		Action:  action,
		Details: details,
		ActorID: actor.UserID,
	}.WithOrigin(ctx))
}

func alreadyProcessed(kind model.RequestKind, r Request) error {
	return model.Errorf(model.KindAlreadyProcessed, "%s request %s is already %s", kind, r.Key(), r.State())
}
