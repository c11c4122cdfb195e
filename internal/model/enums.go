package model

type TxType string

const (
	TxDeposit          TxType = "deposit"
	TxWithdrawal       TxType = "withdrawal"
	TxPurchase         TxType = "purchase"
	TxStaking          TxType = "staking"
	TxUnstaking        TxType = "unstaking"
	TxInvestment       TxType = "investment"
	TxInvestmentReturn TxType = "investment_return"
	TxStakeReward      TxType = "stake_reward"
)

func ParseTxType(s string) (TxType, error) {
	switch t := TxType(s); t {
	case TxDeposit, TxWithdrawal, TxPurchase, TxStaking, TxUnstaking,
		TxInvestment, TxInvestmentReturn, TxStakeReward:
		return t, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown transaction type %q", s)
}

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

func ParseTxStatus(s string) (TxStatus, error) {
	switch st := TxStatus(s); st {
	case TxPending, TxCompleted, TxFailed:
		return st, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown transaction status %q", s)
}

// CanTransition reports whether a transaction may move from s to next.
// Only pending rows move, and only once.
func (s TxStatus) CanTransition(next TxStatus) bool {
	return s == TxPending && (next == TxCompleted || next == TxFailed)
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

func ParseRequestStatus(s string) (RequestStatus, error) {
	switch st := RequestStatus(s); st {
	case RequestPending, RequestApproved, RequestRejected:
		return st, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown request status %q", s)
}

func (s RequestStatus) Terminal() bool { return s == RequestApproved || s == RequestRejected }

func (s RequestStatus) CanTransition(next RequestStatus) bool {
	return s == RequestPending && next.Terminal()
}

type StakingStatus string

const (
	StakingActive   StakingStatus = "active"
	StakingUnstaked StakingStatus = "unstaked"
)

type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
)

func ParseStakingStatus(s string) (StakingStatus, error) {
	switch st := StakingStatus(s); st {
	case StakingActive, StakingUnstaked:
		return st, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown staking status %q", s)
}

func ParseInvestmentStatus(s string) (InvestmentStatus, error) {
	switch st := InvestmentStatus(s); st {
	case InvestmentActive, InvestmentCompleted:
		return st, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown investment status %q", s)
}

type StakingPlan string

const (
	PlanBasic   StakingPlan = "basic"
	PlanPremium StakingPlan = "premium"
	PlanVIP     StakingPlan = "vip"
)

func ParseStakingPlan(s string) (StakingPlan, error) {
	switch p := StakingPlan(s); p {
	case PlanBasic, PlanPremium, PlanVIP:
		return p, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown staking plan %q", s)
}

type InvestmentPackage string

const (
	PackageStarter InvestmentPackage = "starter"
	PackageGrowth  InvestmentPackage = "growth"
	PackagePremium InvestmentPackage = "premium"
)

func ParseInvestmentPackage(s string) (InvestmentPackage, error) {
	switch p := InvestmentPackage(s); p {
	case PackageStarter, PackageGrowth, PackagePremium:
		return p, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown investment package %q", s)
}

// RequestKind names the two workflow request collections.
type RequestKind string

const (
	KindDeposit    RequestKind = "deposit"
	KindWithdrawal RequestKind = "withdrawal"
)

func (k RequestKind) String() string { return string(k) }
