package service

import (
	"time"

	"github.com/richardliu001/ledger-core/internal/config"
	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/shopspring/decimal"
)

// Terms is the rate and lock period offered for a plan or package.
type Terms struct {
	Rate     decimal.Decimal `json:"rate"`
	Duration time.Duration   `json:"duration"`
}

// Catalog lists the staking plans and investment packages on offer.
type Catalog struct {
	Staking     map[model.StakingPlan]Terms
	Investments map[model.InvestmentPackage]Terms
}

func NewCatalog(cfg config.PositionsConfig) (*Catalog, error) {
	c := &Catalog{
		Staking:     make(map[model.StakingPlan]Terms, len(cfg.Staking)),
		Investments: make(map[model.InvestmentPackage]Terms, len(cfg.Investments)),
	}
	for name, t := range cfg.Staking {
		plan, err := model.ParseStakingPlan(name)
		if err != nil {
			return nil, err
		}
		c.Staking[plan] = Terms{Rate: decimal.NewFromFloat(t.Rate), Duration: t.Duration}
	}
	for name, t := range cfg.Investments {
		pkg, err := model.ParseInvestmentPackage(name)
		if err != nil {
			return nil, err
		}
		c.Investments[pkg] = Terms{Rate: decimal.NewFromFloat(t.Rate), Duration: t.Duration}
	}
	return c, nil
}

func (c *Catalog) StakeTerms(plan model.StakingPlan) (Terms, error) {
	t, ok := c.Staking[plan]
	if !ok {
		return Terms{}, model.Errorf(model.KindInvalidArgument, "staking plan %q is not offered", plan)
	}
	return t, nil
}

// InvestmentTerms also computes the expected return for amount.
func (c *Catalog) InvestmentTerms(pkg model.InvestmentPackage, amount decimal.Decimal) (Terms, decimal.Decimal, error) {
	t, ok := c.Investments[pkg]
	if !ok {
		return Terms{}, decimal.Zero, model.Errorf(model.KindInvalidArgument, "investment package %q is not offered", pkg)
	}
	return t, amount.Mul(t.Rate).Round(scale), nil
}

// EarlyExitFromConfig builds the configured policy.
func EarlyExitFromConfig(cfg config.EarlyExitConfig) EarlyExitPolicy {
	if !cfg.Enabled {
		return NoEarlyExit{}
	}
	return PenaltyEarlyExit{Rate: decimal.NewFromFloat(cfg.PenaltyRate)}
}
