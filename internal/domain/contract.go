package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type ContractStatus string

const (
	ContractNotFunded        ContractStatus = "NOT_FUNDED"
	ContractPartiallyFunded  ContractStatus = "PARTIALLY_FUNDED"
	ContractFullyFunded      ContractStatus = "FULLY_FUNDED"
	ContractFundsTransferred ContractStatus = "FUNDS_TRANSFERRED_TO_PROVIDER"
	ContractFundsRepaid      ContractStatus = "FUNDS_REPAID"
	ContractFundsDisbursed   ContractStatus = "FUNDS_DISBURSED"
)

type FundingStatus string

const (
	FundingInContract FundingStatus = "FUNDS_IN_CONTRACT"
	FundingDisbursed  FundingStatus = "FUNDS_DISBURSED"
)

// Funding is one investor's stake in a contract. Only Contract.Fund creates it.
type Funding struct {
	ID              int64         `json:"id"`
	ContractID      int64         `json:"contract_id"`
	ProfileID       int64         `json:"profile_id"`
	Status          FundingStatus `json:"status"`
	FundingAmount   int64         `json:"funding_amount"`
	RepaymentAmount int64         `json:"repayment_amount"`
	DisbursedAmount int64         `json:"disbursed_amount"`
	CreatedAt       time.Time     `json:"created_timestamp"`
}

func (f *Funding) Disburse() {
	f.DisbursedAmount = f.RepaymentAmount
	f.Status = FundingDisbursed
}

// Contract is the funding aggregate for one RFF. Fundings are always loaded
// from the store together with the contract row.
type Contract struct {
	ID              int64          `json:"id"`
	RequestID       int64          `json:"request_id"`
	WalletID        string         `json:"wallet_id"`
	TargetAmount    int64          `json:"target_amount"`
	RepaymentAmount int64          `json:"repayment_amount"`
	Status          ContractStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_timestamp"`
	Fundings        []*Funding     `json:"fundings"`
}

// MaxYield caps the markup a contract may promise, in percent.
const MaxYield = 10000

// maxTarget keeps target * (MaxYield+100)/100 inside int64.
const maxTarget = math.MaxInt64 / (MaxYield/100 + 1)

// NewContract fails with ErrContractAmounts unless 1 <= target < repayment,
// target <= maxTarget and the yield does not exceed MaxYield.
func NewContract(requestID int64, walletID string, target, repayment int64, now time.Time) (*Contract, error) {
	bad := &Error{Err: ErrContractAmounts, Entity: "request", ID: requestID, Value: [2]int64{target, repayment}}
	if target < 1 || repayment < 1 || target >= repayment || target > maxTarget {
		return nil, bad
	}
	if yieldOf(target, repayment).GreaterThan(decimal.NewFromInt(MaxYield)) {
		return nil, bad
	}
	return &Contract{
		RequestID:       requestID,
		WalletID:        walletID,
		TargetAmount:    target,
		RepaymentAmount: repayment,
		Status:          ContractNotFunded,
		CreatedAt:       now,
	}, nil
}

// Yield is the percentage markup of repayment over target, rounded half up.
func (c *Contract) Yield() int64 {
	return yieldOf(c.TargetAmount, c.RepaymentAmount).IntPart()
}

func yieldOf(target, repayment int64) decimal.Decimal {
	ratio := decimal.NewFromInt(repayment).DivRound(decimal.NewFromInt(target), 16)
	return ratio.Mul(decimal.NewFromInt(100)).Sub(decimal.NewFromInt(100)).Round(0)
}

func (c *Contract) RaisedAmount() int64 {
	var sum int64
	for _, f := range c.Fundings {
		sum += f.FundingAmount
	}
	return sum
}

func (c *Contract) OutstandingAmount() int64 {
	return c.TargetAmount - c.RaisedAmount()
}

// FundingReturns is what an investor putting in amount is owed at repayment.
func (c *Contract) FundingReturns(amount int64) int64 {
	owed := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(c.Yield() + 100)).Div(decimal.NewFromInt(100))
	return owed.Round(0).IntPart()
}

// OwedAmount is what the provider must repay so that every funding can be paid
// its rounded returns: the larger of RepaymentAmount and the sum of those returns.
func (c *Contract) OwedAmount() int64 {
	var returns int64
	for _, f := range c.Fundings {
		returns += f.RepaymentAmount
	}
	if returns > c.RepaymentAmount {
		return returns
	}
	return c.RepaymentAmount
}

// Fund appends a new Funding and recomputes the status in the same step.
// The returned Funding has no ID until the store persists it.
func (c *Contract) Fund(profileID, amount int64, now time.Time) (*Funding, error) {
	outstanding := c.OutstandingAmount()
	if amount < 1 || amount > outstanding {
		return nil, &Error{Err: ErrFundingAmount, Entity: "contract", ID: c.ID, Value: amount}
	}
	f := &Funding{
		ContractID:      c.ID,
		ProfileID:       profileID,
		Status:          FundingInContract,
		FundingAmount:   amount,
		RepaymentAmount: c.FundingReturns(amount),
		CreatedAt:       now,
	}
	c.Fundings = append(c.Fundings, f)
	if amount == outstanding {
		c.Status = ContractFullyFunded
	} else {
		c.Status = ContractPartiallyFunded
	}
	return f, nil
}

// Disburse is a no-op unless the contract is FUNDS_REPAID. It reports whether
// the contract and all of its fundings moved to FUNDS_DISBURSED.
func (c *Contract) Disburse() bool {
	if c.Status != ContractFundsRepaid {
		return false
	}
	c.Status = ContractFundsDisbursed
	for _, f := range c.Fundings {
		f.Disburse()
	}
	return true
}

func (c *Contract) MarkTransferred() error {
	return c.advance(ContractFullyFunded, ContractFundsTransferred)
}

func (c *Contract) MarkRepaid() error {
	return c.advance(ContractFundsTransferred, ContractFundsRepaid)
}

func (c *Contract) advance(from, to ContractStatus) error {
	if c.Status != from {
		return &Error{Err: ErrInvalidContractStatus, Entity: "contract", ID: c.ID, Value: string(c.Status)}
	}
	c.Status = to
	return nil
}

// Clone deep-copies the contract and its fundings.
func (c *Contract) Clone() *Contract {
	out := *c
	out.Fundings = make([]*Funding, len(c.Fundings))
	for i, f := range c.Fundings {
		cp := *f
		out.Fundings[i] = &cp
	}
	return &out
}
