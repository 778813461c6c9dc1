package models

import "github.com/punchamoorthee/fundops/internal/domain"

// RequestPayload is the body of every request-creating call.
// The author is taken from the X-Profile-ID header, never from the body.
type RequestPayload struct {
	ToProfileID    int64  `json:"to_profile_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Specifications string `json:"specifications"`
	Cost           int64  `json:"cost"`
}

type AmountPayload struct {
	Amount int64 `json:"amount"`
}

type FundingRequestPayload struct {
	Repayment int64 `json:"repayment"`
}

type StatusPayload struct {
	Status domain.RequestStatus `json:"status"`
}

type WalletPayload struct {
	ID        string `json:"id"`
	ProfileID *int64 `json:"profile_id"`
	Balance   int64  `json:"balance"`
}

type TransferRequest struct {
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	Amount       int64  `json:"amount"`
}

type AcceptResponse struct {
	Accepted int64   `json:"accepted"`
	Rejected []int64 `json:"rejected"`
}

// Contract adds the derived amounts to the stored aggregate.
type Contract struct {
	*domain.Contract
	Yield             int64 `json:"yield"`
	RaisedAmount      int64 `json:"raised_amount"`
	OutstandingAmount int64 `json:"outstanding_amount"`
}

func NewContract(c *domain.Contract) Contract {
	return Contract{
		Contract:          c,
		Yield:             c.Yield(),
		RaisedAmount:      c.RaisedAmount(),
		OutstandingAmount: c.OutstandingAmount(),
	}
}

type FundingRequestResponse struct {
	Request  domain.RequestForFunding `json:"request"`
	Contract Contract                 `json:"contract"`
}

type FundResponse struct {
	Funding  *domain.Funding `json:"funding"`
	Contract Contract        `json:"contract"`
}

type DisburseResponse struct {
	Disbursed bool     `json:"disbursed"`
	Contract  Contract `json:"contract"`
}

type Balance struct {
	WalletID string `json:"wallet_id"`
	Balance  int64  `json:"balance"`
}
