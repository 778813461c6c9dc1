package domain

import "time"

type RequestType string

const (
	TypeRFP      RequestType = "RFP"
	TypeProposal RequestType = "PRO"
	TypeRFF      RequestType = "RFF"
	TypeRPY      RequestType = "RPY"
)

func (t RequestType) Valid() bool {
	switch t {
	case TypeRFP, TypeProposal, TypeRFF, TypeRPY:
		return true
	}
	return false
}

type RequestStatus string

const (
	StatusOpen              RequestStatus = "OPEN"
	StatusClosed            RequestStatus = "CLOSED"
	StatusAccepted          RequestStatus = "ACCEPTED"
	StatusFundingRequested  RequestStatus = "FUNDING_REQUESTED"
	StatusSolutionDelivered RequestStatus = "SOLUTION_DELIVERED"
	StatusSolutionAccepted  RequestStatus = "SOLUTION_ACCEPTED"
	StatusSolutionPaid      RequestStatus = "SOLUTION_PAID"
	StatusRepaid            RequestStatus = "REPAID"
	StatusFundsDisbursed    RequestStatus = "FUNDS_DISBURSED"
	StatusRejected          RequestStatus = "REJECTED"
)

// Request is the single stored workflow record. Type never changes after creation;
// the typed views below are projected from it on read and never stored.
type Request struct {
	ID             int64         `json:"id"`
	FromProfileID  int64         `json:"from_profile_id"`
	ToProfileID    int64         `json:"to_profile_id,omitempty"`
	RequestID      *int64        `json:"request_id,omitempty"`
	Title          string        `json:"title"`
	Type           RequestType   `json:"type"`
	Status         RequestStatus `json:"status"`
	Description    string        `json:"description"`
	Cost           int64         `json:"cost"`
	Repayment      *int64        `json:"repayment,omitempty"`
	Specifications string        `json:"specifications,omitempty"`
	CreatedAt      time.Time     `json:"created_timestamp"`
}

// Clone returns a copy that shares no pointers with r.
func (r Request) Clone() Request {
	if r.RequestID != nil {
		id := *r.RequestID
		r.RequestID = &id
	}
	if r.Repayment != nil {
		v := *r.Repayment
		r.Repayment = &v
	}
	return r
}

// transitions lists the allowed forward moves per request type.
// REJECTED and CLOSED have no outgoing edges.
var transitions = map[RequestType]map[RequestStatus][]RequestStatus{
	TypeRFP: {
		StatusOpen: {StatusClosed, StatusRejected},
	},
	TypeProposal: {
		StatusOpen:              {StatusAccepted, StatusRejected},
		StatusAccepted:          {StatusFundingRequested, StatusSolutionDelivered},
		StatusFundingRequested:  {StatusSolutionDelivered},
		StatusSolutionDelivered: {StatusSolutionAccepted},
		StatusSolutionAccepted:  {StatusSolutionPaid},
		StatusSolutionPaid:      {StatusRepaid},
		StatusRepaid:            {StatusFundsDisbursed},
	},
	TypeRFF: {
		StatusOpen:   {StatusRepaid, StatusClosed},
		StatusRepaid: {StatusFundsDisbursed},
	},
	TypeRPY: {
		StatusOpen: {StatusSolutionPaid, StatusRejected},
	},
}

func CanTransition(t RequestType, from, to RequestStatus) bool {
	for _, next := range transitions[t][from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves r to status or fails with ErrInvalidRequestStatus.
// It is meant for the workflow operations that own the orchestrated edges.
func (r *Request) Transition(status RequestStatus) error {
	if !CanTransition(r.Type, r.Status, status) {
		return NewError(ErrInvalidRequestStatus, "request", r.ID, string(r.Status)+"->"+string(status))
	}
	r.Status = status
	return nil
}

type edge struct {
	typ      RequestType
	from, to RequestStatus
}

// orchestrated edges are only taken by acceptProposal, requestFunding, repay
// and disburse, which update the related records in the same transaction.
var orchestrated = map[edge]bool{
	{TypeProposal, StatusOpen, StatusAccepted}:             true,
	{TypeRFP, StatusOpen, StatusClosed}:                    true,
	{TypeProposal, StatusAccepted, StatusFundingRequested}: true,
	{TypeRFF, StatusOpen, StatusRepaid}:                    true,
	{TypeRFF, StatusRepaid, StatusFundsDisbursed}:          true,
}

// CanAdvance reports whether a caller may move a request directly, outside
// any orchestrated operation.
func CanAdvance(t RequestType, from, to RequestStatus) bool {
	return CanTransition(t, from, to) && !orchestrated[edge{t, from, to}]
}

// Advance is Transition restricted to the edges CanAdvance allows.
func (r *Request) Advance(status RequestStatus) error {
	if !CanAdvance(r.Type, r.Status, status) {
		return NewError(ErrInvalidRequestStatus, "request", r.ID, string(r.Status)+"->"+string(status))
	}
	r.Status = status
	return nil
}

type RequestForProposal struct {
	Request
}

type Proposal struct {
	Request
	RFPID int64 `json:"rfp_id"`
}

type RequestForFunding struct {
	Request
	ProposalID int64 `json:"proposal_id"`
}

func (r RequestForFunding) TargetAmount() int64 { return r.Cost }

func (r RequestForFunding) RepaymentAmount() int64 {
	if r.Repayment == nil {
		return 0
	}
	return *r.Repayment
}

type RequestForPayment struct {
	Request
	ProposalID int64 `json:"proposal_id"`
}

func (r Request) expect(t RequestType) error {
	if r.Type != t {
		return NewError(ErrInvalidRequestType, "request", r.ID, string(r.Type))
	}
	return nil
}

func (r Request) parent() (int64, error) {
	if r.RequestID == nil {
		return 0, NewError(ErrInvalidRequestID, "request", r.ID, nil)
	}
	return *r.RequestID, nil
}

func (r Request) AsRFP() (RequestForProposal, error) {
	if err := r.expect(TypeRFP); err != nil {
		return RequestForProposal{}, err
	}
	return RequestForProposal{Request: r.Clone()}, nil
}

func (r Request) AsProposal() (Proposal, error) {
	if err := r.expect(TypeProposal); err != nil {
		return Proposal{}, err
	}
	rfpID, err := r.parent()
	if err != nil {
		return Proposal{}, err
	}
	return Proposal{Request: r.Clone(), RFPID: rfpID}, nil
}

func (r Request) AsRFF() (RequestForFunding, error) {
	if err := r.expect(TypeRFF); err != nil {
		return RequestForFunding{}, err
	}
	proposalID, err := r.parent()
	if err != nil {
		return RequestForFunding{}, err
	}
	return RequestForFunding{Request: r.Clone(), ProposalID: proposalID}, nil
}

func (r Request) AsRPY() (RequestForPayment, error) {
	if err := r.expect(TypeRPY); err != nil {
		return RequestForPayment{}, err
	}
	proposalID, err := r.parent()
	if err != nil {
		return RequestForPayment{}, err
	}
	return RequestForPayment{Request: r.Clone(), ProposalID: proposalID}, nil
}
