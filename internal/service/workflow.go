package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/fundops/internal/domain"
	"github.com/punchamoorthee/fundops/internal/store"
)

// RequestInput carries the caller-supplied fields of a new request.
// FromProfileID is assumed to be already authenticated.
type RequestInput struct {
	FromProfileID  int64
	ToProfileID    int64
	Title          string
	Description    string
	Specifications string
	Cost           int64
}

type RequestService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewRequestService(s store.Store, logger *zap.Logger) *RequestService {
	return &RequestService{store: s, logger: logger, now: time.Now}
}

func (s *RequestService) newRequest(typ domain.RequestType, in RequestInput, parent *int64) (*domain.Request, error) {
	if in.Cost < 1 {
		return nil, domain.NewError(domain.ErrInvalidCost, "profile", in.FromProfileID, in.Cost)
	}
	return &domain.Request{
		FromProfileID:  in.FromProfileID,
		ToProfileID:    in.ToProfileID,
		RequestID:      parent,
		Title:          in.Title,
		Type:           typ,
		Status:         domain.StatusOpen,
		Description:    in.Description,
		Cost:           in.Cost,
		Specifications: in.Specifications,
		CreatedAt:      s.now().UTC(),
	}, nil
}

func (s *RequestService) CreateRFP(ctx context.Context, in RequestInput) (domain.RequestForProposal, error) {
	r, err := s.newRequest(domain.TypeRFP, in, nil)
	if err != nil {
		return domain.RequestForProposal{}, err
	}
	if err := s.store.CreateRequest(ctx, r); err != nil {
		return domain.RequestForProposal{}, err
	}
	s.logger.Info("rfp created", zap.Int64("request_id", r.ID), zap.Int64("profile_id", r.FromProfileID))
	return r.AsRFP()
}

// SubmitProposal answers an open RFP. The proposal is addressed to the RFP's author.
func (s *RequestService) SubmitProposal(ctx context.Context, rfpID int64, in RequestInput) (domain.Proposal, error) {
	var created *domain.Request
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		parent, err := tx.LockRequest(ctx, rfpID)
		if err != nil {
			return err
		}
		rfp, err := parent.AsRFP()
		if err != nil {
			return err
		}
		if rfp.Status != domain.StatusOpen {
			return domain.NewError(domain.ErrInvalidRequestStatus, "request", rfp.ID, string(rfp.Status))
		}
		in.ToProfileID = rfp.FromProfileID
		r, err := s.newRequest(domain.TypeProposal, in, &rfpID)
		if err != nil {
			return err
		}
		if err := tx.CreateRequest(ctx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		logFailure(s.logger, "proposal rejected", err, zap.Int64("rfp_id", rfpID))
		return domain.Proposal{}, err
	}
	s.logger.Info("proposal submitted", zap.Int64("request_id", created.ID), zap.Int64("rfp_id", rfpID))
	return created.AsProposal()
}

// AcceptProposal accepts one proposal, rejects every sibling and closes the
// parent RFP in a single transaction. It returns the rejected sibling ids.
func (s *RequestService) AcceptProposal(ctx context.Context, proposalID int64) ([]int64, error) {
	var rejected []int64
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		// 1. Validate the proposal before taking any lock
		p, err := tx.GetRequest(ctx, proposalID)
		if err != nil {
			return err
		}
		if err := checkOpenProposal(p); err != nil {
			return err
		}
		rfpID := *p.RequestID

		// 2. Lock parent first, then siblings in id order
		rfp, err := tx.LockRequest(ctx, rfpID)
		if err != nil {
			return err
		}
		siblings, err := tx.LockRequestsByParent(ctx, rfpID)
		if err != nil {
			return err
		}

		// 3. Re-check under lock; a concurrent accept may have won
		for _, sib := range siblings {
			if sib.ID == proposalID {
				if err := checkOpenProposal(sib); err != nil {
					return err
				}
			}
		}
		if err := rfp.Transition(domain.StatusClosed); err != nil {
			return err
		}

		// 4. Writes
		if err := tx.UpdateRequestStatus(ctx, proposalID, domain.StatusAccepted); err != nil {
			return err
		}
		rejected = make([]int64, 0, len(siblings))
		for _, sib := range siblings {
			if sib.ID == proposalID {
				continue
			}
			if err := tx.UpdateRequestStatus(ctx, sib.ID, domain.StatusRejected); err != nil {
				return err
			}
			rejected = append(rejected, sib.ID)
		}
		return tx.UpdateRequestStatus(ctx, rfpID, domain.StatusClosed)
	})
	if err != nil {
		logFailure(s.logger, "proposal not accepted", err, zap.Int64("request_id", proposalID))
		return nil, err
	}
	proposalsAccepted.Inc()
	s.logger.Info("proposal accepted",
		zap.Int64("request_id", proposalID), zap.Int64s("rejected", rejected))
	return rejected, nil
}

func checkOpenProposal(r domain.Request) error {
	if r.Type != domain.TypeProposal {
		return domain.NewError(domain.ErrInvalidRequestType, "request", r.ID, string(r.Type))
	}
	if r.Status != domain.StatusOpen {
		return domain.NewError(domain.ErrInvalidRequestStatus, "request", r.ID, string(r.Status))
	}
	if r.RequestID == nil {
		return domain.NewError(domain.ErrInvalidRequestID, "request", r.ID, nil)
	}
	return nil
}

var payableStatuses = map[domain.RequestStatus]bool{
	domain.StatusAccepted:         true,
	domain.StatusFundingRequested: true,
	domain.StatusSolutionAccepted: true,
}

// RequestPayment raises an RPY from the provider of an accepted proposal to its requester.
func (s *RequestService) RequestPayment(ctx context.Context, proposalID, amount int64) (domain.RequestForPayment, error) {
	var created *domain.Request
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		r, err := tx.LockRequest(ctx, proposalID)
		if err != nil {
			return err
		}
		p, err := r.AsProposal()
		if err != nil {
			return err
		}
		if !payableStatuses[p.Status] {
			return domain.NewError(domain.ErrInvalidRequestStatus, "request", p.ID, string(p.Status))
		}
		rpy, err := s.newRequest(domain.TypeRPY, RequestInput{
			FromProfileID: p.FromProfileID,
			ToProfileID:   p.ToProfileID,
			Title:         "Payment for " + p.Title,
			Description:   p.Description,
			Cost:          amount,
		}, &proposalID)
		if err != nil {
			return err
		}
		if err := tx.CreateRequest(ctx, rpy); err != nil {
			return err
		}
		created = rpy
		return nil
	})
	if err != nil {
		logFailure(s.logger, "payment request rejected", err, zap.Int64("proposal_id", proposalID))
		return domain.RequestForPayment{}, err
	}
	s.logger.Info("payment requested", zap.Int64("request_id", created.ID), zap.Int64("proposal_id", proposalID))
	return created.AsRPY()
}

// AdvanceStatus applies a single step of the per-type transition table. Edges
// owned by AcceptProposal and the contract operations are refused.
func (s *RequestService) AdvanceStatus(ctx context.Context, id int64, status domain.RequestStatus) (domain.Request, error) {
	var out domain.Request
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Advance(status); err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, id, status); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		logFailure(s.logger, "status change rejected", err, zap.Int64("request_id", id), zap.String("status", string(status)))
		return domain.Request{}, err
	}
	s.logger.Info("request status changed", zap.Int64("request_id", id), zap.String("status", string(status)))
	return out, nil
}

func (s *RequestService) GetRequest(ctx context.Context, id int64) (domain.Request, error) {
	return s.store.GetRequest(ctx, id)
}

// GetProposals lists the proposals answering rfpID.
func (s *RequestService) GetProposals(ctx context.Context, rfpID int64) ([]domain.Proposal, error) {
	parent, err := s.store.GetRequest(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	if _, err := parent.AsRFP(); err != nil {
		return nil, err
	}
	rows, err := s.store.ListRequestsByParent(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Proposal, 0, len(rows))
	for _, r := range rows {
		p, err := r.AsProposal()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// GetRequestForFundingsFor lists the RFFs raised by a provider.
func (s *RequestService) GetRequestForFundingsFor(ctx context.Context, providerID int64) ([]domain.RequestForFunding, error) {
	rows, err := s.store.ListRequestsFrom(ctx, providerID, domain.TypeRFF)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RequestForFunding, 0, len(rows))
	for _, r := range rows {
		rff, err := r.AsRFF()
		if err != nil {
			return nil, err
		}
		out = append(out, rff)
	}
	return out, nil
}

func (s *RequestService) GetRequestsFrom(ctx context.Context, profileID int64, typ domain.RequestType) ([]domain.Request, error) {
	if !typ.Valid() {
		return nil, domain.NewError(domain.ErrInvalidRequestType, "profile", profileID, string(typ))
	}
	return s.store.ListRequestsFrom(ctx, profileID, typ)
}
