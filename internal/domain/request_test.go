package domain

import (
	"errors"
	"testing"
)

func ptr(v int64) *int64 { return &v }

func TestTransitionTable(t *testing.T) {
	r := Request{ID: 1, Type: TypeProposal, Status: StatusOpen, RequestID: ptr(10)}
	if err := r.Transition(StatusAccepted); err != nil {
		t.Fatalf("open->accepted failed: %v", err)
	}
	if err := r.Transition(StatusOpen); !errors.Is(err, ErrInvalidRequestStatus) {
		t.Fatalf("expected ErrInvalidRequestStatus going backwards, got %v", err)
	}
	if err := r.Transition(StatusFundingRequested); err != nil {
		t.Fatalf("accepted->funding_requested failed: %v", err)
	}

	rejected := Request{ID: 2, Type: TypeRFP, Status: StatusRejected}
	for _, next := range []RequestStatus{StatusOpen, StatusClosed, StatusAccepted} {
		if err := rejected.Transition(next); !errors.Is(err, ErrInvalidRequestStatus) {
			t.Fatalf("rejected is terminal, moved to %s: %v", next, err)
		}
	}
	if CanTransition(TypeRFP, StatusClosed, StatusRejected) {
		t.Fatal("closed RFP must be terminal")
	}
}

func TestViewsRequireMatchingType(t *testing.T) {
	rfp := Request{ID: 10, Type: TypeRFP, Status: StatusOpen}
	if _, err := rfp.AsProposal(); !errors.Is(err, ErrInvalidRequestType) {
		t.Fatalf("expected ErrInvalidRequestType, got %v", err)
	}
	view, err := rfp.AsRFP()
	if err != nil || view.ID != 10 {
		t.Fatalf("as rfp failed: %v", err)
	}

	orphan := Request{ID: 11, Type: TypeProposal, Status: StatusOpen}
	if _, err := orphan.AsProposal(); !errors.Is(err, ErrInvalidRequestID) {
		t.Fatalf("expected ErrInvalidRequestID, got %v", err)
	}

	rff := Request{ID: 12, Type: TypeRFF, Status: StatusOpen, RequestID: ptr(11), Cost: 100, Repayment: ptr(120)}
	fv, err := rff.AsRFF()
	if err != nil {
		t.Fatalf("as rff failed: %v", err)
	}
	if fv.ProposalID != 11 || fv.TargetAmount() != 100 || fv.RepaymentAmount() != 120 {
		t.Fatalf("unexpected rff view: %+v", fv)
	}
	*fv.Repayment = 1
	if *rff.Repayment != 120 {
		t.Fatal("view shares repayment pointer with stored record")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(NotFound("request", 1)) != KindNotFound {
		t.Fatal("not found misclassified")
	}
	if KindOf(NewError(ErrInvalidRequestStatus, "request", 1, "CLOSED")) != KindInvalidState {
		t.Fatal("invalid status misclassified")
	}
	if KindOf(NewError(ErrFundingAmount, "contract", 1, int64(5))) != KindInvariant {
		t.Fatal("funding amount misclassified")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("unknown error misclassified")
	}
}

func TestAdvanceRefusesOrchestratedEdges(t *testing.T) {
	owned := []struct {
		typ      RequestType
		from, to RequestStatus
	}{
		{TypeProposal, StatusOpen, StatusAccepted},
		{TypeRFP, StatusOpen, StatusClosed},
		{TypeProposal, StatusAccepted, StatusFundingRequested},
		{TypeRFF, StatusOpen, StatusRepaid},
		{TypeRFF, StatusRepaid, StatusFundsDisbursed},
	}
	for _, e := range owned {
		if !CanTransition(e.typ, e.from, e.to) {
			t.Fatalf("%s %s->%s missing from the transition table", e.typ, e.from, e.to)
		}
		r := Request{ID: 1, Type: e.typ, Status: e.from, RequestID: ptr(9)}
		if err := r.Advance(e.to); !errors.Is(err, ErrInvalidRequestStatus) {
			t.Fatalf("%s %s->%s: expected ErrInvalidRequestStatus, got %v", e.typ, e.from, e.to, err)
		}
		if r.Status != e.from {
			t.Fatalf("%s moved to %s after a refused advance", e.typ, r.Status)
		}
	}

	r := Request{ID: 2, Type: TypeProposal, Status: StatusAccepted, RequestID: ptr(9)}
	if err := r.Advance(StatusSolutionDelivered); err != nil {
		t.Fatalf("accepted->solution_delivered failed: %v", err)
	}
	rpy := Request{ID: 3, Type: TypeRPY, Status: StatusOpen, RequestID: ptr(2)}
	if err := rpy.Advance(StatusSolutionPaid); err != nil {
		t.Fatalf("rpy open->solution_paid failed: %v", err)
	}
}
