package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/fundops/internal/domain"
	"github.com/punchamoorthee/fundops/internal/ledger"
	"github.com/punchamoorthee/fundops/internal/store"
	"github.com/punchamoorthee/fundops/internal/txlog"
)

// ContractService drives a contract from funding request to disbursement.
// Every operation persists its record changes and its ledger settlement inside
// one store transaction; the settlement is prepared last so a rejected one rolls
// the records back.
type ContractService struct {
	store     store.Store
	transfers *TransferService
	logger    *zap.Logger
	now       func() time.Time
}

func NewContractService(s store.Store, transfers *TransferService, logger *zap.Logger) *ContractService {
	return &ContractService{store: s, transfers: transfers, logger: logger, now: time.Now}
}

// RequestFunding turns an accepted proposal into an RFF and opens its contract.
func (s *ContractService) RequestFunding(ctx context.Context, proposalID, repayment int64) (*domain.Contract, domain.RequestForFunding, error) {
	var (
		contract *domain.Contract
		rff      *domain.Request
	)
	err := s.transfers.runInTx(ctx, func(tx store.Tx, st *settler) error {
		p, err := tx.LockRequest(ctx, proposalID)
		if err != nil {
			return err
		}
		if _, err := p.AsProposal(); err != nil {
			return err
		}
		if err := p.Transition(domain.StatusFundingRequested); err != nil {
			return err
		}

		now := s.now().UTC()
		walletID := uuid.NewString()
		c, err := domain.NewContract(proposalID, walletID, p.Cost, repayment, now)
		if err != nil {
			return err
		}

		if err := tx.UpdateRequestStatus(ctx, proposalID, p.Status); err != nil {
			return err
		}
		r := &domain.Request{
			FromProfileID: p.FromProfileID,
			ToProfileID:   p.ToProfileID,
			RequestID:     &proposalID,
			Title:         p.Title,
			Type:          domain.TypeRFF,
			Status:        domain.StatusOpen,
			Description:   p.Description,
			Cost:          p.Cost,
			Repayment:     &repayment,
			CreatedAt:     now,
		}
		if err := tx.CreateRequest(ctx, r); err != nil {
			return err
		}
		c.RequestID = r.ID
		if err := tx.CreateContract(ctx, c); err != nil {
			return err
		}
		if err := st.openWallet(store.Wallet{ID: walletID}); err != nil {
			return err
		}
		contract, rff = c, r
		return nil
	})
	if err != nil {
		logFailure(s.logger, "funding request rejected", err, zap.Int64("proposal_id", proposalID))
		return nil, domain.RequestForFunding{}, err
	}
	s.logger.Info("funding requested",
		zap.Int64("proposal_id", proposalID),
		zap.Int64("request_id", rff.ID),
		zap.Int64("contract_id", contract.ID),
		zap.String("wallet_id", contract.WalletID),
		zap.Int64("yield", contract.Yield()))
	view, err := rff.AsRFF()
	return contract, view, err
}

// Fund records an investor's stake and moves the money into the contract wallet.
// The outstanding amount is re-checked with the contract row locked.
func (s *ContractService) Fund(ctx context.Context, contractID, profileID, amount int64) (*domain.Funding, *domain.Contract, error) {
	var (
		funding  *domain.Funding
		contract *domain.Contract
	)
	err := s.transfers.runInTx(ctx, func(tx store.Tx, st *settler) error {
		c, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		from, err := tx.WalletForProfile(ctx, profileID)
		if err != nil {
			return err
		}
		f, err := c.Fund(profileID, amount, s.now().UTC())
		if err != nil {
			return err
		}
		if err := tx.CreateFunding(ctx, f); err != nil {
			return err
		}
		if err := tx.UpdateContractStatus(ctx, c.ID, c.Status); err != nil {
			return err
		}
		legs := []ledger.Leg{{From: from, To: c.WalletID, Amount: amount}}
		if _, err := st.settle(txlog.TypeFunding, legs, true); err != nil {
			return overdraft(err, profileID, amount)
		}
		funding, contract = f, c
		return nil
	})
	fundingsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		logFailure(s.logger, "funding rejected", err,
			zap.Int64("contract_id", contractID), zap.Int64("profile_id", profileID),
			zap.Int64("amount", amount))
		return nil, nil, err
	}
	s.logger.Info("contract funded",
		zap.Int64("contract_id", contractID),
		zap.Int64("funding_id", funding.ID),
		zap.Int64("amount", amount),
		zap.String("status", string(contract.Status)))
	return funding, contract, nil
}

// TransferToProvider pays the raised target out to the provider who asked for funding.
func (s *ContractService) TransferToProvider(ctx context.Context, contractID int64) (*domain.Contract, error) {
	var contract *domain.Contract
	err := s.transfers.runInTx(ctx, func(tx store.Tx, st *settler) error {
		c, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		if err := c.MarkTransferred(); err != nil {
			return err
		}
		rff, err := tx.GetRequest(ctx, c.RequestID)
		if err != nil {
			return err
		}
		to, err := tx.WalletForProfile(ctx, rff.FromProfileID)
		if err != nil {
			return err
		}
		if err := tx.UpdateContractStatus(ctx, c.ID, c.Status); err != nil {
			return err
		}
		legs := []ledger.Leg{{From: c.WalletID, To: to, Amount: c.TargetAmount}}
		if _, err := st.settle(txlog.TypePayout, legs, true); err != nil {
			return err
		}
		contract = c
		return nil
	})
	if err != nil {
		logFailure(s.logger, "payout rejected", err, zap.Int64("contract_id", contractID))
		return nil, err
	}
	s.logger.Info("contract paid out to provider",
		zap.Int64("contract_id", contractID), zap.Int64("amount", contract.TargetAmount))
	return contract, nil
}

// Repay moves what the contract owes its investors from the provider back into
// the contract wallet. That is never less than the repayment amount.
func (s *ContractService) Repay(ctx context.Context, contractID int64) (*domain.Contract, error) {
	var contract *domain.Contract
	err := s.transfers.runInTx(ctx, func(tx store.Tx, st *settler) error {
		c, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		if err := c.MarkRepaid(); err != nil {
			return err
		}
		rff, err := tx.LockRequest(ctx, c.RequestID)
		if err != nil {
			return err
		}
		if err := rff.Transition(domain.StatusRepaid); err != nil {
			return err
		}
		from, err := tx.WalletForProfile(ctx, rff.FromProfileID)
		if err != nil {
			return err
		}
		if err := tx.UpdateContractStatus(ctx, c.ID, c.Status); err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, rff.ID, rff.Status); err != nil {
			return err
		}
		owed := c.OwedAmount()
		legs := []ledger.Leg{{From: from, To: c.WalletID, Amount: owed}}
		if _, err := st.settle(txlog.TypeRepayment, legs, true); err != nil {
			return overdraft(err, rff.FromProfileID, owed)
		}
		contract = c
		return nil
	})
	if err != nil {
		logFailure(s.logger, "repayment rejected", err, zap.Int64("contract_id", contractID))
		return nil, err
	}
	s.logger.Info("contract repaid",
		zap.Int64("contract_id", contractID), zap.Int64("amount", contract.OwedAmount()))
	return contract, nil
}

// Disburse pays every funding its returns in one ledger settlement. It is a
// no-op, reported by the bool, unless the contract is FUNDS_REPAID.
func (s *ContractService) Disburse(ctx context.Context, contractID int64) (*domain.Contract, bool, error) {
	var (
		contract  *domain.Contract
		disbursed bool
	)
	err := s.transfers.runInTx(ctx, func(tx store.Tx, st *settler) error {
		c, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		contract = c
		if !c.Disburse() {
			return nil
		}

		legs := make([]ledger.Leg, 0, len(c.Fundings))
		for _, f := range c.Fundings {
			if err := tx.UpdateFunding(ctx, f); err != nil {
				return err
			}
			to, err := tx.WalletForProfile(ctx, f.ProfileID)
			if err != nil {
				return err
			}
			legs = append(legs, ledger.Leg{From: c.WalletID, To: to, Amount: f.DisbursedAmount})
		}
		if err := tx.UpdateContractStatus(ctx, c.ID, c.Status); err != nil {
			return err
		}
		rff, err := tx.LockRequest(ctx, c.RequestID)
		if err != nil {
			return err
		}
		if err := rff.Transition(domain.StatusFundsDisbursed); err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, rff.ID, rff.Status); err != nil {
			return err
		}
		if _, err := st.settle(txlog.TypeDisbursement, legs, true); err != nil {
			return err
		}
		disbursed = true
		return nil
	})
	if err != nil {
		logFailure(s.logger, "disbursement failed", err, zap.Int64("contract_id", contractID))
		return nil, false, err
	}
	if disbursed {
		disbursementsTotal.Inc()
		s.logger.Info("contract disbursed",
			zap.Int64("contract_id", contractID), zap.Int("fundings", len(contract.Fundings)))
	}
	return contract, disbursed, nil
}

func (s *ContractService) GetContract(ctx context.Context, id int64) (*domain.Contract, error) {
	return s.store.GetContract(ctx, id)
}

func (s *ContractService) GetContractByRequest(ctx context.Context, requestID int64) (*domain.Contract, error) {
	return s.store.GetContractByRequest(ctx, requestID)
}

func (s *ContractService) GetFundingsFor(ctx context.Context, profileID int64) ([]domain.Funding, error) {
	return s.store.ListFundingsByProfile(ctx, profileID)
}

func overdraft(err error, profileID, amount int64) error {
	if errors.Is(err, ledger.ErrOverdraft) {
		return domain.NewError(domain.ErrInsufficientFunds, "profile", profileID, amount)
	}
	return err
}
