package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/fundops/internal/domain"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundops_transfers_total",
		Help: "Ledger settlements, labeled by transaction type and result",
	}, []string{"type", "result"})

	fundingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundops_fundings_total",
		Help: "Funding attempts against contracts, labeled by result",
	}, []string{"result"})

	proposalsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundops_proposals_accepted_total",
		Help: "Proposals accepted, each closing its RFP",
	})

	disbursementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundops_disbursements_total",
		Help: "Contracts disbursed to their investors",
	})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// logFailure logs business rejections at debug and everything else at error.
func logFailure(l *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if domain.KindOf(err) == domain.KindInternal {
		l.Error(msg, fields...)
		return
	}
	l.Debug(msg, fields...)
}
