package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(latencyMiddleware)

	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/rfps", h.CreateRFPHandler).Methods("POST")
	r.HandleFunc("/rfps/{id}/proposals", h.SubmitProposalHandler).Methods("POST")
	r.HandleFunc("/rfps/{id}/proposals", h.GetProposalsHandler).Methods("GET")
	r.HandleFunc("/proposals/{id}/accept", h.AcceptProposalHandler).Methods("POST")
	r.HandleFunc("/proposals/{id}/payment-requests", h.RequestPaymentHandler).Methods("POST")
	r.HandleFunc("/proposals/{id}/funding-requests", h.RequestFundingHandler).Methods("POST")
	r.HandleFunc("/requests/{id}", h.GetRequestHandler).Methods("GET")
	r.HandleFunc("/requests/{id}/status", h.UpdateStatusHandler).Methods("PUT")
	r.HandleFunc("/requests/{id}/contract", h.GetRequestContractHandler).Methods("GET")

	r.HandleFunc("/contracts/{id}", h.GetContractHandler).Methods("GET")
	r.HandleFunc("/contracts/{id}/fundings", h.FundContractHandler).Methods("POST")
	r.HandleFunc("/contracts/{id}/payout", h.PayoutHandler).Methods("POST")
	r.HandleFunc("/contracts/{id}/repayment", h.RepayHandler).Methods("POST")
	r.HandleFunc("/contracts/{id}/disbursement", h.DisburseHandler).Methods("POST")

	r.HandleFunc("/profiles/{id}/requests", h.GetProfileRequestsHandler).Methods("GET")
	r.HandleFunc("/profiles/{id}/rffs", h.GetProfileRFFsHandler).Methods("GET")
	r.HandleFunc("/profiles/{id}/fundings", h.GetProfileFundingsHandler).Methods("GET")

	r.HandleFunc("/wallets", h.CreateWalletHandler).Methods("POST")
	r.HandleFunc("/wallets/{id}", h.GetWalletHandler).Methods("GET")
	r.HandleFunc("/wallets/{id}/transactions", h.GetWalletTransactionsHandler).Methods("GET")
	r.HandleFunc("/transfers", h.CreateTransferHandler).Methods("POST")
	r.HandleFunc("/transactions", h.GetTransactionsHandler).Methods("GET")

	return r
}

func latencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint(r)))
		defer timer.ObserveDuration()
		next.ServeHTTP(w, r)
	})
}
