package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/fundops/internal/domain"
	"github.com/punchamoorthee/fundops/internal/models"
	"github.com/punchamoorthee/fundops/internal/service"
	"github.com/punchamoorthee/fundops/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// ProfileHeader carries the caller's profile id, resolved by the gateway in front of us.
const ProfileHeader = "X-Profile-ID"

type Handler struct {
	requests  *service.RequestService
	contracts *service.ContractService
	transfers *service.TransferService
	logger    *zap.Logger
}

func NewHandler(requests *service.RequestService, contracts *service.ContractService, transfers *service.TransferService, logger *zap.Logger) *Handler {
	return &Handler{requests: requests, contracts: contracts, transfers: transfers, logger: logger}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Requests

func (h *Handler) CreateRFPHandler(w http.ResponseWriter, r *http.Request) {
	in, ok := h.requestInput(w, r)
	if !ok {
		return
	}
	rfp, err := h.requests.CreateRFP(r.Context(), in)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusCreated, rfp)
}

func (h *Handler) SubmitProposalHandler(w http.ResponseWriter, r *http.Request) {
	rfpID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	in, ok := h.requestInput(w, r)
	if !ok {
		return
	}
	p, err := h.requests.SubmitProposal(r.Context(), rfpID, in)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusCreated, p)
}

func (h *Handler) GetProposalsHandler(w http.ResponseWriter, r *http.Request) {
	rfpID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	proposals, err := h.requests.GetProposals(r.Context(), rfpID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, proposals)
}

func (h *Handler) AcceptProposalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rejected, err := h.requests.AcceptProposal(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, models.AcceptResponse{Accepted: id, Rejected: rejected})
}

func (h *Handler) RequestPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req models.AmountPayload
	if !h.decode(w, r, &req) {
		return
	}
	rpy, err := h.requests.RequestPayment(r.Context(), id, req.Amount)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusCreated, rpy)
}

func (h *Handler) RequestFundingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req models.FundingRequestPayload
	if !h.decode(w, r, &req) {
		return
	}
	c, rff, err := h.contracts.RequestFunding(r.Context(), id, req.Repayment)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusCreated, models.FundingRequestResponse{Request: rff, Contract: models.NewContract(c)})
}

func (h *Handler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, err := h.requests.GetRequest(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, req)
}

func (h *Handler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req models.StatusPayload
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.requests.AdvanceStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, updated)
}

func (h *Handler) GetProfileRequestsHandler(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	typ := domain.RequestType(r.URL.Query().Get("type"))
	rows, err := h.requests.GetRequestsFrom(r.Context(), profileID, typ)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, rows)
}

func (h *Handler) GetProfileRFFsHandler(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rffs, err := h.requests.GetRequestForFundingsFor(r.Context(), profileID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, rffs)
}

// Contracts

func (h *Handler) GetContractHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contracts.GetContract(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, models.NewContract(c))
}

func (h *Handler) GetRequestContractHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contracts.GetContractByRequest(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, models.NewContract(c))
}

func (h *Handler) FundContractHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	var req models.AmountPayload
	if !h.decode(w, r, &req) {
		return
	}
	f, c, err := h.contracts.Fund(r.Context(), id, profileID, req.Amount)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusCreated, models.FundResponse{Funding: f, Contract: models.NewContract(c)})
}

func (h *Handler) PayoutHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contracts.TransferToProvider(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, models.NewContract(c))
}

func (h *Handler) RepayHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contracts.Repay(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, models.NewContract(c))
}

func (h *Handler) DisburseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, disbursed, err := h.contracts.Disburse(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, models.DisburseResponse{Disbursed: disbursed, Contract: models.NewContract(c)})
}

func (h *Handler) GetProfileFundingsHandler(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	fundings, err := h.contracts.GetFundingsFor(r.Context(), profileID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, fundings)
}

// Ledger

func (h *Handler) CreateWalletHandler(w http.ResponseWriter, r *http.Request) {
	var req models.WalletPayload
	if !h.decode(w, r, &req) {
		return
	}
	wallet, err := h.transfers.CreateWallet(r.Context(), store.Wallet{ID: req.ID, ProfileID: req.ProfileID, Balance: req.Balance})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusCreated, wallet)
}

func (h *Handler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	balance, ok := h.transfers.Balance(id)
	if !ok {
		h.respondWithJSON(w, r, http.StatusNotFound, map[string]string{"error": "Wallet not found"})
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, models.Balance{WalletID: id, Balance: balance})
}

func (h *Handler) GetWalletTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.transfers.Balance(id); !ok {
		h.respondWithJSON(w, r, http.StatusNotFound, map[string]string{"error": "Wallet not found"})
		return
	}
	h.respondWithJSON(w, r, http.StatusOK, h.transfers.TransactionsFor(id))
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.FromWalletID == req.ToWalletID {
		h.respondWithJSON(w, r, http.StatusUnprocessableEntity, map[string]string{"error": "Self-transfer not allowed"})
		return
	}
	tx, err := h.transfers.Transfer(r.Context(), req.FromWalletID, req.ToWalletID, req.Amount)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, r, http.StatusCreated, tx)
}

func (h *Handler) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, r, http.StatusOK, h.transfers.Transactions())
}

// Helpers

func (h *Handler) requestInput(w http.ResponseWriter, r *http.Request) (service.RequestInput, bool) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return service.RequestInput{}, false
	}
	var req models.RequestPayload
	if !h.decode(w, r, &req) {
		return service.RequestInput{}, false
	}
	return service.RequestInput{
		FromProfileID:  profileID,
		ToProfileID:    req.ToProfileID,
		Title:          req.Title,
		Description:    req.Description,
		Specifications: req.Specifications,
		Cost:           req.Cost,
	}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondWithJSON(w, r, http.StatusBadRequest, map[string]string{"error": "Malformed JSON body"})
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondWithJSON(w, r, http.StatusBadRequest, map[string]string{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) profileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(ProfileHeader), 10, 64)
	if err != nil || id < 1 {
		h.respondWithJSON(w, r, http.StatusBadRequest, map[string]string{"error": "Missing " + ProfileHeader + " header"})
		return 0, false
	}
	return id, true
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindInvariant:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.respondWithJSON(w, r, code, map[string]string{"error": "Internal Server Error"})
		return
	}
	h.respondWithJSON(w, r, code, map[string]string{
		"error": err.Error(),
		"kind":  domain.KindOf(err).String(),
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint(r), strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Warn("response encode failed", zap.Error(err))
		}
	}
}

// endpoint is the route template, so ids do not explode label cardinality.
func endpoint(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
