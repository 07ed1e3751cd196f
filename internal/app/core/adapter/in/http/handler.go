package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/identity"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// maxBodyBytes 單一請求 body 上限
const maxBodyBytes = 1 << 20

type route struct {
	method string
	path   string
	op     string
	// status 成功時的 HTTP 狀態碼
	status int
}

var routes = []route{
	{http.MethodPost, "/sessions", usecase.OpUserLoaded, http.StatusAccepted},
	{http.MethodGet, "/accounts", usecase.OpGetAccounts, http.StatusOK},
	{http.MethodPost, "/accounts", usecase.OpCreateAccount, http.StatusCreated},
	{http.MethodPost, "/shared-accounts", usecase.OpCreateShared, http.StatusCreated},
	{http.MethodGet, "/accounts/{id}", usecase.OpGetBalance, http.StatusOK},
	{http.MethodDelete, "/accounts/{id}", usecase.OpDeleteAccount, http.StatusOK},
	{http.MethodPost, "/accounts/{id}/deposit", usecase.OpDeposit, http.StatusOK},
	{http.MethodPost, "/accounts/{id}/withdraw", usecase.OpWithdraw, http.StatusOK},
	{http.MethodPut, "/accounts/{id}/name", usecase.OpRenameAccount, http.StatusOK},
	{http.MethodPost, "/accounts/{id}/default", usecase.OpSetDefault, http.StatusOK},
	{http.MethodGet, "/accounts/{id}/members", usecase.OpListMembers, http.StatusOK},
	{http.MethodPost, "/accounts/{id}/members", usecase.OpAddMember, http.StatusCreated},
	{http.MethodDelete, "/accounts/{id}/members/{userId}", usecase.OpRemoveMember, http.StatusOK},
	{http.MethodGet, "/accounts/{id}/transactions", usecase.OpListTransactions, http.StatusOK},
	{http.MethodPost, "/admin/add-money", usecase.OpAddMoney, http.StatusOK},
	{http.MethodPost, "/admin/remove-money", usecase.OpRemoveMoney, http.StatusOK},
}

// statusByCode 錯誤代碼對應的 HTTP 狀態碼
var statusByCode = map[domain.ErrorCode]int{
	domain.CodeAccountNotFound:    http.StatusNotFound,
	domain.CodeUnauthorized:       http.StatusForbidden,
	domain.CodeInvalidAmount:      http.StatusUnprocessableEntity,
	domain.CodeInsufficientFunds:  http.StatusUnprocessableEntity,
	domain.CodeAlreadyMember:      http.StatusConflict,
	domain.CodeNotMember:          http.StatusNotFound,
	domain.CodeLastOwner:          http.StatusConflict,
	domain.CodeInvalidRole:        http.StatusUnprocessableEntity,
	domain.CodeStorageUnavailable: http.StatusServiceUnavailable,
	domain.CodeConflict:           http.StatusConflict,
	domain.CodeInvalidInput:       http.StatusBadRequest,
	domain.CodeInternal:           http.StatusInternalServerError,
}

// Handler 將分派表以 REST 對外提供
type Handler struct {
	facade   *usecase.AccountFacade
	identity usecase.IdentityResolver
}

func NewHandler(facade *usecase.AccountFacade, identity usecase.IdentityResolver) *Handler {
	return &Handler{facade: facade, identity: identity}
}

// Router 建立路由: /api/v1 業務 API、/health、/metrics
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	for _, rt := range routes {
		apiV1.HandleFunc(rt.path, h.dispatch(rt)).Methods(rt.method)
	}
	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, r.Method, "/health")
}

func (h *Handler) dispatch(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpLatency.WithLabelValues(rt.method, rt.path))
		defer timer.ObserveDuration()

		actor, err := h.identity.ResolveUser(r.Context(), r.Header.Get(identity.HeaderName))
		if err != nil {
			h.respondJSON(w, http.StatusUnauthorized, usecase.Failed(err), rt.method, rt.path)
			return
		}

		req, err := decodeRequest(r)
		if err != nil {
			h.respondResult(w, usecase.Failed(err), rt)
			return
		}
		req.Actor = actor

		h.respondResult(w, h.facade.Dispatch(r.Context(), rt.op, req), rt)
	}
}

// decodeRequest 合併 JSON body、路徑參數與 Idempotency-Key header
func decodeRequest(r *http.Request) (usecase.Request, error) {
	var req usecase.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return req, fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return req, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidInput, err)
		}
	}

	vars := mux.Vars(r)
	if idStr, ok := vars["id"]; ok {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			return req, fmt.Errorf("%w: invalid account id %q", domain.ErrInvalidInput, idStr)
		}
		req.AccountID = id
	}
	if userID, ok := vars["userId"]; ok {
		req.TargetUserID = userID
	}
	if req.RefID == "" {
		req.RefID = r.Header.Get("Idempotency-Key")
	}
	return req, nil
}

func (h *Handler) respondResult(w http.ResponseWriter, res usecase.Result, rt route) {
	code := rt.status
	if res.Error != nil {
		var ok bool
		if code, ok = statusByCode[res.Error.Code]; !ok {
			code = http.StatusInternalServerError
		}
	}
	h.respondJSON(w, code, res, rt.method, rt.path)
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
