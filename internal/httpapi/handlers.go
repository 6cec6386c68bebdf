package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"sms-rupee-go/internal/api"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// timeZero lets the service stamp actions with its own clock.
var timeZero time.Time

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service *api.Service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *api.Service) *Handler {
	return &Handler{service: service}
}

type credentialsRequest struct {
	Mobile       string `json:"mobileNumber"`
	Password     string `json:"password"`
	ReferralCode string `json:"referralCode,omitempty"`
}

type smsRequest struct {
	RecipientNumber string `json:"recipientNumber"`
	MessageBody     string `json:"messageBody"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.SignUp(r.Context(), api.SignUpParams{
		Mobile:       req.Mobile,
		Password:     req.Password,
		ReferralCode: req.ReferralCode,
		DeviceId:     r.Header.Get(DeviceHeader),
	})
	if err != nil {
		respondWithServiceError(w, "sign up", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.Login(r.Context(), req.Mobile, req.Password, r.Header.Get(DeviceHeader))
	if err != nil {
		respondWithServiceError(w, "login", err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.service.GetHistory(r.Context(), chi.URLParam(r, "mobile"), limit, offset)
	if err != nil {
		respondWithServiceError(w, "history", err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CheckIn(r.Context(), chi.URLParam(r, "mobile"), timeZero)
	if err != nil {
		respondWithServiceError(w, "check-in", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSpin(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Spin(r.Context(), chi.URLParam(r, "mobile"))
	if err != nil {
		respondWithServiceError(w, "spin", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSaveBankDetails(w http.ResponseWriter, r *http.Request) {
	var details models.BankDetails
	if !decodeJSON(w, r, &details) {
		return
	}

	mobile := chi.URLParam(r, "mobile")
	if err := h.service.SaveBankDetails(r.Context(), mobile, details); err != nil {
		respondWithServiceError(w, "save bank details", err)
		return
	}
	account, err := h.service.GetBalance(r.Context(), mobile)
	if err != nil {
		respondWithServiceError(w, "save bank details", err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.RequestWithdrawal(r.Context(), chi.URLParam(r, "mobile"))
	if err != nil {
		respondWithServiceError(w, "withdrawal request", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleAddSms(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.service.AddSms(r.Context(), req.RecipientNumber, req.MessageBody)
	if err != nil {
		respondWithServiceError(w, "add sms", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleBulkAddSms(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	result, err := h.service.BulkAddSms(r.Context(), string(body))
	if err != nil {
		respondWithServiceError(w, "bulk add sms", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListWithdrawals(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondWithServiceError(w, "list withdrawals", err)
		return
	}
	if requests == nil {
		requests = []models.WithdrawalRequest{}
	}
	respondWithJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.processWithdrawal(w, r, models.WithdrawalApproved)
}

func (h *Handler) handleRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.processWithdrawal(w, r, models.WithdrawalRejected)
}

func (h *Handler) processWithdrawal(w http.ResponseWriter, r *http.Request, status string) {
	id := chi.URLParam(r, "id")
	request, err := h.service.ProcessWithdrawal(r.Context(), id, status, timeZero)
	if err != nil {
		respondWithServiceError(w, "process withdrawal", err)
		return
	}
	respondWithJSON(w, http.StatusOK, request)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondWithServiceError maps policy rejections to 422 and missing records to 404.
func respondWithServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case api.IsPolicy(err):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrWithdrawalNotFound),
		errors.Is(err, store.ErrRecordNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	default:
		zap.L().Error("Request failed", zap.String("action", action), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
