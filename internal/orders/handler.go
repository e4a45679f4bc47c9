package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// Client-facing failure messages. Internal causes are logged, never returned.
const (
	msgSubmitFailed   = "We couldn't save your information. Please try again."
	msgInvalid        = "Some answers are missing or invalid. Please review your information."
	msgTooMany        = "Too many submissions. Please try again later."
	msgInFlight       = "Your submission is already being processed."
	msgConfirmFailed  = "We couldn't confirm your payment yet."
	msgOrderNotFound  = "Order not found."
	msgInvalidRequest = "Invalid request body"
)

// Handler exposes the intake backend over HTTP.
type Handler struct {
	service *Service
	admin   AdminReader
	logger  *logging.Logger
}

// NewHandler creates a new orders handler.
func NewHandler(service *Service, admin AdminReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, admin: admin, logger: logger}
}

// Routes returns the public intake routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/intake", h.SubmitIntake)
	r.Post("/intake/{recordID}/confirm", h.ConfirmCapture)
	r.Get("/catalog", h.GetCatalog)
	r.Get("/orders/{recordID}", h.GetReceipt)
	return r
}

// AdminRoutes returns routes meant to sit behind admin auth.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{recordID}", h.GetOrder)
	return r
}

// SubmitIntake handles POST /api/intake.
func (h *Handler) SubmitIntake(w http.ResponseWriter, r *http.Request) {
	var snap intake.IntakeSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		h.logger.Warn("failed to decode intake", "error", err)
		writeJSON(w, http.StatusBadRequest, intake.SubmitResult{Error: msgInvalidRequest})
		return
	}

	res, err := h.service.Submit(r.Context(), snap, r.Header.Get("Idempotency-Key"))
	if err != nil {
		status, msg := submitErrorStatus(err)
		if status >= 500 {
			h.logger.Error("intake submission failed", "error", err)
		} else {
			h.logger.Warn("intake submission rejected", "error", err)
		}
		writeJSON(w, status, intake.SubmitResult{Error: msg})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidSubmission), errors.Is(err, ErrRequiredServiceMissing):
		return http.StatusUnprocessableEntity, msgInvalid
	case errors.Is(err, ErrVelocityExceeded):
		return http.StatusTooManyRequests, msgTooMany
	case errors.Is(err, ErrSubmissionInFlight):
		return http.StatusConflict, msgInFlight
	case errors.Is(err, ErrAuthorizationFailed):
		return http.StatusBadGateway, msgSubmitFailed
	default:
		return http.StatusInternalServerError, msgSubmitFailed
	}
}

// ConfirmCapture handles POST /api/intake/{recordID}/confirm.
func (h *Handler) ConfirmCapture(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")
	_, err := h.service.Confirm(r.Context(), recordID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, intake.ConfirmResult{Success: true})
	case errors.Is(err, ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, intake.ConfirmResult{Error: msgOrderNotFound})
	case errors.Is(err, ErrNotCaptured):
		writeJSON(w, http.StatusConflict, intake.ConfirmResult{Error: msgConfirmFailed})
	default:
		h.logger.Error("capture confirmation failed", "record_id", recordID, "error", err)
		writeJSON(w, http.StatusInternalServerError, intake.ConfirmResult{Error: msgConfirmFailed})
	}
}

// CatalogResponse lists the services and the mount-time selection.
type CatalogResponse struct {
	Services        []intake.LineItem `json:"services"`
	DefaultSelected []string          `json:"default_selected"`
	DefaultTotal    int64             `json:"default_total_cents"`
}

// GetCatalog handles GET /api/catalog.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Catalog()
	selected := []string{catalog.Required().ID}
	writeJSON(w, http.StatusOK, CatalogResponse{
		Services:        catalog.Items(),
		DefaultSelected: selected,
		DefaultTotal:    catalog.Total(selected),
	})
}

// GetReceipt handles GET /api/orders/{recordID}.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, order.Receipt())
}

// GetOrder handles GET /admin/orders/{recordID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (*Order, bool) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "recordID"))
	if errors.Is(err, ErrOrderNotFound) {
		http.Error(w, msgOrderNotFound, http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load order", "error", err)
		http.Error(w, "failed to load order", http.StatusInternalServerError)
		return nil, false
	}
	return order, true
}

// ListOrdersResponse is the response for listing orders.
type ListOrdersResponse struct {
	Orders []OrderSummary `json:"orders"`
	Counts map[Status]int `json:"counts"`
	Count  int            `json:"count"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// ListOrders handles GET /admin/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Limit: 50, Email: strings.ToLower(strings.TrimSpace(q.Get("email")))}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 200 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	for _, raw := range strings.Split(q.Get("status"), ",") {
		status := Status(strings.TrimSpace(raw))
		if status == "" {
			continue
		}
		if !status.Valid() {
			http.Error(w, "invalid status filter", http.StatusBadRequest)
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	list, err := h.admin.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	counts, err := h.admin.StatusCounts(r.Context())
	if err != nil {
		h.logger.Error("failed to count orders", "error", err)
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []OrderSummary{}
	}
	writeJSON(w, http.StatusOK, ListOrdersResponse{
		Orders: list,
		Counts: counts,
		Count:  len(list),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
