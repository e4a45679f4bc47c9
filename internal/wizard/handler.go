package wizard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// Handler exposes wizard sessions over HTTP.
type Handler struct {
	manager *Manager
	logger  *logging.Logger
}

// NewHandler creates a new wizard handler.
func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// Routes returns the wizard routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/steps", h.ListSteps)
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Put("/fields/{field}", h.SetField)
		r.Post("/toggle/{field}", h.ToggleField)
		r.Post("/next", h.Next)
		r.Post("/previous", h.Previous)
		r.Post("/jump/{step}", h.Jump)
		r.Post("/submit", h.Submit)
		r.Post("/capture", h.Capture)
	})
	return r
}

// Response is a session view plus the error of the operation, if any.
type Response struct {
	View
	Error string `json:"error,omitempty"`
}

// StepsResponse describes the step indicator and the catalog.
type StepsResponse struct {
	Steps    []intake.StepDefinition `json:"steps"`
	Services []intake.LineItem       `json:"services"`
}

// ListSteps handles GET /wizard/steps.
func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StepsResponse{Steps: intake.Steps(), Services: h.manager.Catalog().Items()})
}

// CreateSession handles POST /wizard/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Create(r.Context())
	if err != nil {
		h.logger.Error("failed to create wizard session", "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, Response{View: view})
}

// GetSession handles GET /wizard/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Get(r.Context(), chi.URLParam(r, "sessionID"))
	h.respond(w, view, err)
}

type valueRequest struct {
	Value any `json:"value"`
}

// SetField handles PUT /wizard/sessions/{sessionID}/fields/{field}.
func (h *Handler) SetField(w http.ResponseWriter, r *http.Request) {
	field, err := intake.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		http.Error(w, "unknown field", http.StatusNotFound)
		return
	}
	var req valueRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	view, err := h.manager.Set(r.Context(), chi.URLParam(r, "sessionID"), field, req.Value)
	h.respond(w, view, err)
}

// ToggleField handles POST /wizard/sessions/{sessionID}/toggle/{field}.
func (h *Handler) ToggleField(w http.ResponseWriter, r *http.Request) {
	field, err := intake.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		http.Error(w, "unknown field", http.StatusNotFound)
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	view, err := h.manager.Toggle(r.Context(), chi.URLParam(r, "sessionID"), field, req.Value)
	h.respond(w, view, err)
}

// Next handles POST /wizard/sessions/{sessionID}/next.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Next(r.Context(), chi.URLParam(r, "sessionID"))
	h.respond(w, view, err)
}

// Previous handles POST /wizard/sessions/{sessionID}/previous.
func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Previous(r.Context(), chi.URLParam(r, "sessionID"))
	h.respond(w, view, err)
}

// Jump handles POST /wizard/sessions/{sessionID}/jump/{step}.
func (h *Handler) Jump(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		http.Error(w, "invalid step", http.StatusBadRequest)
		return
	}
	view, err := h.manager.JumpTo(r.Context(), chi.URLParam(r, "sessionID"), step)
	h.respond(w, view, err)
}

// Submit handles POST /wizard/sessions/{sessionID}/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Submit(r.Context(), chi.URLParam(r, "sessionID"))
	h.respond(w, view, err)
}

// Capture handles POST /wizard/sessions/{sessionID}/capture.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var report CaptureReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	view, err := h.manager.Capture(r.Context(), chi.URLParam(r, "sessionID"), report)
	h.respond(w, view, err)
}

func (h *Handler) respond(w http.ResponseWriter, view View, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, Response{View: view})
		return
	}
	status := errorStatus(err)
	switch {
	case status == http.StatusNotFound:
		http.Error(w, "session not found", status)
		return
	case status >= 500:
		h.logger.Error("wizard operation failed", "session_id", view.SessionID, "error", err)
	default:
		h.logger.Debug("wizard operation rejected", "session_id", view.SessionID, "error", err)
	}
	writeJSON(w, status, Response{View: view, Error: publicMessage(err)})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, intake.ErrFieldType), errors.Is(err, intake.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, intake.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, intake.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, intake.ErrRequiredItem),
		errors.Is(err, intake.ErrComplete),
		errors.Is(err, intake.ErrFrozen),
		errors.Is(err, intake.ErrSubmitInFlight),
		errors.Is(err, intake.ErrPaymentInProgress),
		errors.Is(err, intake.ErrInvalidStep),
		errors.Is(err, intake.ErrInvalidTransition),
		errors.Is(err, intake.ErrNoToken),
		errors.Is(err, intake.ErrCaptureLimit):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, intake.ErrSubmissionFailed):
		return intake.SubmitRetryMessage
	case errors.Is(err, intake.ErrValidation):
		return "Please fix the highlighted fields."
	case errors.Is(err, intake.ErrRequiredItem):
		return "The required service cannot be removed."
	case errors.Is(err, intake.ErrComplete):
		return "This order is already complete."
	case errors.Is(err, intake.ErrFrozen), errors.Is(err, intake.ErrPaymentInProgress):
		return "Your information is locked while payment is in progress."
	case errors.Is(err, intake.ErrSubmitInFlight):
		return "Your information is being saved."
	case errors.Is(err, intake.ErrCaptureLimit):
		return "Too many payment attempts. Please contact support to finish your order."
	case errors.Is(err, intake.ErrFieldType), errors.Is(err, intake.ErrUnknownField):
		return "That value is not valid for this field."
	case errors.Is(err, intake.ErrInvalidStep), errors.Is(err, intake.ErrInvalidTransition), errors.Is(err, intake.ErrNoToken):
		return "That action is not available right now."
	default:
		return "Something went wrong. Please try again."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
