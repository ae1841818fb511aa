/*
handlers.go - HTTP API handlers for the rent ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Contracts:
    PUT    /api/contracts/{id}                        Save contract snapshot
    GET    /api/contracts/{id}                        Get contract
    POST   /api/contracts/{id}/installments/generate  Generate installments
    GET    /api/contracts/{id}/installments           List installments
    POST   /api/contracts/{id}/events                 Append contract event
    GET    /api/contracts/{id}/events                 List contract events
    GET    /api/contracts/{id}/export                 Download ZIP archive

  Installments:
    GET    /api/installments/{id}                        Get detail (items+payments)
    POST   /api/installments/{id}/payments               Register payment
    POST   /api/installments/{id}/items                  Add line item
    POST   /api/installments/{id}/agreement              Toggle agreement
    POST   /api/installments/{id}/notification-override  Set/clear override
    GET    /api/installments/{id}/notification-decision  Eligibility for today
    POST   /api/installments/{id}/notification-log       Record a dispatch

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Contract or installment not found
  - 409: Conflict (concurrent update retries exhausted)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - cmd/server/main.go: Dependency wiring
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobranza/rent-ledger/export"
	"github.com/cobranza/rent-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo      ledger.Repository
	Contracts ledger.ContractWriter
	Generator *ledger.Generator
	Engine    *ledger.Engine
	Policy    ledger.DuePolicy
	Exporter  *export.Aggregator
	Clock     ledger.Clock
	Log       *slog.Logger
}

// NewHandler wires the handler from a repository and its collaborators.
func NewHandler(repo ledger.Repository, contracts ledger.ContractWriter, exporter *export.Aggregator, clock ledger.Clock, log *slog.Logger) *Handler {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Repo:      repo,
		Contracts: contracts,
		Generator: ledger.NewGenerator(repo, clock),
		Engine:    ledger.NewEngine(repo, clock),
		Policy:    ledger.DefaultDuePolicy{},
		Exporter:  exporter,
		Clock:     clock,
		Log:       log,
	}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// SaveContract creates or replaces the lease snapshot.
func (h *Handler) SaveContract(w http.ResponseWriter, r *http.Request) {
	id := ledger.ContractID(chi.URLParam(r, "id"))

	var req SaveContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := ledger.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}
	end, err := ledger.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
		return
	}
	rent, err := decimal.NewFromString(req.RentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rent_amount", err)
		return
	}

	contract := ledger.Contract{
		ID: id,
		Property: ledger.PropertySnapshot{
			Title:   req.Property.Title,
			Address: req.Property.Address,
		},
		Tenant: ledger.PartySnapshot{
			FullName: req.Tenant.FullName,
			Email:    req.Tenant.Email,
			WhatsApp: req.Tenant.WhatsApp,
		},
		Owner:      ledger.PartySnapshot{FullName: req.Owner.FullName},
		Start:      start,
		End:        end,
		DueDay:     req.DueDay,
		RentAmount: rent,
		Notify:     ledger.NotificationConfig{Enabled: req.NotifyEnabled},
	}
	if req.PDF != nil {
		contract.PDF = &ledger.AttachmentRef{Name: req.PDF.Name, Path: req.PDF.Path}
	}

	if err := h.Contracts.SaveContract(r.Context(), contract); err != nil {
		h.writeDomainError(w, "Failed to save contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(&contract))
}

// GetContract returns the lease snapshot.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := ledger.ContractID(chi.URLParam(r, "id"))

	contract, err := h.Repo.GetContract(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(contract))
}

// GenerateInstallments creates missing installments for the contract's
// period range. Safe to call repeatedly; existing periods are skipped.
func (h *Handler) GenerateInstallments(w http.ResponseWriter, r *http.Request) {
	id := ledger.ContractID(chi.URLParam(r, "id"))

	result, err := h.Generator.Generate(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to generate installments", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerationResultDTO{
		Created: result.Created,
		Skipped: result.Skipped,
	})
}

// ListInstallments returns the contract's installments by period.
func (h *Handler) ListInstallments(w http.ResponseWriter, r *http.Request) {
	id := ledger.ContractID(chi.URLParam(r, "id"))

	// 404 for unknown contracts rather than an empty list.
	if _, err := h.Repo.GetContract(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get contract", err)
		return
	}

	installments, err := h.Repo.ListInstallments(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list installments", err)
		return
	}

	dtos := make([]InstallmentDTO, len(installments))
	for i := range installments {
		dtos[i] = toInstallmentDTO(&installments[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AppendEvent records a free-form contract event.
func (h *Handler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	id := ledger.ContractID(chi.URLParam(r, "id"))

	var req AppendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required", nil)
		return
	}

	if _, err := h.Repo.GetContract(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get contract", err)
		return
	}

	at, err := parseTimeOrNow(req.At, h.Clock)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339)", err)
		return
	}

	event := ledger.ContractEvent{
		ID:            uuid.NewString(),
		ContractID:    id,
		Type:          req.Type,
		At:            at,
		Detail:        req.Detail,
		Tags:          req.Tags,
		InstallmentID: ledger.InstallmentID(req.InstallmentID),
		CreatedBy:     req.CreatedBy,
	}
	for _, a := range req.Attachments {
		event.Attachments = append(event.Attachments, ledger.AttachmentRef{Name: a.Name, Path: a.Path})
	}

	if err := h.Repo.AppendContractEvent(r.Context(), event); err != nil {
		h.writeDomainError(w, "Failed to append event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(event))
}

// ListEvents returns the contract's events in append order.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := ledger.ContractID(chi.URLParam(r, "id"))

	if _, err := h.Repo.GetContract(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get contract", err)
		return
	}

	events, err := h.Repo.ListContractEvents(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list events", err)
		return
	}
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportContract streams the contract's ZIP archive.
func (h *Handler) ExportContract(w http.ResponseWriter, r *http.Request) {
	id := ledger.ContractID(chi.URLParam(r, "id"))

	// Resolve the contract before sending headers so a missing id is
	// still a clean JSON 404.
	if _, err := h.Repo.GetContract(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get contract", err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "expediente_"+string(id)+".zip"))

	if err := h.Exporter.Export(r.Context(), id, w); err != nil {
		// Headers are gone; all we can do is log.
		h.Log.Error("export failed", "contract_id", id, "error", err)
	}
}

// =============================================================================
// INSTALLMENT HANDLERS
// =============================================================================

// GetInstallment returns the installment with its items and payments.
func (h *Handler) GetInstallment(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstallmentID(chi.URLParam(r, "id"))

	inst, err := h.Repo.GetInstallment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get installment", err)
		return
	}
	items, err := h.Repo.ListItems(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list items", err)
		return
	}
	payments, err := h.Repo.ListPayments(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}

	detail := InstallmentDetailDTO{
		InstallmentDTO: toInstallmentDTO(inst),
		Items:          make([]ItemDTO, len(items)),
		Payments:       make([]PaymentDTO, len(payments)),
	}
	for i, it := range items {
		detail.Items[i] = toItemDTO(it)
	}
	for i, p := range payments {
		detail.Payments[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, detail)
}

// RegisterPayment applies a payment against the installment.
func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstallmentID(chi.URLParam(r, "id"))

	var req RegisterPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, err = time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at (use RFC3339)", err)
			return
		}
	}

	input := ledger.PaymentInput{
		Amount:         amount,
		PaidAt:         paidAt,
		Method:         ledger.PaymentMethod(req.Method),
		CollectedBy:    req.CollectedBy,
		WithoutReceipt: req.WithoutReceipt,
		Note:           req.Note,
	}
	if req.Receipt != nil {
		input.Receipt = &ledger.AttachmentRef{Name: req.Receipt.Name, Path: req.Receipt.Path}
	}

	inst, err := h.Engine.RegisterPayment(r.Context(), id, input)
	if err != nil {
		h.writeDomainError(w, "Failed to register payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInstallmentDTO(inst))
}

// AddItem appends a line item to the installment.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstallmentID(chi.URLParam(r, "id"))

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	inst, err := h.Engine.AddItem(r.Context(), id, ledger.ItemType(req.Type), req.Label, amount)
	if err != nil {
		h.writeDomainError(w, "Failed to add item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInstallmentDTO(inst))
}

// SetAgreement toggles the manual agreement override.
func (h *Handler) SetAgreement(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstallmentID(chi.URLParam(r, "id"))

	var req SetAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inst, err := h.Engine.SetAgreement(r.Context(), id, req.Enabled, req.Note)
	if err != nil {
		h.writeDomainError(w, "Failed to set agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTO(inst))
}

// SetNotificationOverride sets or clears the per-installment switch.
func (h *Handler) SetNotificationOverride(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstallmentID(chi.URLParam(r, "id"))

	var req SetNotificationOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inst, err := h.Engine.SetNotificationOverride(r.Context(), id, req.Enabled)
	if err != nil {
		h.writeDomainError(w, "Failed to set notification override", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTO(inst))
}

// GetNotificationDecision answers whether a reminder is due today.
func (h *Handler) GetNotificationDecision(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstallmentID(chi.URLParam(r, "id"))

	inst, err := h.Repo.GetInstallment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get installment", err)
		return
	}
	contract, err := h.Repo.GetContract(r.Context(), inst.ContractID)
	if err != nil {
		h.writeDomainError(w, "Failed to get contract", err)
		return
	}

	today := ledger.DateOf(h.Clock.Now())
	if q := r.URL.Query().Get("date"); q != "" {
		today, err = ledger.ParseDate(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	decision := ledger.Eligibility(contract, inst, today, h.Policy)
	writeJSON(w, http.StatusOK, NotificationDecisionDTO{
		Eligible:  decision.Eligible,
		DueType:   string(decision.DueType),
		Recipient: decision.Recipient,
		Reason:    decision.Reason,
	})
}

// LogNotification records a dispatch made by the external notifier.
func (h *Handler) LogNotification(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstallmentID(chi.URLParam(r, "id"))

	var req LogNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DayKey == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "day_key and type are required", nil)
		return
	}

	if _, err := h.Repo.GetInstallment(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get installment", err)
		return
	}

	at, err := parseTimeOrNow(req.At, h.Clock)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339)", err)
		return
	}

	entry := ledger.NotificationLogEntry{
		InstallmentID: id,
		At:            at,
		DayKey:        req.DayKey,
		Type:          req.Type,
		Channel:       req.Channel,
		Audience:      req.Audience,
		Recipient:     req.Recipient,
	}
	if err := h.Repo.AppendNotificationLog(r.Context(), entry); err != nil {
		h.writeDomainError(w, "Failed to log notification", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "logged"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Log.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseTimeOrNow(s string, clock ledger.Clock) (time.Time, error) {
	if s == "" {
		return clock.Now(), nil
	}
	return time.Parse(time.RFC3339, s)
}
