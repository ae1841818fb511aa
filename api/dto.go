/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers validate; DTOs are pure data carriers. Amounts travel as
  strings so clients never round them through a float.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup
*/
package api

import (
	"time"

	"github.com/cobranza/rent-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SaveContractRequest creates or replaces the lease snapshot.
type SaveContractRequest struct {
	Property struct {
		Title   string `json:"title"`
		Address string `json:"address"`
	} `json:"property"`
	Tenant struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		WhatsApp string `json:"whatsapp"`
	} `json:"tenant"`
	Owner struct {
		FullName string `json:"full_name"`
	} `json:"owner"`
	StartDate      string         `json:"start_date"` // YYYY-MM-DD
	EndDate        string         `json:"end_date"`   // YYYY-MM-DD
	DueDay         int            `json:"due_day"`
	RentAmount     string         `json:"rent_amount"`
	NotifyEnabled  bool           `json:"notify_enabled"`
	PDF            *AttachmentDTO `json:"pdf,omitempty"`
}

// RegisterPaymentRequest applies a payment against an installment.
type RegisterPaymentRequest struct {
	Amount         string         `json:"amount"`
	PaidAt         string         `json:"paid_at,omitempty"` // RFC3339, defaults to now
	Method         string         `json:"method"`
	CollectedBy    string         `json:"collected_by"`
	WithoutReceipt bool           `json:"without_receipt"`
	Receipt        *AttachmentDTO `json:"receipt,omitempty"`
	Note           string         `json:"note,omitempty"`
}

// AddItemRequest appends a line item to an installment.
type AddItemRequest struct {
	Type   string `json:"type"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// SetAgreementRequest toggles the manual agreement override.
type SetAgreementRequest struct {
	Enabled bool   `json:"enabled"`
	Note    string `json:"note,omitempty"`
}

// SetNotificationOverrideRequest sets or clears (null) the
// per-installment notification switch.
type SetNotificationOverrideRequest struct {
	Enabled *bool `json:"enabled"`
}

// LogNotificationRequest is written by the notifier after a dispatch.
type LogNotificationRequest struct {
	At        string `json:"at,omitempty"` // RFC3339, defaults to now
	DayKey    string `json:"day_key"`
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	Audience  string `json:"audience"`
	Recipient string `json:"recipient"`
}

// AppendEventRequest records a free-form contract event.
type AppendEventRequest struct {
	Type          string          `json:"type"`
	At            string          `json:"at,omitempty"` // RFC3339, defaults to now
	Detail        string          `json:"detail"`
	Tags          []string        `json:"tags,omitempty"`
	InstallmentID string          `json:"installment_id,omitempty"`
	CreatedBy     string          `json:"created_by"`
	Attachments   []AttachmentDTO `json:"attachments,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type AttachmentDTO struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ContractDTO represents the lease snapshot in API responses.
type ContractDTO struct {
	ID            string         `json:"id"`
	PropertyTitle string         `json:"property_title"`
	PropertyAddr  string         `json:"property_address"`
	TenantName    string         `json:"tenant_name"`
	OwnerName     string         `json:"owner_name"`
	StartDate     string         `json:"start_date"`
	EndDate       string         `json:"end_date"`
	DueDay        int            `json:"due_day"`
	RentAmount    string         `json:"rent_amount"`
	NotifyEnabled bool           `json:"notify_enabled"`
	PDF           *AttachmentDTO `json:"pdf,omitempty"`
}

// InstallmentDTO represents one period's billing unit.
type InstallmentDTO struct {
	ID                    string `json:"id"`
	ContractID            string `json:"contract_id"`
	Period                string `json:"period"`
	DueDate               string `json:"due_date"`
	Status                string `json:"status"`
	Total                 string `json:"total"`
	Paid                  string `json:"paid"`
	Due                   string `json:"due"`
	HasUnverifiedPayments bool   `json:"has_unverified_payments"`
	NotificationOverride  *bool  `json:"notification_override,omitempty"`
	AgreementNote         string `json:"agreement_note,omitempty"`
	UpdatedAt             string `json:"updated_at,omitempty"`
}

// InstallmentDetailDTO adds the child records to the installment view.
type InstallmentDetailDTO struct {
	InstallmentDTO
	Items    []ItemDTO    `json:"items"`
	Payments []PaymentDTO `json:"payments"`
}

type ItemDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Label     string `json:"label"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PaymentDTO struct {
	ID             string         `json:"id"`
	Amount         string         `json:"amount"`
	PaidAt         string         `json:"paid_at"`
	Method         string         `json:"method"`
	CollectedBy    string         `json:"collected_by"`
	WithoutReceipt bool           `json:"without_receipt"`
	Receipt        *AttachmentDTO `json:"receipt,omitempty"`
	Note           string         `json:"note,omitempty"`
}

// GenerationResultDTO summarizes an idempotent generation run.
type GenerationResultDTO struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// NotificationDecisionDTO is the dispatcher's eligibility answer.
type NotificationDecisionDTO struct {
	Eligible  bool   `json:"eligible"`
	DueType   string `json:"due_type,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type EventDTO struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	At            string          `json:"at"`
	Detail        string          `json:"detail"`
	Tags          []string        `json:"tags,omitempty"`
	InstallmentID string          `json:"installment_id,omitempty"`
	CreatedBy     string          `json:"created_by"`
	Attachments   []AttachmentDTO `json:"attachments,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toContractDTO(c *ledger.Contract) ContractDTO {
	dto := ContractDTO{
		ID:            string(c.ID),
		PropertyTitle: c.Property.Title,
		PropertyAddr:  c.Property.Address,
		TenantName:    c.Tenant.FullName,
		OwnerName:     c.Owner.FullName,
		StartDate:     c.Start.String(),
		EndDate:       c.End.String(),
		DueDay:        c.DueDay,
		RentAmount:    c.RentAmount.String(),
		NotifyEnabled: c.Notify.Enabled,
	}
	if c.PDF != nil {
		dto.PDF = &AttachmentDTO{Name: c.PDF.Name, Path: c.PDF.Path}
	}
	return dto
}

func toInstallmentDTO(inst *ledger.Installment) InstallmentDTO {
	return InstallmentDTO{
		ID:                    string(inst.ID),
		ContractID:            string(inst.ContractID),
		Period:                inst.Period.String(),
		DueDate:               inst.DueDate.String(),
		Status:                string(inst.Status),
		Total:                 inst.Totals.Total.String(),
		Paid:                  inst.Totals.Paid.String(),
		Due:                   inst.Totals.Due.String(),
		HasUnverifiedPayments: inst.HasUnverifiedPayments,
		NotificationOverride:  inst.NotificationOverride,
		AgreementNote:         inst.AgreementNote,
		UpdatedAt:             formatTime(inst.UpdatedAt),
	}
}

func toItemDTO(it ledger.Item) ItemDTO {
	return ItemDTO{
		ID:        it.ID,
		Type:      string(it.Type),
		Label:     it.Label,
		Amount:    it.Amount.String(),
		CreatedAt: formatTime(it.CreatedAt),
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:             p.ID,
		Amount:         p.Amount.String(),
		PaidAt:         formatTime(p.PaidAt),
		Method:         string(p.Method),
		CollectedBy:    p.CollectedBy,
		WithoutReceipt: p.WithoutReceipt,
		Note:           p.Note,
	}
	if p.Receipt != nil {
		dto.Receipt = &AttachmentDTO{Name: p.Receipt.Name, Path: p.Receipt.Path}
	}
	return dto
}

func toEventDTO(e ledger.ContractEvent) EventDTO {
	dto := EventDTO{
		ID:            e.ID,
		Type:          e.Type,
		At:            formatTime(e.At),
		Detail:        e.Detail,
		Tags:          e.Tags,
		InstallmentID: string(e.InstallmentID),
		CreatedBy:     e.CreatedBy,
	}
	for _, a := range e.Attachments {
		dto.Attachments = append(dto.Attachments, AttachmentDTO{Name: a.Name, Path: a.Path})
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
