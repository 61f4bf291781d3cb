package slots

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// UsageDTO exposes the company's slot allocation and consumption.
type UsageDTO struct {
	CompanyID          uuid.UUID `json:"company_id"`
	BrandsSlots        int       `json:"brands_slots"`
	UsersSlots         int       `json:"users_slots"`
	CurrentBrandsCount int       `json:"current_brands_count"`
	CurrentUsersCount  int       `json:"current_users_count"`
	BrandsUsagePct     float64   `json:"brands_usage_pct"`
	UsersUsagePct      float64   `json:"users_usage_pct"`
}

// AlertDTO exposes a usage alert in API responses.
type AlertDTO struct {
	ID         uuid.UUID              `json:"id"`
	Kind       enums.UsageAlertKind   `json:"kind"`
	Status     enums.UsageAlertStatus `json:"status"`
	Message    string                 `json:"message"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// UsageFromModel maps a slot allocation row into a usage DTO.
func UsageFromModel(m *models.CompanySlots) *UsageDTO {
	if m == nil {
		return nil
	}
	return &UsageDTO{
		CompanyID:          m.CompanyID,
		BrandsSlots:        m.BrandsSlots,
		UsersSlots:         m.UsersSlots,
		CurrentBrandsCount: m.CurrentBrandsCount,
		CurrentUsersCount:  m.CurrentUsersCount,
		BrandsUsagePct:     usagePct(m.CurrentBrandsCount, m.BrandsSlots),
		UsersUsagePct:      usagePct(m.CurrentUsersCount, m.UsersSlots),
	}
}

// AlertFromModel maps a usage alert row into a DTO.
func AlertFromModel(m *models.UsageAlert) *AlertDTO {
	if m == nil {
		return nil
	}
	return &AlertDTO{
		ID:         m.ID,
		Kind:       m.Kind,
		Status:     m.Status,
		Message:    m.Message,
		ResolvedAt: m.ResolvedAt,
		CreatedAt:  m.CreatedAt,
	}
}

func usagePct(current, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(current) / float64(limit) * 100
}
