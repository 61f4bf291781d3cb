package sites

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
)

// WebsiteDTO is the transport shape for a website.
type WebsiteDTO struct {
	ID        uuid.UUID `json:"id"`
	BrandID   uuid.UUID `json:"brand_id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageDTO is the transport shape for a page.
type PageDTO struct {
	ID          uuid.UUID `json:"id"`
	WebsiteID   uuid.UUID `json:"website_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Body        string    `json:"body,omitempty"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateWebsiteRequest creates a website under a brand. BrandID is optional
// when the request carries a current brand.
type CreateWebsiteRequest struct {
	Name    string     `json:"name" validate:"required"`
	Domain  string     `json:"domain" validate:"required,fqdn"`
	BrandID *uuid.UUID `json:"brand_id,omitempty"`
}

// UpdateWebsiteRequest carries a partial update; nil fields are untouched.
type UpdateWebsiteRequest struct {
	Name     *string `json:"name,omitempty"`
	Domain   *string `json:"domain,omitempty" validate:"omitempty,fqdn"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// CreatePageRequest creates a page under a website. The website is the
// routed intermediate: its brand decides the page's tenant.
type CreatePageRequest struct {
	WebsiteID uuid.UUID `json:"website_id" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	Slug      string    `json:"slug" validate:"required"`
	Body      string    `json:"body,omitempty"`
}

// UpdatePageRequest carries a partial update; nil fields are untouched.
type UpdatePageRequest struct {
	Title       *string `json:"title,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	Body        *string `json:"body,omitempty"`
	IsPublished *bool   `json:"is_published,omitempty"`
}

func websiteFromModel(w *models.Website) *WebsiteDTO {
	if w == nil {
		return nil
	}
	return &WebsiteDTO{
		ID:        w.ID,
		BrandID:   w.BrandID,
		Name:      w.Name,
		Domain:    w.Domain,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func pageFromModel(p *models.Page) *PageDTO {
	if p == nil {
		return nil
	}
	return &PageDTO{
		ID:          p.ID,
		WebsiteID:   p.WebsiteID,
		Title:       p.Title,
		Slug:        p.Slug,
		Body:        p.Body,
		IsPublished: p.IsPublished,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
