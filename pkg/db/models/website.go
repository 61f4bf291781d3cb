package models

import (
	"time"

	"github.com/google/uuid"
)

// Website is a brand-owned resource and the primary consumer of the scoped
// query layer. Every row belongs to exactly one brand.
type Website struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BrandID   uuid.UUID `gorm:"column:brand_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	Domain    string    `gorm:"column:domain;not null;uniqueIndex"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Page belongs to a website and reaches its brand only through the website
// relation, which the scoped query layer resolves via a join.
type Page struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	WebsiteID   uuid.UUID `gorm:"column:website_id;type:uuid;not null;uniqueIndex:ux_pages_website_slug"`
	Title       string    `gorm:"column:title;not null"`
	Slug        string    `gorm:"column:slug;not null;uniqueIndex:ux_pages_website_slug"`
	Body        string    `gorm:"column:body"`
	IsPublished bool      `gorm:"column:is_published;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
