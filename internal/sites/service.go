package sites

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/scope"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// ResourceWebsites and ResourcePages are the routing-table keys for this
// package's resources.
const (
	ResourceWebsites = "websites"
	ResourcePages    = "pages"
)

// RegisterResources adds this package's resources to the routing table.
// pages reach their brand through the website relation.
func RegisterResources(reg *scope.Registry) error {
	if err := reg.Register(ResourceWebsites, scope.Rule{
		BrandColumn: "websites.brand_id",
	}); err != nil {
		return err
	}
	return reg.Register(ResourcePages, scope.Rule{
		Joins:       []string{"JOIN websites ON websites.id = pages.website_id"},
		BrandColumn: "websites.brand_id",
	})
}

// Service is website/page CRUD behind the brand-scoped query layer. Every
// read goes through the routing table; every write re-checks the target
// brand against the caller's access.
type Service interface {
	ListWebsites(ctx context.Context, access scope.Access, p pagination.Params) (pagination.Page[WebsiteDTO], error)
	CreateWebsite(ctx context.Context, access scope.Access, currentBrand *uuid.UUID, req CreateWebsiteRequest) (*WebsiteDTO, error)
	GetWebsite(ctx context.Context, access scope.Access, id uuid.UUID) (*WebsiteDTO, error)
	UpdateWebsite(ctx context.Context, access scope.Access, id uuid.UUID, req UpdateWebsiteRequest) (*WebsiteDTO, error)
	DeleteWebsite(ctx context.Context, access scope.Access, id uuid.UUID) error

	ListPages(ctx context.Context, access scope.Access, p pagination.Params) (pagination.Page[PageDTO], error)
	CreatePage(ctx context.Context, access scope.Access, req CreatePageRequest) (*PageDTO, error)
	GetPage(ctx context.Context, access scope.Access, id uuid.UUID) (*PageDTO, error)
	UpdatePage(ctx context.Context, access scope.Access, id uuid.UUID, req UpdatePageRequest) (*PageDTO, error)
	DeletePage(ctx context.Context, access scope.Access, id uuid.UUID) error
}

// ServiceParams packages the service dependencies.
type ServiceParams struct {
	DB       *db.Client
	Registry *scope.Registry
}

type service struct {
	db  *db.Client
	reg *scope.Registry
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "scope registry required")
	}
	return &service{db: params.DB, reg: params.Registry}, nil
}

var websiteOrderings = map[string]string{
	"name":       "websites.name",
	"domain":     "websites.domain",
	"created_at": "websites.created_at",
}

var pageOrderings = map[string]string{
	"title":      "pages.title",
	"slug":       "pages.slug",
	"created_at": "pages.created_at",
}

func (s *service) ListWebsites(ctx context.Context, access scope.Access, p pagination.Params) (pagination.Page[WebsiteDTO], error) {
	p = pagination.Normalize(p)

	q, err := s.reg.Apply(s.db.DB().WithContext(ctx).Model(&models.Website{}), ResourceWebsites, access)
	if err != nil {
		return pagination.Page[WebsiteDTO]{}, err
	}
	if p.Search != "" {
		like := "%" + p.Search + "%"
		q = q.Where("websites.name LIKE ? OR websites.domain LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[WebsiteDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count websites")
	}
	var rows []models.Website
	err = q.
		Order(pagination.OrderClause(p.Ordering, websiteOrderings, "websites.created_at DESC")).
		Offset(p.Offset()).
		Limit(p.Limit()).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[WebsiteDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list websites")
	}

	items := make([]WebsiteDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *websiteFromModel(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

// CreateWebsite assigns the current brand unless the payload names one
// explicitly; either way the brand must be in the caller's set.
func (s *service) CreateWebsite(ctx context.Context, access scope.Access, currentBrand *uuid.UUID, req CreateWebsiteRequest) (*WebsiteDTO, error) {
	brandID := req.BrandID
	if brandID == nil {
		brandID = currentBrand
	}
	if brandID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no brand selected")
	}

	var dto *WebsiteDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var brand models.Brand
		if err := tx.WithContext(ctx).First(&brand, "id = ? AND soft_deleted = ?", *brandID, false).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand")
		}
		if err := access.RequireBrand(brand.ID, brand.CompanyID); err != nil {
			return err
		}

		site := &models.Website{
			ID:       uuid.New(),
			BrandID:  brand.ID,
			Name:     strings.TrimSpace(req.Name),
			Domain:   strings.ToLower(strings.TrimSpace(req.Domain)),
			IsActive: true,
		}
		if err := tx.WithContext(ctx).Create(site).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create website")
		}
		dto = websiteFromModel(site)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) GetWebsite(ctx context.Context, access scope.Access, id uuid.UUID) (*WebsiteDTO, error) {
	site, err := s.loadWebsite(ctx, s.db.DB(), access, id)
	if err != nil {
		return nil, err
	}
	return websiteFromModel(site), nil
}

func (s *service) UpdateWebsite(ctx context.Context, access scope.Access, id uuid.UUID, req UpdateWebsiteRequest) (*WebsiteDTO, error) {
	var dto *WebsiteDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		site, err := s.loadWebsite(ctx, tx, access, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			site.Name = strings.TrimSpace(*req.Name)
		}
		if req.Domain != nil {
			site.Domain = strings.ToLower(strings.TrimSpace(*req.Domain))
		}
		if req.IsActive != nil {
			site.IsActive = *req.IsActive
		}
		if err := tx.WithContext(ctx).Save(site).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save website")
		}
		dto = websiteFromModel(site)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) DeleteWebsite(ctx context.Context, access scope.Access, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		site, err := s.loadWebsite(ctx, tx, access, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Where("website_id = ?", site.ID).Delete(&models.Page{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete pages")
		}
		if err := tx.WithContext(ctx).Delete(site).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete website")
		}
		return nil
	})
}

func (s *service) ListPages(ctx context.Context, access scope.Access, p pagination.Params) (pagination.Page[PageDTO], error) {
	p = pagination.Normalize(p)

	q, err := s.reg.Apply(s.db.DB().WithContext(ctx).Model(&models.Page{}), ResourcePages, access)
	if err != nil {
		return pagination.Page[PageDTO]{}, err
	}
	if p.Search != "" {
		like := "%" + p.Search + "%"
		q = q.Where("pages.title LIKE ? OR pages.slug LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[PageDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count pages")
	}
	var rows []models.Page
	err = q.
		Order(pagination.OrderClause(p.Ordering, pageOrderings, "pages.created_at DESC")).
		Offset(p.Offset()).
		Limit(p.Limit()).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[PageDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pages")
	}

	items := make([]PageDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *pageFromModel(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

// CreatePage routes through the supplied website: the website's brand must
// be in the caller's set or the write is a cross-brand violation.
func (s *service) CreatePage(ctx context.Context, access scope.Access, req CreatePageRequest) (*PageDTO, error) {
	var dto *PageDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var site models.Website
		if err := tx.WithContext(ctx).First(&site, "id = ?", req.WebsiteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "website not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load website")
		}
		var brand models.Brand
		if err := tx.WithContext(ctx).First(&brand, "id = ?", site.BrandID).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand")
		}
		if brand.SoftDeleted {
			return pkgerrors.New(pkgerrors.CodeNotFound, "website not found")
		}
		if err := access.RequireBrand(brand.ID, brand.CompanyID); err != nil {
			return err
		}

		page := &models.Page{
			ID:        uuid.New(),
			WebsiteID: site.ID,
			Title:     strings.TrimSpace(req.Title),
			Slug:      strings.TrimSpace(req.Slug),
			Body:      req.Body,
		}
		if err := tx.WithContext(ctx).Create(page).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create page")
		}
		dto = pageFromModel(page)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) GetPage(ctx context.Context, access scope.Access, id uuid.UUID) (*PageDTO, error) {
	page, err := s.loadPage(ctx, s.db.DB(), access, id)
	if err != nil {
		return nil, err
	}
	return pageFromModel(page), nil
}

func (s *service) UpdatePage(ctx context.Context, access scope.Access, id uuid.UUID, req UpdatePageRequest) (*PageDTO, error) {
	var dto *PageDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		page, err := s.loadPage(ctx, tx, access, id)
		if err != nil {
			return err
		}
		if req.Title != nil {
			page.Title = strings.TrimSpace(*req.Title)
		}
		if req.Slug != nil {
			page.Slug = strings.TrimSpace(*req.Slug)
		}
		if req.Body != nil {
			page.Body = *req.Body
		}
		if req.IsPublished != nil {
			page.IsPublished = *req.IsPublished
		}
		if err := tx.WithContext(ctx).Save(page).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save page")
		}
		dto = pageFromModel(page)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) DeletePage(ctx context.Context, access scope.Access, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		page, err := s.loadPage(ctx, tx, access, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Delete(page).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete page")
		}
		return nil
	})
}

// loadWebsite fetches one website through the scoped queryset, so a row
// outside the caller's brands reads as not-found.
func (s *service) loadWebsite(ctx context.Context, tx *gorm.DB, access scope.Access, id uuid.UUID) (*models.Website, error) {
	q, err := s.reg.Apply(tx.WithContext(ctx).Model(&models.Website{}), ResourceWebsites, access)
	if err != nil {
		return nil, err
	}
	var site models.Website
	if err := q.Where("websites.id = ?", id).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "website not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load website")
	}
	return &site, nil
}

func (s *service) loadPage(ctx context.Context, tx *gorm.DB, access scope.Access, id uuid.UUID) (*models.Page, error) {
	q, err := s.reg.Apply(tx.WithContext(ctx).Model(&models.Page{}), ResourcePages, access)
	if err != nil {
		return nil, err
	}
	var page models.Page
	if err := q.Where("pages.id = ?", id).First(&page).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "page not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load page")
	}
	return &page, nil
}
