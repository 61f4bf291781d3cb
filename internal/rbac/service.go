package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

type membershipRepository interface {
	Assignments(ctx context.Context, userID uuid.UUID) ([]Assignment, error)
	IsBrandAdmin(ctx context.Context, userID, brandID uuid.UUID) (bool, error)
	HasBrandAccess(ctx context.Context, userID, brandID uuid.UUID) (bool, error)
}

type featureChecker interface {
	IsFeatureActive(ctx context.Context, companyID uuid.UUID, code string) (bool, error)
}

// Service computes effective permissions. Checkers returned by ForActor
// memoize role loads and decisions for the duration of a request.
type Service interface {
	Can(ctx context.Context, actor Actor, resource Resource, action enums.PermissionType) (Decision, error)
	Require(ctx context.Context, actor Actor, resource Resource, action enums.PermissionType) error
	ForActor(actor Actor) *Checker
}

type service struct {
	repo     membershipRepository
	features featureChecker
	// featureBindings maps a resource name to the feature code that
	// gates it. Unbound resources are never feature gated.
	featureBindings map[string]string
}

func NewService(repo membershipRepository, features featureChecker, featureBindings map[string]string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rbac service requires a repository")
	}
	if featureBindings == nil {
		featureBindings = map[string]string{}
	}
	return &service{repo: repo, features: features, featureBindings: featureBindings}, nil
}

func (s *service) Can(ctx context.Context, actor Actor, resource Resource, action enums.PermissionType) (Decision, error) {
	return s.resolve(ctx, actor, resource, action, nil)
}

// Require is Can with the denial mapped onto the error taxonomy.
func (s *service) Require(ctx context.Context, actor Actor, resource Resource, action enums.PermissionType) error {
	decision, err := s.Can(ctx, actor, resource, action)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return pkgerrors.New(pkgerrors.CodeForbidden, "permission denied").
			WithDetails(map[string]any{
				"resource": resource.Name,
				"action":   action.String(),
				"rule":     decision.Rule,
			})
	}
	return nil
}

func (s *service) resolve(ctx context.Context, actor Actor, resource Resource, action enums.PermissionType, cache *Checker) (Decision, error) {
	in := ResolveInput{
		Actor:    actor,
		Resource: resource,
		Action:   action,
		Now:      time.Now().UTC(),
	}

	if code, ok := s.featureBindings[resource.Name]; ok && s.features != nil && !actor.IsSuperuser {
		active, err := s.featureActive(ctx, resource.CompanyID, code, cache)
		if err != nil {
			return Decision{}, err
		}
		in.FeatureActive = &active
		in.FeatureCode = code
	}

	if !actor.IsSuperuser {
		assignments, err := s.assignments(ctx, actor.UserID, cache)
		if err != nil {
			return Decision{}, err
		}
		in.Assignments = assignments

		if resource.BrandID != nil {
			isAdmin, err := s.repo.IsBrandAdmin(ctx, actor.UserID, *resource.BrandID)
			if err != nil {
				return Decision{}, err
			}
			in.IsBrandAdmin = isAdmin

			hasAccess, err := s.repo.HasBrandAccess(ctx, actor.UserID, *resource.BrandID)
			if err != nil {
				return Decision{}, err
			}
			in.HasBrandAccess = hasAccess
		}
	}

	return Resolve(in), nil
}

func (s *service) assignments(ctx context.Context, userID uuid.UUID, cache *Checker) ([]Assignment, error) {
	if cache != nil {
		if cache.assignments != nil {
			return cache.assignments, nil
		}
	}
	assignments, err := s.repo.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if assignments == nil {
			assignments = []Assignment{}
		}
		cache.assignments = assignments
	}
	return assignments, nil
}

func (s *service) featureActive(ctx context.Context, companyID uuid.UUID, code string, cache *Checker) (bool, error) {
	if cache != nil {
		if active, ok := cache.features[code]; ok {
			return active, nil
		}
	}
	active, err := s.features.IsFeatureActive(ctx, companyID, code)
	if err != nil {
		return false, err
	}
	if cache != nil {
		cache.features[code] = active
	}
	return active, nil
}

// Checker memoizes permission checks for one actor within a request.
type Checker struct {
	svc   *service
	actor Actor

	mu          sync.Mutex
	assignments []Assignment
	features    map[string]bool
	decisions   map[string]Decision
}

func (s *service) ForActor(actor Actor) *Checker {
	return &Checker{
		svc:       s,
		actor:     actor,
		features:  map[string]bool{},
		decisions: map[string]Decision{},
	}
}

// Can resolves the check, returning a cached decision when the same
// (resource, action) was already evaluated in this request.
func (c *Checker) Can(ctx context.Context, resource Resource, action enums.PermissionType) (Decision, error) {
	key := decisionKey(resource, action)

	c.mu.Lock()
	defer c.mu.Unlock()

	if decision, ok := c.decisions[key]; ok {
		return decision, nil
	}
	decision, err := c.svc.resolve(ctx, c.actor, resource, action, c)
	if err != nil {
		return Decision{}, err
	}
	c.decisions[key] = decision
	return decision, nil
}

func decisionKey(resource Resource, action enums.PermissionType) string {
	brand := ""
	if resource.BrandID != nil {
		brand = resource.BrandID.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s", resource.Name, resource.CompanyID, brand, action)
}
