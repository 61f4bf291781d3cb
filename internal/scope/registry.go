package scope

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Rule maps a resource to the relational path from its table to brands.
// A direct resource names the brand column on its own table; a routed
// resource lists the joins needed to reach the table holding it. Global
// resources have no brand path and are visible to everyone.
type Rule struct {
	Global bool
	// Joins are applied in order before the brands join, e.g.
	// "JOIN websites ON websites.id = pages.website_id".
	Joins []string
	// BrandColumn is the fully qualified column holding the brand id,
	// e.g. "websites.brand_id".
	BrandColumn string
}

// Registry is the routing table. It is the single source of truth for
// tenant isolation: a resource missing from it cannot be queried at all.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

func NewRegistry() *Registry {
	return &Registry{rules: map[string]Rule{}}
}

// Register adds a brand-scoped resource to the table.
func (r *Registry) Register(resource string, rule Rule) error {
	if rule.Global {
		return fmt.Errorf("scope: use RegisterGlobal for %q", resource)
	}
	if rule.BrandColumn == "" {
		return fmt.Errorf("scope: resource %q needs a brand column", resource)
	}
	return r.add(resource, rule)
}

// RegisterGlobal marks a resource as explicitly non-scoped.
func (r *Registry) RegisterGlobal(resource string) error {
	return r.add(resource, Rule{Global: true})
}

func (r *Registry) add(resource string, rule Rule) error {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return fmt.Errorf("scope: resource name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[resource]; exists {
		return fmt.Errorf("scope: resource %q registered twice", resource)
	}
	r.rules[resource] = rule
	return nil
}

// Rule looks up a resource's routing rule.
func (r *Registry) Rule(resource string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[resource]
	return rule, ok
}

// Resources lists every registered resource, sorted.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for name := range r.rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Verify is the boot self-test: every resource the router exposes must be
// either mapped or explicitly global. Callers abort startup on error.
func (r *Registry) Verify(exposed []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, resource := range exposed {
		if _, ok := r.rules[resource]; !ok {
			missing = append(missing, resource)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("scope: resources missing from the routing table: %s",
			strings.Join(missing, ", "))
	}
	return nil
}
