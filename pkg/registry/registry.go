/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package registry is the immutable, versioned catalog of quantum
// templates. Registration is insert-only; a new version is a new id.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already registered")
	ErrTemplateInvalid  = errors.New("template invalid")
)

type Registry struct {
	mu        sync.RWMutex
	templates map[string]*v1.Template
	clock     func() time.Time
}

func New() *Registry {
	return &Registry{
		templates: map[string]*v1.Template{},
		clock:     time.Now,
	}
}

// Register inserts a template. Templates are immutable once registered; a
// duplicate id is rejected rather than updated.
func (r *Registry) Register(t v1.Template) error {
	if err := validateTemplate(&t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; ok {
		return fmt.Errorf("registering template %s, %w", t.ID, ErrTemplateExists)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock()
	}
	r.templates[t.ID] = &t
	return nil
}

// Get returns a copy of the template; callers never see registry-owned
// memory.
func (r *Registry) Get(id string) (*v1.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("looking up template %s, %w", id, ErrTemplateNotFound)
	}
	cp := *t
	return &cp, nil
}

// ListByCategory returns all templates in the category.
func (r *Registry) ListByCategory(category v1.TemplateCategory) []v1.Template {
	return r.list(func(t *v1.Template) bool { return t.Category == category })
}

// ListByStatus returns all templates with the status.
func (r *Registry) ListByStatus(status v1.TemplateStatus) []v1.Template {
	return r.list(func(t *v1.Template) bool { return t.Status == status })
}

// Search matches the query case-insensitively against name, description and
// tags.
func (r *Registry) Search(query string) []v1.Template {
	q := strings.ToLower(query)
	return r.list(func(t *v1.Template) bool {
		if strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(strings.ToLower(t.Description), q) {
			return true
		}
		return lo.SomeBy(t.Tags, func(tag string) bool {
			return strings.Contains(strings.ToLower(tag), q)
		})
	})
}

func (r *Registry) list(match func(*v1.Template) bool) []v1.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []v1.Template
	for _, t := range r.templates {
		if match(t) {
			out = append(out, *t)
		}
	}
	return out
}

// validateTemplate enforces the registration invariants: parseable semver,
// a complete parameter schema, and at least one SLA requirement with a
// non-empty fallback chain.
func validateTemplate(t *v1.Template) (err error) {
	if t.ID == "" {
		err = multierr.Append(err, fmt.Errorf("id is required"))
	}
	if _, verr := semver.StrictNewVersion(t.Version); verr != nil {
		err = multierr.Append(err, fmt.Errorf("version %q is not valid semver, %w", t.Version, verr))
	}
	if len(t.SLARequirements) == 0 {
		err = multierr.Append(err, fmt.Errorf("at least one SLA requirement is required"))
	}
	for _, req := range t.SLARequirements {
		if len(req.FallbackChain) == 0 {
			err = multierr.Append(err, fmt.Errorf("SLA requirement %s has an empty fallback chain", req.Metric))
		}
	}
	for name, spec := range t.ParameterSchema.Parameters {
		if spec.Type == "" {
			err = multierr.Append(err, fmt.Errorf("parameter %q has no type", name))
		}
		if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
			err = multierr.Append(err, fmt.Errorf("parameter %q min %g exceeds max %g", name, *spec.Min, *spec.Max))
		}
	}
	if err != nil {
		return fmt.Errorf("%w, %s", ErrTemplateInvalid, err)
	}
	return nil
}
