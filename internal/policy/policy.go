// Package policy loads the immutable collection selling policies from a
// YAML file and validates them at startup. Policies never change while the
// service runs; both the allocator and the signer read them as-is.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cimillas/ordswap/internal/domain"
)

type file struct {
	Selling []domain.CollectionPolicy `yaml:"selling"`
}

// Registry holds the validated policies keyed by collection slug.
type Registry struct {
	bySlug map[string]domain.CollectionPolicy
}

// Load reads and parses the policy file at path.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a registry from raw YAML, rejecting malformed entries.
func Parse(raw []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}
	if len(f.Selling) == 0 {
		return nil, fmt.Errorf("policy: no selling collections configured")
	}

	bySlug := make(map[string]domain.CollectionPolicy, len(f.Selling))
	for i, c := range f.Selling {
		if err := validate(i, c); err != nil {
			return nil, err
		}
		if _, dup := bySlug[c.Slug]; dup {
			return nil, fmt.Errorf("policy: duplicate collection slug %q", c.Slug)
		}
		bySlug[c.Slug] = c
	}
	return &Registry{bySlug: bySlug}, nil
}

func validate(i int, c domain.CollectionPolicy) error {
	label := fmt.Sprintf("policy: selling[%d]", i)
	if c.Slug == "" {
		return fmt.Errorf("%s: missing slug", label)
	}
	if c.Title == "" {
		return fmt.Errorf("%s (%s): missing title", label, c.Slug)
	}
	if c.PriceSats <= 0 {
		return fmt.Errorf("%s (%s): price_sats must be a positive integer", label, c.Slug)
	}
	if c.PaymentAddress == "" {
		return fmt.Errorf("%s (%s): missing payment_address", label, c.Slug)
	}
	for j, p := range c.OptionalPayments {
		if p.Title == "" {
			return fmt.Errorf("%s (%s): optional_payments[%d]: missing title", label, c.Slug, j)
		}
		if p.Amount <= 0 {
			return fmt.Errorf("%s (%s): optional_payments[%d]: amount must be a positive integer", label, c.Slug, j)
		}
		if p.Address == "" {
			return fmt.Errorf("%s (%s): optional_payments[%d]: missing address", label, c.Slug, j)
		}
	}
	return nil
}

// Lookup returns the policy for slug.
func (r *Registry) Lookup(slug string) (domain.CollectionPolicy, error) {
	c, ok := r.bySlug[slug]
	if !ok {
		return domain.CollectionPolicy{}, domain.ErrCollectionNotFound
	}
	return c, nil
}

// Slugs lists all configured collection slugs.
func (r *Registry) Slugs() []string {
	out := make([]string, 0, len(r.bySlug))
	for slug := range r.bySlug {
		out = append(out, slug)
	}
	return out
}
