package filtering

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spigell/candidate-matcher/internal/domain"
)

// HardFilter is a label predicate over one attribute field. A candidate passes
// when it has at least one AnyOf label (if any are given) and every AllOf label.
// Labels are compared case-insensitively.
type HardFilter struct {
	Field string   `json:"field" mapstructure:"field"`
	AnyOf []string `json:"any_of,omitempty" mapstructure:"any-of"`
	AllOf []string `json:"all_of,omitempty" mapstructure:"all-of"`
}

// Matches reports whether labels satisfy the filter.
func (f HardFilter) Matches(labels []string) bool {
	labels = domain.NormalizeLabels(labels)

	if anyOf := domain.NormalizeLabels(f.AnyOf); len(anyOf) > 0 {
		if !slices.ContainsFunc(anyOf, func(l string) bool { return slices.Contains(labels, l) }) {
			return false
		}
	}

	for _, required := range domain.NormalizeLabels(f.AllOf) {
		if !slices.Contains(labels, required) {
			return false
		}
	}
	return true
}

func (f HardFilter) field() string {
	field := strings.TrimSpace(f.Field)
	if field == "" {
		return domain.SkillsField
	}
	return field
}

type attributeFilter struct {
	spec     HardFilter
	disabled string
}

// NewAttribute wraps a HardFilter into a filtering step.
func NewAttribute(spec HardFilter) Filter {
	return &attributeFilter{spec: spec}
}

func (f *attributeFilter) Name() string { return "attribute_" + f.spec.field() }

func (f *attributeFilter) Disable(reason string) { f.disabled = reason }

func (f *attributeFilter) IsEnabled() bool { return f.disabled == "" }

func (f *attributeFilter) Validate() error {
	if len(domain.NormalizeLabels(f.spec.AnyOf)) == 0 && len(domain.NormalizeLabels(f.spec.AllOf)) == 0 {
		return fmt.Errorf("%w: filter on %q has no labels", domain.ErrInvalidInput, f.spec.field())
	}
	return nil
}

func (f *attributeFilter) Apply(_ context.Context, candidates []domain.Document) ([]domain.Document, Step, error) {
	field := f.spec.field()
	kept, dropped := keep(candidates, func(c domain.Document) bool {
		return f.spec.Matches(c.Attributes.Values(field))
	})
	return kept, Step{Initial: len(candidates), Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *attributeFilter) Status() Status {
	details := map[string]string{"field": f.spec.field()}
	if len(f.spec.AnyOf) > 0 {
		details["any_of"] = strings.Join(domain.NormalizeLabels(f.spec.AnyOf), ",")
	}
	if len(f.spec.AllOf) > 0 {
		details["all_of"] = strings.Join(domain.NormalizeLabels(f.spec.AllOf), ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.disabled, Details: details}
}
