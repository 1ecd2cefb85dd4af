package domain

import (
	"maps"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// SkillsField is the attribute name of the extracted skill list.
const SkillsField = "skills"

// Attributes is the typed metadata of a document. Fields the engine does not
// interpret live in Extra.
type Attributes struct {
	Title    string         `json:"title,omitempty" mapstructure:"title"`
	Company  string         `json:"company,omitempty" mapstructure:"company"`
	Location string         `json:"location,omitempty" mapstructure:"location"`
	Name     string         `json:"name,omitempty" mapstructure:"name"`
	Source   string         `json:"source,omitempty" mapstructure:"source"`
	Skills   []string       `json:"skills,omitempty" mapstructure:"skills"`
	Extra    map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// Clone returns a copy that shares no slices or maps with a.
func (a Attributes) Clone() Attributes {
	out := a
	if a.Skills != nil {
		out.Skills = append([]string(nil), a.Skills...)
	}
	if a.Extra != nil {
		out.Extra = maps.Clone(a.Extra)
	}
	return out
}

// Values returns the normalised label list stored under field. The skills
// field and the scalar core fields are read directly; anything else is looked
// up in Extra and decoded with weak typing, so a single string, a list of
// strings or a list of arbitrary scalars all work.
func (a Attributes) Values(field string) []string {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case SkillsField, "":
		return NormalizeLabels(a.Skills)
	case "title":
		return NormalizeLabels([]string{a.Title})
	case "company":
		return NormalizeLabels([]string{a.Company})
	case "location":
		return NormalizeLabels([]string{a.Location})
	case "name":
		return NormalizeLabels([]string{a.Name})
	case "source":
		return NormalizeLabels([]string{a.Source})
	}

	raw, ok := a.Extra[field]
	if !ok || raw == nil {
		return nil
	}

	var values []string
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &values,
	})
	if err != nil {
		return nil
	}
	if err := decoder.Decode(raw); err != nil {
		return nil
	}
	return NormalizeLabels(values)
}

// DecodeAttributes converts a loosely typed metadata map into Attributes.
// Unknown keys are kept in Extra.
func DecodeAttributes(raw map[string]any) (Attributes, error) {
	var attrs Attributes
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &attrs,
	})
	if err != nil {
		return attrs, err
	}
	if err := decoder.Decode(raw); err != nil {
		return attrs, err
	}
	attrs.Skills = NormalizeLabels(attrs.Skills)
	if len(attrs.Extra) == 0 {
		attrs.Extra = nil
	}
	return attrs, nil
}

// NormalizeLabels lower-cases and trims labels, dropping empties and
// duplicates while keeping first-seen order.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
