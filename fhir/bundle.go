package fhir

import (
	"encoding/json"
	"fmt"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewSearchBundle creates a searchset Bundle from a list of resources.
func NewSearchBundle(resources ...any) (*Bundle, error) {
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("fhir: encode entry: %w", err)
		}
		entries = append(entries, BundleEntry{
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		})
	}
	total := len(entries)
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Entry:        entries,
	}, nil
}

// NextLink returns the URL of the next page, or "".
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// Each decodes every entry whose resourceType matches and passes it to fn.
// Entries of other types (included resources, outcomes) are skipped.
func Each[T any](b *Bundle, resourceType string, fn func(T) error) error {
	for i, e := range b.Entry {
		if len(e.Resource) == 0 {
			continue
		}
		var head Resource
		if err := json.Unmarshal(e.Resource, &head); err != nil {
			return fmt.Errorf("fhir: entry %d: %w", i, err)
		}
		if head.ResourceType != resourceType {
			continue
		}
		var v T
		if err := json.Unmarshal(e.Resource, &v); err != nil {
			return fmt.Errorf("fhir: entry %d (%s): %w", i, resourceType, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

// Resources decodes every entry of the given type.
func Resources[T any](b *Bundle, resourceType string) ([]T, error) {
	var out []T
	err := Each(b, resourceType, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}
