// Package catalog maintains the TTL-bound downloads catalog: the list of
// applications and their per-platform release sources, persisted as a single
// JSON document through the backing store.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// PlatformSource describes one way to obtain a build for one platform.
type PlatformSource struct {
	// Repo is the owner/name of the upstream release repository.
	Repo string `json:"repo"`
	// AssetPattern is a regular expression matched against release asset
	// names; the first match in upstream order wins.
	AssetPattern string `json:"asset_pattern"`
	// FallbackURL is used when live resolution fails or yields no match.
	FallbackURL string `json:"fallback_url"`
}

// Validate checks the source invariants: a compilable non-empty pattern and
// a well-formed absolute fallback URL.
func (p PlatformSource) Validate() error {
	if p.AssetPattern == "" {
		return fmt.Errorf("asset_pattern is empty")
	}
	if _, err := regexp.Compile(p.AssetPattern); err != nil {
		return fmt.Errorf("asset_pattern %q: %w", p.AssetPattern, err)
	}
	u, err := url.Parse(p.FallbackURL)
	if err != nil {
		return fmt.Errorf("fallback_url %q: %w", p.FallbackURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("fallback_url %q is not an absolute URL", p.FallbackURL)
	}
	return nil
}

// AppEntry is one downloadable application.
type AppEntry struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Platforms   map[string]PlatformSource `json:"platforms"`
}

// Validate checks the entry and all of its platform sources.
func (a AppEntry) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("app name is empty")
	}
	for platform, src := range a.Platforms {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("app %q platform %q: %w", a.Name, platform, err)
		}
	}
	return nil
}

// Document is the persisted catalog: a generation timestamp plus the
// ordered application entries.
type Document struct {
	Timestamp int64      `json:"timestamp"`
	Downloads []AppEntry `json:"downloads"`
}

// Validate checks every entry in the document.
func (d Document) Validate() error {
	for _, entry := range d.Downloads {
		if err := entry.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FindApp returns the entry whose name matches appID case-insensitively.
func (d Document) FindApp(appID string) (AppEntry, bool) {
	for _, entry := range d.Downloads {
		if strings.EqualFold(entry.Name, appID) {
			return entry, true
		}
	}
	return AppEntry{}, false
}

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal catalog schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("file:///catalog.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add catalog schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("file:///catalog.schema.json")
	})
	return schema, schemaErr
}

// ParseDocument parses and validates a persisted catalog document. Any
// structural mismatch is an error; the cache treats that as a miss.
func ParseDocument(raw []byte) (Document, error) {
	s, err := compiledSchema()
	if err != nil {
		return Document{}, err
	}

	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("parse catalog document: %w", err)
	}
	if err := s.Validate(value); err != nil {
		return Document{}, fmt.Errorf("catalog document schema: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode catalog document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
