package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// sheet is a parsed file with the mapping that will be applied to it.
type sheet struct {
	file    *importer.ParsedFile
	mapping []importer.ColumnMapping
	report  importer.MappingReport
}

// loadSheet parses path and maps it, either automatically or from the
// --mapping file.
func loadSheet(path string, opts *options) (*sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := importer.Parse(f, filepath.Base(path), opts.maxSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	profile, err := resolveProfile(opts.profile)
	if err != nil {
		return nil, err
	}
	mapping := importer.AutoMapProfile(parsed.Headers, profile)
	if opts.mappingFile != "" {
		if mapping, err = readMapping(opts.mappingFile); err != nil {
			return nil, err
		}
	}

	report, err := importer.ValidateMapping(mapping, parsed.Headers, profile)
	if err != nil {
		return nil, err
	}
	return &sheet{file: parsed, mapping: mapping, report: report}, nil
}

// resolveProfile looks key up in the profile registry; "" is the inventory
// catalog.
func resolveProfile(key string) (importer.Profile, error) {
	if key == "" {
		return importer.InventoryProfile, nil
	}
	if p, ok := importer.GetProfile(key); ok {
		return p, nil
	}

	var keys []string
	for _, p := range importer.Profiles() {
		keys = append(keys, p.Key)
	}
	return importer.Profile{}, fmt.Errorf("%w %q (available: %s)", importer.ErrUnknownProfile, key, strings.Join(keys, ", "))
}

func readMapping(path string) ([]importer.ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mapping []importer.ColumnMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	return mapping, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
