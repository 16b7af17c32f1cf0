package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"marketfetch/internal/market"
)

// PresetPath names one saved threshold preset.
func PresetPath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

// SavePreset writes a named threshold set as indented JSON so presets
// stay hand-editable.
func SavePreset(path string, thresholds map[string]market.Threshold) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating preset directory: %w", err)
	}

	b, err := json.MarshalIndent(thresholds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// LoadPreset reads a preset back and fills in disabled entries for any
// metric added since the preset was saved.
func LoadPreset(path string) (map[string]market.Threshold, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	thresholds := map[string]market.Threshold{}
	if err := json.Unmarshal(b, &thresholds); err != nil {
		return nil, fmt.Errorf("parsing preset %s: %w", path, err)
	}
	market.EnsureMetricThresholds(thresholds)
	return thresholds, nil
}

// ListPresets returns the preset names available under dir, without
// the .json suffix. A missing directory is an empty list.
func ListPresets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".json")])
	}
	return names, nil
}
