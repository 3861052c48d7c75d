package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadInjectionDocument reads and decodes an injection-patterns document.
func LoadInjectionDocument(path string) (*InjectionDocument, error) {
	var doc InjectionDocument
	if err := loadYAML(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadListsDocument reads and decodes an allow/block lists document.
func LoadListsDocument(path string) (*ListsDocument, error) {
	var doc ListsDocument
	if err := loadYAML(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadAnomalyDocument reads and decodes an anomaly-rules document.
func LoadAnomalyDocument(path string) (*AnomalyDocument, error) {
	var doc AnomalyDocument
	if err := loadYAML(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadPIIDocument reads and decodes a PII-patterns document.
func LoadPIIDocument(path string) (*PIIDocument, error) {
	var doc PIIDocument
	if err := loadYAML(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	return nil
}
