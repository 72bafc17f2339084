package model

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a source model from a YAML file
func LoadFile(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	db, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load model file %s: %w", path, err)
	}
	return db, nil
}

// Decode parses a YAML model, rejecting unknown fields
func Decode(r io.Reader) (*Database, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var db Database
	if err := dec.Decode(&db); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	db.Normalize()
	if err := db.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}

	return &db, nil
}

// Encode writes db as YAML
func Encode(w io.Writer, db *Database) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(db); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return enc.Close()
}
