package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/onion-topology/internal/model"
)

// Validation errors.
var (
	ErrNilContext            = errors.New("context cannot be nil")
	ErrEmptyString           = errors.New("string parameter cannot be empty")
	ErrNilParameter          = errors.New("parameter cannot be nil")
	ErrInvalidMapping        = errors.New("invalid column mapping")
	ErrInvalidClassification = errors.New("invalid classification")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateFingerprint(fp model.HeaderFingerprint) error {
	return validateString(string(fp), "fingerprint")
}

// validateMapping rejects blank column names and unknown roles.
func validateMapping(mapping model.ColumnMapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	for column, role := range mapping {
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("%w: blank column name", ErrInvalidMapping)
		}
		if _, ok := model.ParseRole(string(role)); !ok {
			return fmt.Errorf("%w: column %q has unknown role %q", ErrInvalidMapping, column, role)
		}
	}
	return nil
}

// validateRecord rejects blank door IDs and unknown security levels. Blank fields
// are allowed; they mean the operator left them empty.
func validateRecord(rec model.ClassificationRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: classification record", ErrNilParameter)
	}
	for door, c := range rec {
		if strings.TrimSpace(door) == "" {
			return fmt.Errorf("%w: blank door ID", ErrInvalidClassification)
		}
		if c.SecurityLevel != "" && !c.SecurityLevel.Valid() {
			return fmt.Errorf("%w: door %q has unknown security level %q", ErrInvalidClassification, door, c.SecurityLevel)
		}
	}
	return nil
}
