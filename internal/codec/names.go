// Package codec maps logical column ids and types onto physical
// wide-table names and storage types, and converts cell values between
// the two representations.
package codec

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// ColumnPrefix starts every physical cell column name.
	ColumnPrefix = "col_"
	// TablePrefix starts every physical wide-table name.
	TablePrefix = "dyn_"

	maxColumnIDLen = 48
)

// Base columns present on every wide table.
const (
	ColID        = "id"
	ColRowOrder  = "row_order"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
	ColDeletedAt = "deleted_at"
)

var reserved = map[string]bool{
	ColID: true, ColRowOrder: true, ColCreatedAt: true, ColUpdatedAt: true, ColDeletedAt: true,
}

// IsReserved reports whether name is one of the base columns.
func IsReserved(name string) bool { return reserved[name] }

// ValidateColumnID checks that id uses the [a-z0-9-] alphabet, is at most
// 48 characters, and neither starts nor ends with a hyphen.
func ValidateColumnID(id string) error {
	if id == "" {
		return fmt.Errorf("column id is empty")
	}
	if len(id) > maxColumnIDLen {
		return fmt.Errorf("column id %q longer than %d characters", id, maxColumnIDLen)
	}
	if id[0] == '-' || id[len(id)-1] == '-' {
		return fmt.Errorf("column id %q must not start or end with '-'", id)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return fmt.Errorf("column id %q contains invalid character %q", id, c)
	}
	return nil
}

// NewColumnID draws a fresh column id.
func NewColumnID() string { return uuid.NewString() }

// EncodeColumn returns the physical column name for a valid column id.
// Callers validate ids when they are created, not here.
func EncodeColumn(id string) string {
	return ColumnPrefix + strings.ReplaceAll(id, "-", "_")
}

// DecodeColumn recovers the column id from a physical column name.
// ok is false for base columns and for names this package never produces.
func DecodeColumn(name string) (id string, ok bool) {
	rest, found := strings.CutPrefix(name, ColumnPrefix)
	if !found || rest == "" {
		return "", false
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return "", false
	}
	id = strings.ReplaceAll(rest, "_", "-")
	if ValidateColumnID(id) != nil {
		return "", false
	}
	return id, true
}

// TableName derives the wide-table name of a database id.
// Database ids are UUIDs; the canonical form minus hyphens is injective.
func TableName(databaseID string) (string, error) {
	u, err := uuid.Parse(databaseID)
	if err != nil {
		return "", fmt.Errorf("database id %q is not a uuid: %w", databaseID, err)
	}
	if u.String() != databaseID {
		return "", fmt.Errorf("database id %q is not in canonical form", databaseID)
	}
	return TablePrefix + strings.ReplaceAll(u.String(), "-", ""), nil
}
