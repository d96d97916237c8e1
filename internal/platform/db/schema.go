package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const (
	schemaPrefix  = "facility_"
	maxIdentifier = 63
)

var (
	schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// SchemaFor derives the schema holding a facility's tables from its name,
// so that several facilities can share one database.
func SchemaFor(facilityName string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(facilityName), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "default"
	}
	s := schemaPrefix + slug
	if len(s) > maxIdentifier {
		s = strings.TrimRight(s[:maxIdentifier], "_")
	}
	return s
}

// ValidSchema reports whether s is safe to splice into DDL unquoted.
func ValidSchema(s string) bool {
	return len(s) <= maxIdentifier && schemaPattern.MatchString(s)
}

// SearchPath is the search_path used for a facility schema.
func SearchPath(schema string) string {
	return schema + ", public"
}

// CreateFacilitySchema creates the facility schema if needed and applies
// every pending bootstrap migration to it. It returns the number applied.
func CreateFacilitySchema(ctx context.Context, conn Conn, schema string) (int, error) {
	if !ValidSchema(schema) {
		return 0, fmt.Errorf("invalid schema name: %s", schema)
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return 0, fmt.Errorf("create schema %s: %w", schema, err)
	}

	n, err := NewMigrator(conn, Migrations()).Up(ctx, schema)
	if err != nil {
		return n, fmt.Errorf("bootstrap %s: %w", schema, err)
	}
	return n, nil
}
