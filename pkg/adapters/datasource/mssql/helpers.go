package mssql

import (
	"fmt"
	"strings"
)

// parseSchemaTable splits a collection name that may include a schema.
// SQL Server format: [schema].[table] or schema.table. Names without a schema use
// defaultSchema.
func parseSchemaTable(name, defaultSchema string) (string, string) {
	cleaned := strings.ReplaceAll(name, "[", "")
	cleaned = strings.ReplaceAll(cleaned, "]", "")

	if schema, table, ok := strings.Cut(cleaned, "."); ok {
		return schema, table
	}
	return defaultSchema, cleaned
}

// quoteName returns identifier quoted the way SQL Server's QUOTENAME() does: square
// brackets, with ] escaped as ]].
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
func buildFullyQualifiedName(schema, table string) string {
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

// sampleQuery returns TOP(@p1) random rows of the table as one JSON array. Null columns
// are kept so they count as present-but-null fields.
func sampleQuery(schema, table string) string {
	return fmt.Sprintf(
		"SELECT TOP (@p1) * FROM %s ORDER BY NEWID() FOR JSON PATH, INCLUDE_NULL_VALUES",
		buildFullyQualifiedName(schema, table),
	)
}
