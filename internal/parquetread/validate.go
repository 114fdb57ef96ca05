package parquetread

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ValidateDailySchema checks that the Parquet schema carries the columns the
// cohort builder needs and at least one outcome indicator.
func ValidateDailySchema(schema *parquet.Schema) error {
	columns := schemaColumns(schema)

	required := []string{"pt", "day"}
	for _, col := range required {
		if !columns[col] {
			return fmt.Errorf("missing required column: %s", col)
		}
	}

	// At least one outcome column must be present; a file with neither
	// cannot produce informative follow-up.
	outcomeCols := []string{"death", "discharge"}
	hasOutcome := false
	for _, col := range outcomeCols {
		if columns[col] {
			hasOutcome = true
			break
		}
	}
	if !hasOutcome {
		return fmt.Errorf("no outcome columns found; need at least one of: %s",
			strings.Join(outcomeCols, ", "))
	}

	return nil
}

// ValidateBaselineSchema checks the one-row-per-subject baseline file.
func ValidateBaselineSchema(schema *parquet.Schema) error {
	columns := schemaColumns(schema)
	for _, col := range []string{"pt", "severity_baseline"} {
		if !columns[col] {
			return fmt.Errorf("missing required column: %s", col)
		}
	}
	return nil
}

func schemaColumns(schema *parquet.Schema) map[string]bool {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}
	return columns
}
