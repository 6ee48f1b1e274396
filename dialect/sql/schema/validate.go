package schema

import (
	"fmt"
	"strings"
)

// ValidationError is a change of a diff that may lose or reject data.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking marks changes that existing rows or readers cannot survive.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the issues found in a diff. Errors block a
// migration, warnings are reported only.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors reports whether the diff has blocking issues.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings reports whether the diff has non-blocking issues.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// ValidateOption downgrades a class of blocking issues to warnings.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	dropTable, dropColumn, dropIndex bool
	notNull                          bool
}

// AllowDropTable accepts dropped tables.
func AllowDropTable() ValidateOption {
	return func(c *validateConfig) { c.dropTable = true }
}

// AllowDropColumn accepts dropped columns.
func AllowDropColumn() ValidateOption {
	return func(c *validateConfig) { c.dropColumn = true }
}

// AllowDropIndex accepts dropped indexes.
func AllowDropIndex() ValidateOption {
	return func(c *validateConfig) { c.dropIndex = true }
}

// AllowNullToNotNull accepts nullable columns becoming NOT NULL.
func AllowNullToNotNull() ValidateOption {
	return func(c *validateConfig) { c.notNull = true }
}

// ValidateDiff reports the changes of d that may fail on, or discard, data
// already stored. Columns the diff paired as renames are not reported as
// dropped, so the result follows the options d was computed with.
func ValidateDiff(d *DatabaseDiff, opts ...ValidateOption) *ValidationResult {
	v := &validator{result: &ValidationResult{}}
	for _, opt := range opts {
		opt(&v.cfg)
	}
	for _, t := range d.RemovedTables {
		v.add(v.cfg.dropTable, &ValidationError{Table: t.Name, Message: "table will be dropped", Breaking: true})
	}
	for _, td := range d.Tables {
		v.table(td)
	}
	return v.result
}

type validator struct {
	cfg    validateConfig
	result *ValidationResult
}

// add records e as a warning when allowed, and as an error otherwise.
func (v *validator) add(allowed bool, e *ValidationError) {
	if allowed {
		v.result.Warnings = append(v.result.Warnings, e)
	} else {
		v.result.Errors = append(v.result.Errors, e)
	}
}

func (v *validator) warn(e *ValidationError) {
	v.result.Warnings = append(v.result.Warnings, e)
}

func (v *validator) table(td *TableDiff) {
	name := td.To.Name
	for _, c := range td.RemovedColumns {
		v.add(v.cfg.dropColumn, &ValidationError{Table: name, Column: c.Name, Message: "column will be dropped", Breaking: true})
	}
	for _, p := range td.RenamedColumns {
		v.warn(&ValidationError{Table: name, Column: p.From.Name, Message: fmt.Sprintf("column will be renamed to %s", p.To.Name), Breaking: true})
	}
	for _, c := range td.AddedColumns {
		if c.NotNull && c.Default == nil && !c.AutoIncrement {
			v.warn(&ValidationError{Table: name, Column: c.Name, Message: "new NOT NULL column without default value may fail if table has data"})
		}
	}
	for _, p := range td.ModifiedColumns {
		from, to := p.From, p.To
		if !strings.EqualFold(from.Type, to.Type) {
			v.warn(&ValidationError{Table: name, Column: to.Name, Message: fmt.Sprintf("column type changing from %s to %s", from.SizedType(), to.SizedType())})
		}
		if !from.NotNull && to.NotNull {
			v.add(v.cfg.notNull, &ValidationError{Table: name, Column: to.Name, Message: "column changing from NULL to NOT NULL may fail if column has NULL values", Breaking: true})
		}
		if from.Size > 0 && to.Size > 0 && to.Size < from.Size {
			v.warn(&ValidationError{Table: name, Column: to.Name, Message: fmt.Sprintf("column size reducing from %d to %d may truncate data", from.Size, to.Size)})
		}
		if !from.Unique && to.Unique {
			v.warn(&ValidationError{Table: name, Column: to.Name, Message: "adding UNIQUE constraint may fail if duplicate values exist"})
		}
	}
	if td.HasModifiedPK() {
		v.warn(&ValidationError{
			Table:    name,
			Message:  fmt.Sprintf("primary key changing from %v to %v", td.From.PrimaryKeyNames(), td.To.PrimaryKeyNames()),
			Breaking: true,
		})
	}
	for _, idx := range td.RemovedIndexes {
		v.add(v.cfg.dropIndex, &ValidationError{Table: name, Message: fmt.Sprintf("index %q will be dropped", idx.Name)})
	}
	for _, p := range td.ModifiedIndexes {
		if !p.From.Unique && p.To.Unique {
			v.warn(&ValidationError{Table: name, Message: fmt.Sprintf("index %q becoming unique may fail if duplicate values exist", p.To.Name)})
		}
	}
}
