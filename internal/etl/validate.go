package etl

import (
	"fmt"
	"time"

	"whoopsync/internal/schema"
)

// ── Validator ──────────────────────────────────────────────
// Asserts data-quality invariants on a normalized batch before it is
// handed to the writer. Fail-fast: the first violated rule rejects the
// whole batch, no partial-continue and no silent row skipping.

// Validation rule identifiers.
const (
	RuleNoNullPrimaryKey   = "no_null_primary_key"
	RuleUniquePrimaryKey   = "unique_primary_key"
	RuleColumnsExist       = "columns_exist"
	RuleColumnTypesMatch   = "column_types_match"
	RuleStrainRange        = "strain_range"
	RuleRecoveryScoreRange = "recovery_score_range"
)

// ValidationError reports which rule failed and the offending detail.
type ValidationError struct {
	Rule   string
	Column string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s) on column %q: %s", e.Rule, e.Column, e.Detail)
}

// Validate checks a normalized batch against the record type's schema.
// Returns nil when every rule passes.
func Validate(batch Batch, rt schema.RecordType) error {
	table := schema.TableFor(rt)

	if err := checkNoNullPrimaryKey(batch, table); err != nil {
		return err
	}
	if err := checkUniquePrimaryKey(batch, table); err != nil {
		return err
	}
	if err := checkColumnsExist(batch, table); err != nil {
		return err
	}
	if err := checkColumnTypes(batch, table); err != nil {
		return err
	}
	if err := checkRange(batch, "strain", 0, 21.0); err != nil {
		return err
	}
	if err := checkRange(batch, "recovery_score", 0, 100); err != nil {
		return err
	}
	return nil
}

func checkNoNullPrimaryKey(batch Batch, table *schema.Table) error {
	for i, rec := range batch {
		for _, pk := range table.PrimaryKey {
			if rec.Data[pk] == nil {
				return &ValidationError{
					Rule:   RuleNoNullPrimaryKey,
					Column: pk,
					Detail: fmt.Sprintf("row %d has a null primary key", i),
				}
			}
		}
	}
	return nil
}

func checkUniquePrimaryKey(batch Batch, table *schema.Table) error {
	seen := make(map[string]struct{}, len(batch))
	for _, rec := range batch {
		key := ""
		for _, pk := range table.PrimaryKey {
			key += fmt.Sprint(rec.Data[pk]) + "\x00"
		}
		if _, dup := seen[key]; dup {
			return &ValidationError{
				Rule:   RuleUniquePrimaryKey,
				Column: table.PrimaryKey[0],
				Detail: fmt.Sprintf("duplicate primary key value %v", rec.Data[table.PrimaryKey[0]]),
			}
		}
		seen[key] = struct{}{}
	}
	return nil
}

func checkColumnsExist(batch Batch, table *schema.Table) error {
	for i, rec := range batch {
		for _, c := range table.Columns {
			if _, ok := rec.Data[c.Name]; !ok {
				return &ValidationError{
					Rule:   RuleColumnsExist,
					Column: c.Name,
					Detail: fmt.Sprintf("row %d is missing declared column", i),
				}
			}
		}
	}
	return nil
}

func checkColumnTypes(batch Batch, table *schema.Table) error {
	for i, rec := range batch {
		for _, c := range table.Columns {
			v := rec.Data[c.Name]
			if v == nil {
				continue // nullability is covered by the primary-key rule and storage constraints
			}
			if !typeMatches(v, c.Type) {
				return &ValidationError{
					Rule:   RuleColumnTypesMatch,
					Column: c.Name,
					Detail: fmt.Sprintf("row %d has %T, expected %s", i, v, c.Type),
				}
			}
		}
	}
	return nil
}

// typeMatches reconciles a schema type category against the concrete
// runtime type the normalizer produces for that category.
func typeMatches(v any, typ schema.Type) bool {
	switch typ {
	case schema.TypeDatetime:
		_, ok := v.(time.Time)
		return ok
	case schema.TypeInteger:
		_, ok := v.(int64)
		return ok
	case schema.TypeFloat:
		_, ok := v.(float64)
		return ok
	case schema.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case schema.TypeString:
		_, ok := v.(string)
		return ok
	}
	return false
}

// checkRange enforces an inclusive bound on a column when present.
func checkRange(batch Batch, column string, min, max float64) error {
	rule := RuleStrainRange
	if column == "recovery_score" {
		rule = RuleRecoveryScoreRange
	}
	for i, rec := range batch {
		v, ok := rec.Data[column]
		if !ok || v == nil {
			continue
		}
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int64:
			f = float64(n)
		default:
			continue // type mismatches are reported by column_types_match
		}
		if f < min || f > max {
			return &ValidationError{
				Rule:   rule,
				Column: column,
				Detail: fmt.Sprintf("row %d value %v outside [%v, %v]", i, v, min, max),
			}
		}
	}
	return nil
}
