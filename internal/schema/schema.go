package schema

import "fmt"

// ── Schema Registry ────────────────────────────────────────
// Authoritative per-record-type column/type/primary-key metadata.
// The normalizer, validator, and writer are all driven from here;
// adding a record type is a registry entry plus an endpoint mapping.

// Type is the semantic category of a column value.
type Type string

const (
	TypeDatetime Type = "datetime"
	TypeInteger  Type = "integer"
	TypeFloat    Type = "float"
	TypeBoolean  Type = "boolean"
	TypeString   Type = "string"
)

// RecordType identifies one of the four physiological fact categories.
type RecordType string

const (
	RecordCycle    RecordType = "cycle"
	RecordSleep    RecordType = "sleep"
	RecordRecovery RecordType = "recovery"
	RecordWorkout  RecordType = "workout"
)

// RecordTypes lists all record types in dependency order: cycles are
// written first so sleep/recovery rows never reference a missing cycle.
var RecordTypes = []RecordType{RecordCycle, RecordSleep, RecordRecovery, RecordWorkout}

// Column describes a single column in a fact table.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Table describes one fact table: ordered columns and primary key.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// ColumnNames returns the ordered list of column names.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnType returns the type category for a column name.
func (t *Table) ColumnType(name string) (Type, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

// IsPrimaryKey reports whether name is part of the primary key.
func (t *Table) IsPrimaryKey(name string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == name {
			return true
		}
	}
	return false
}

var registry = map[RecordType]*Table{
	RecordCycle: {
		Name: "fact_cycle",
		Columns: []Column{
			{Name: "cycle_id", Type: TypeInteger},
			{Name: "user_id", Type: TypeInteger},
			{Name: "created_at", Type: TypeDatetime},
			{Name: "updated_at", Type: TypeDatetime},
			{Name: "start", Type: TypeDatetime},
			{Name: "end", Type: TypeDatetime},
			{Name: "timezone_offset", Type: TypeInteger},
			{Name: "state", Type: TypeString},
			{Name: "strain", Type: TypeFloat, Nullable: true},
			{Name: "kilojoule", Type: TypeFloat, Nullable: true},
			{Name: "average_heart_rate", Type: TypeInteger, Nullable: true},
			{Name: "max_heart_rate", Type: TypeInteger, Nullable: true},
			{Name: "sleep_id", Type: TypeString, Nullable: true},
			{Name: "recovery_id", Type: TypeString, Nullable: true},
		},
		PrimaryKey: []string{"cycle_id"},
	},
	RecordSleep: {
		Name: "fact_activity_sleep",
		Columns: []Column{
			{Name: "sleep_id", Type: TypeString},
			{Name: "cycle_id", Type: TypeInteger, Nullable: true},
			{Name: "v1_id", Type: TypeInteger, Nullable: true},
			{Name: "user_id", Type: TypeInteger},
			{Name: "created_at", Type: TypeDatetime},
			{Name: "updated_at", Type: TypeDatetime},
			{Name: "start", Type: TypeDatetime},
			{Name: "end", Type: TypeDatetime},
			{Name: "timezone_offset", Type: TypeInteger},
			{Name: "nap", Type: TypeBoolean},
			{Name: "state", Type: TypeString},
			{Name: "total_in_bed_time_milli", Type: TypeInteger, Nullable: true},
			{Name: "total_awake_time_milli", Type: TypeInteger, Nullable: true},
			{Name: "total_no_data_time_milli", Type: TypeInteger, Nullable: true},
			{Name: "total_light_sleep_time_milli", Type: TypeInteger, Nullable: true},
			{Name: "total_slow_wave_sleep_time_milli", Type: TypeInteger, Nullable: true},
			{Name: "total_rem_sleep_time_milli", Type: TypeInteger, Nullable: true},
			{Name: "sleep_cycle_count", Type: TypeInteger, Nullable: true},
			{Name: "disturbance_count", Type: TypeInteger, Nullable: true},
			{Name: "sleep_needed_baseline_milli", Type: TypeInteger, Nullable: true},
			{Name: "sleep_needed_need_from_sleep_debt_milli", Type: TypeInteger, Nullable: true},
			{Name: "sleep_needed_need_from_recent_strain_milli", Type: TypeInteger, Nullable: true},
			{Name: "sleep_needed_need_from_recent_nap_milli", Type: TypeInteger, Nullable: true},
			{Name: "respiratory_rate", Type: TypeFloat, Nullable: true},
			{Name: "sleep_performance_percentage", Type: TypeFloat, Nullable: true},
			{Name: "sleep_consistency_percentage", Type: TypeFloat, Nullable: true},
			{Name: "sleep_efficiency_percentage", Type: TypeFloat, Nullable: true},
		},
		PrimaryKey: []string{"sleep_id"},
	},
	RecordRecovery: {
		Name: "fact_recovery",
		Columns: []Column{
			{Name: "sleep_id", Type: TypeString},
			{Name: "cycle_id", Type: TypeInteger, Nullable: true},
			{Name: "user_id", Type: TypeInteger},
			{Name: "created_at", Type: TypeDatetime},
			{Name: "updated_at", Type: TypeDatetime},
			{Name: "state", Type: TypeString},
			{Name: "user_calibrating", Type: TypeBoolean},
			{Name: "recovery_score", Type: TypeInteger, Nullable: true},
			{Name: "resting_heart_rate", Type: TypeInteger, Nullable: true},
			{Name: "hrv_rmssd_milli", Type: TypeFloat, Nullable: true},
			{Name: "spo2_percentage", Type: TypeFloat, Nullable: true},
			{Name: "skin_temp_celsius", Type: TypeFloat, Nullable: true},
		},
		PrimaryKey: []string{"sleep_id"},
	},
	RecordWorkout: {
		Name: "fact_workout",
		Columns: []Column{
			{Name: "workout_id", Type: TypeString},
			{Name: "v1_id", Type: TypeInteger, Nullable: true},
			{Name: "user_id", Type: TypeInteger},
			{Name: "created_at", Type: TypeDatetime},
			{Name: "updated_at", Type: TypeDatetime},
			{Name: "start", Type: TypeDatetime},
			{Name: "end", Type: TypeDatetime},
			{Name: "timezone_offset", Type: TypeInteger},
			{Name: "sport_name", Type: TypeString},
			{Name: "state", Type: TypeString},
			{Name: "sport_id", Type: TypeInteger, Nullable: true},
			{Name: "strain", Type: TypeFloat, Nullable: true},
			{Name: "average_heart_rate", Type: TypeInteger, Nullable: true},
			{Name: "max_heart_rate", Type: TypeInteger, Nullable: true},
			{Name: "kilojoule", Type: TypeFloat, Nullable: true},
			{Name: "percent_recorded", Type: TypeFloat, Nullable: true},
			{Name: "distance_meter", Type: TypeFloat, Nullable: true},
			{Name: "altitude_gain_meter", Type: TypeFloat, Nullable: true},
			{Name: "altitude_change_meter", Type: TypeFloat, Nullable: true},
			{Name: "zone_zero_milli", Type: TypeInteger, Nullable: true},
			{Name: "zone_one_milli", Type: TypeInteger, Nullable: true},
			{Name: "zone_two_milli", Type: TypeInteger, Nullable: true},
			{Name: "zone_three_milli", Type: TypeInteger, Nullable: true},
			{Name: "zone_four_milli", Type: TypeInteger, Nullable: true},
			{Name: "zone_five_milli", Type: TypeInteger, Nullable: true},
		},
		PrimaryKey: []string{"workout_id"},
	},
}

// TableFor returns the table definition for a record type. An unknown
// record type is a programmer error.
func TableFor(rt RecordType) *Table {
	t, ok := registry[rt]
	if !ok {
		panic(fmt.Sprintf("schema: unknown record type %q", rt))
	}
	return t
}

// PrimaryKeyFor returns the primary key column(s) for a record type.
func PrimaryKeyFor(rt RecordType) []string {
	return TableFor(rt).PrimaryKey
}
