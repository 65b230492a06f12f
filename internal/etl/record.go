package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format. The fetcher emits raw flattened
// records, the normalizer reshapes them to the schema, the writer
// consumes them. A nil value is the absent-value marker: a field that
// was missing or unparsable, distinct from zero/empty.

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data map[string]any
}

// Batch is an ordered collection of records of a single record type,
// produced from one pagination sweep over one time window.
type Batch []Record
