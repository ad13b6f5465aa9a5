package domain

// ServerTimestamp on a set-cell mutation asks the server to assign the cell
// timestamp at apply time. Such a mutation is not safe to resend.
const ServerTimestamp int64 = -1

// MutationKind identifies a write operation type.
type MutationKind string

const (
	MutationSetCell      MutationKind = "set_cell"
	MutationDeleteColumn MutationKind = "delete_from_column"
	MutationDeleteFamily MutationKind = "delete_from_family"
	MutationDeleteRow    MutationKind = "delete_from_row"
)

// TimestampRange bounds a delete-from-column mutation. Zero EndMicros means
// unbounded above.
type TimestampRange struct {
	StartMicros int64 `json:"start_timestamp_micros,omitempty"`
	EndMicros   int64 `json:"end_timestamp_micros,omitempty"`
}

// Mutation is a single write operation against one row.
type Mutation struct {
	Kind            MutationKind    `json:"kind"`
	Family          string          `json:"family_name,omitempty"`
	Qualifier       []byte          `json:"qualifier,omitempty"`
	TimestampMicros int64           `json:"timestamp_micros,omitempty"`
	Value           []byte          `json:"value,omitempty"`
	TimeRange       *TimestampRange `json:"time_range,omitempty"`
}

// SetCell creates a mutation that writes one cell value. Pass
// ServerTimestamp to let the server assign the timestamp.
func SetCell(family string, qualifier []byte, timestampMicros int64, value []byte) Mutation {
	return Mutation{
		Kind:            MutationSetCell,
		Family:          family,
		Qualifier:       qualifier,
		TimestampMicros: timestampMicros,
		Value:           value,
	}
}

// DeleteColumn creates a mutation that deletes cells from one column,
// optionally restricted to a timestamp range.
func DeleteColumn(family string, qualifier []byte, tr *TimestampRange) Mutation {
	return Mutation{
		Kind:      MutationDeleteColumn,
		Family:    family,
		Qualifier: qualifier,
		TimeRange: tr,
	}
}

// DeleteFamily creates a mutation that deletes all cells in one family.
func DeleteFamily(family string) Mutation {
	return Mutation{Kind: MutationDeleteFamily, Family: family}
}

// DeleteRow creates a mutation that deletes the entire row.
func DeleteRow() Mutation {
	return Mutation{Kind: MutationDeleteRow}
}

// Idempotent reports whether resending the mutation cannot change the final
// stored result. Only a set-cell with a server-assigned timestamp is unsafe:
// each resend would create a cell at a different timestamp.
func (m Mutation) Idempotent() bool {
	return m.Kind != MutationSetCell || m.TimestampMicros != ServerTimestamp
}

// Entry is one batch item: an ordered list of mutations for one row.
type Entry struct {
	RowKey    []byte     `json:"row_key"`
	Mutations []Mutation `json:"mutations"`
}

// Idempotent reports whether every mutation in the entry is idempotent.
// Only fully idempotent entries may be silently resent on retry.
func (e Entry) Idempotent() bool {
	for _, m := range e.Mutations {
		if !m.Idempotent() {
			return false
		}
	}
	return true
}
