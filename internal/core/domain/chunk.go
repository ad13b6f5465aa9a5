package domain

// CellChunk is one wire fragment describing part or all of one cell, as
// delivered by the streaming read RPC.
//
// Field presence matters: a nil Family or Qualifier means "same as the
// previous cell", which is different from an empty value. Pointer fields
// preserve that distinction through the wire codec.
type CellChunk struct {
	// RowKey of the cell. Empty means "same row as the previous chunk".
	RowKey []byte `json:"row_key,omitempty"`

	// Family of the cell. Nil means inherited from the previous cell.
	// A chunk that introduces a new family must also carry a qualifier.
	Family *string `json:"family_name,omitempty"`

	// Qualifier of the cell. Nil means inherited from the previous cell.
	Qualifier *[]byte `json:"qualifier,omitempty"`

	// TimestampMicros of the cell. 0 when absent on a cell's first chunk.
	TimestampMicros int64 `json:"timestamp_micros,omitempty"`

	// Labels attached to the cell by the read filter.
	Labels []string `json:"labels,omitempty"`

	// Value fragment for the current cell.
	Value []byte `json:"value,omitempty"`

	// ValueSize is the total declared size of the cell value. Nonzero means
	// more fragments follow for this cell; zero means this fragment
	// completes the value.
	ValueSize int32 `json:"value_size,omitempty"`

	// ResetRow discards the accumulated, uncommitted cells of the current row.
	ResetRow bool `json:"reset_row,omitempty"`

	// CommitRow finalizes the current row and emits it.
	CommitRow bool `json:"commit_row,omitempty"`
}
