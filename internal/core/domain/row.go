package domain

// Cell is the smallest addressable unit of stored data: one value at one
// (row key, family, qualifier, timestamp) coordinate.
//
// The value may arrive from the wire split into several fragments. Fragments
// are held as-is until the first call to Value, which concatenates them once,
// caches the flat result and releases the fragment storage. After that the
// cached bytes are immutable and reused.
type Cell struct {
	RowKey          []byte
	Family          string
	Qualifier       []byte
	TimestampMicros int64
	Labels          []string

	fragments    [][]byte
	value        []byte
	materialized bool
}

// NewCell creates a cell whose value is the concatenation of fragments.
// The cell takes ownership of the fragment slices.
func NewCell(
	rowKey []byte,
	family string,
	qualifier []byte,
	timestampMicros int64,
	labels []string,
	fragments [][]byte,
) *Cell {
	return &Cell{
		RowKey:          rowKey,
		Family:          family,
		Qualifier:       qualifier,
		TimestampMicros: timestampMicros,
		Labels:          labels,
		fragments:       fragments,
	}
}

// Value returns the cell value, assembling it from fragments on first use.
func (c *Cell) Value() []byte {
	if c.materialized {
		return c.value
	}

	switch len(c.fragments) {
	case 0:
		c.value = nil
	case 1:
		// Single fragment: adopt it directly, no copy.
		c.value = c.fragments[0]
	default:
		total := 0
		for _, f := range c.fragments {
			total += len(f)
		}
		buf := make([]byte, 0, total)
		for _, f := range c.fragments {
			buf = append(buf, f...)
		}
		c.value = buf
	}

	c.fragments = nil
	c.materialized = true
	return c.value
}

// Row is an ordered collection of cells sharing a row key, in arrival order.
type Row struct {
	Key   []byte
	Cells []*Cell
}
