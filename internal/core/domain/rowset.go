package domain

import "bytes"

// RowRange is a contiguous range of row keys. Bounds are inclusive unless the
// corresponding Open flag is set. An empty Start means unbounded below, an
// empty End unbounded above.
type RowRange struct {
	Start     []byte `json:"start_key,omitempty"`
	StartOpen bool   `json:"start_open,omitempty"`
	End       []byte `json:"end_key,omitempty"`
	EndOpen   bool   `json:"end_open,omitempty"`
}

// Clone returns a deep copy of the range.
func (r RowRange) Clone() RowRange {
	return RowRange{
		Start:     bytes.Clone(r.Start),
		StartOpen: r.StartOpen,
		End:       bytes.Clone(r.End),
		EndOpen:   r.EndOpen,
	}
}

// RowSet is a caller-specified collection of explicit row keys and key ranges
// to read. An empty RowSet means the full table.
type RowSet struct {
	Keys   [][]byte   `json:"row_keys,omitempty"`
	Ranges []RowRange `json:"row_ranges,omitempty"`
}

// Clone returns a deep copy of the set.
func (s RowSet) Clone() RowSet {
	out := RowSet{}
	if len(s.Keys) > 0 {
		out.Keys = make([][]byte, len(s.Keys))
		for i, k := range s.Keys {
			out.Keys[i] = bytes.Clone(k)
		}
	}
	if len(s.Ranges) > 0 {
		out.Ranges = make([]RowRange, len(s.Ranges))
		for i, r := range s.Ranges {
			out.Ranges[i] = r.Clone()
		}
	}
	return out
}

// Narrow intersects the set with the open interval (lastKey, +inf), dropping
// everything at or below lastKey. The second return value is false when
// nothing remains to read.
//
// An empty set means a full-table scan, so narrowing it yields the single
// open-ended range starting just after lastKey.
func (s RowSet) Narrow(lastKey []byte) (RowSet, bool) {
	if len(s.Keys) == 0 && len(s.Ranges) == 0 {
		return RowSet{
			Ranges: []RowRange{{Start: bytes.Clone(lastKey), StartOpen: true}},
		}, true
	}

	var out RowSet
	for _, k := range s.Keys {
		if bytes.Compare(k, lastKey) > 0 {
			out.Keys = append(out.Keys, bytes.Clone(k))
		}
	}
	for _, r := range s.Ranges {
		if len(r.End) > 0 && bytes.Compare(r.End, lastKey) <= 0 {
			// Even an inclusive end at lastKey has no keys above it.
			continue
		}
		nr := r.Clone()
		if bytes.Compare(nr.Start, lastKey) <= 0 {
			nr.Start = bytes.Clone(lastKey)
			nr.StartOpen = true
		}
		out.Ranges = append(out.Ranges, nr)
	}

	return out, len(out.Keys) > 0 || len(out.Ranges) > 0
}

// Filter is a serialized read filter expression. It is built elsewhere and
// passed through to the server untouched.
type Filter []byte
