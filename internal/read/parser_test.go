package read

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vietddude/rowstream/internal/core/domain"
)

func strp(s string) *string { return &s }

func qualp(s string) *[]byte {
	b := []byte(s)
	return &b
}

// cellChunk builds a complete single-fragment cell chunk.
func cellChunk(rowKey, family, qualifier string, ts int64, value string) *domain.CellChunk {
	c := &domain.CellChunk{
		RowKey:          []byte(rowKey),
		TimestampMicros: ts,
		Value:           []byte(value),
	}
	if family != "" {
		c.Family = strp(family)
	}
	if qualifier != "" {
		c.Qualifier = qualp(qualifier)
	}
	return c
}

func commitChunk(rowKey, family, qualifier string, ts int64, value string) *domain.CellChunk {
	c := cellChunk(rowKey, family, qualifier, ts, value)
	c.CommitRow = true
	return c
}

func feedAll(t *testing.T, p *ChunkParser, chunks ...*domain.CellChunk) []*domain.Row {
	t.Helper()
	var rows []*domain.Row
	for i, c := range chunks {
		if err := p.Feed(c); err != nil {
			t.Fatalf("Feed(chunk %d) failed: %v", i, err)
		}
		if p.HasRow() {
			row, err := p.TakeRow()
			if err != nil {
				t.Fatalf("TakeRow after chunk %d failed: %v", i, err)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func TestChunkParser_SplitValueCommit(t *testing.T) {
	p := NewChunkParser()

	first := cellChunk("RK", "A", "C", 100, "v")
	first.ValueSize = 9 // more fragments follow
	second := &domain.CellChunk{Value: []byte("alue-VAL"), CommitRow: true}

	rows := feedAll(t, p, first, second)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if string(row.Key) != "RK" {
		t.Errorf("Expected row key RK, got %q", row.Key)
	}
	if len(row.Cells) != 1 {
		t.Fatalf("Expected 1 cell, got %d", len(row.Cells))
	}

	cell := row.Cells[0]
	if cell.Family != "A" || string(cell.Qualifier) != "C" || cell.TimestampMicros != 100 {
		t.Errorf("Unexpected cell identity: %s:%q @%d", cell.Family, cell.Qualifier, cell.TimestampMicros)
	}
	if string(cell.Value()) != "value-VAL" {
		t.Errorf("Expected value-VAL, got %q", cell.Value())
	}

	if err := p.EndOfInput(); err != nil {
		t.Errorf("EndOfInput after commit failed: %v", err)
	}
}

func TestChunkParser_FragmentedEqualsWhole(t *testing.T) {
	// The same total bytes split into N fragments must assemble to the same
	// cell value as a single fragment.
	whole := feedAll(t, NewChunkParser(), commitChunk("r", "f", "q", 0, "abcdef"))

	p := NewChunkParser()
	c1 := cellChunk("r", "f", "q", 0, "ab")
	c1.ValueSize = 6
	c2 := &domain.CellChunk{Value: []byte("cd"), ValueSize: 6}
	c3 := &domain.CellChunk{Value: []byte("ef"), CommitRow: true}
	split := feedAll(t, p, c1, c2, c3)

	if !bytes.Equal(whole[0].Cells[0].Value(), split[0].Cells[0].Value()) {
		t.Errorf("Fragmented value %q != whole value %q",
			split[0].Cells[0].Value(), whole[0].Cells[0].Value())
	}
}

func TestChunkParser_Monotonicity(t *testing.T) {
	tests := []struct {
		name   string
		second string
		wantOK bool
	}{
		{"strictly greater", "b", true},
		{"equal", "a", false},
		{"smaller", "Z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewChunkParser()
			feedAll(t, p, commitChunk("a", "f", "q", 0, "x"))

			err := p.Feed(commitChunk(tt.second, "f", "q", 0, "y"))
			if tt.wantOK && err != nil {
				t.Fatalf("Expected commit of %q to succeed: %v", tt.second, err)
			}
			if !tt.wantOK {
				if !errors.Is(err, ErrNonIncreasingRowKey) {
					t.Fatalf("Expected ErrNonIncreasingRowKey, got %v", err)
				}
				if !errors.Is(err, ErrMalformedStream) {
					t.Error("Expected the error to match the malformed-stream class")
				}
			}
		})
	}
}

func TestChunkParser_ResetClearsUncommittedOnly(t *testing.T) {
	p := NewChunkParser()

	if err := p.Feed(cellChunk("r1", "f", "old", 0, "discarded")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if err := p.Feed(&domain.CellChunk{ResetRow: true}); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	rows := feedAll(t, p, commitChunk("r1", "f", "new", 0, "kept"))
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if len(row.Cells) != 1 {
		t.Fatalf("Expected only the post-reset cell, got %d cells", len(row.Cells))
	}
	if string(row.Cells[0].Qualifier) != "new" {
		t.Errorf("Expected post-reset qualifier, got %q", row.Cells[0].Qualifier)
	}
}

func TestChunkParser_CellIdentityInheritance(t *testing.T) {
	p := NewChunkParser()

	first := cellChunk("r1", "f", "q", 500, "a")
	second := &domain.CellChunk{Value: []byte("b"), CommitRow: true} // inherits f:q, ts defaults to 0
	rows := feedAll(t, p, first, second)

	cells := rows[0].Cells
	if len(cells) != 2 {
		t.Fatalf("Expected 2 cells, got %d", len(cells))
	}
	if cells[1].Family != "f" || string(cells[1].Qualifier) != "q" {
		t.Errorf("Expected inherited identity f:q, got %s:%q", cells[1].Family, cells[1].Qualifier)
	}
	if cells[1].TimestampMicros != 0 {
		t.Errorf("Expected omitted timestamp to default to 0, got %d", cells[1].TimestampMicros)
	}
}

func TestChunkParser_GrammarViolations(t *testing.T) {
	tests := []struct {
		name   string
		chunks []*domain.CellChunk
		want   error
	}{
		{
			name:   "reset with no row in progress",
			chunks: []*domain.CellChunk{{ResetRow: true}},
			want:   ErrResetWithNoRow,
		},
		{
			name: "reset with partial cell",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r"), Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v"), ValueSize: 10},
				{ResetRow: true},
			},
			want: ErrResetWithPartialCell,
		},
		{
			name: "commit with partial cell",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r"), Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v"), ValueSize: 10, CommitRow: true},
			},
			want: ErrCommitWithPartialCell,
		},
		{
			name:   "reset and commit on one chunk",
			chunks: []*domain.CellChunk{{ResetRow: true, CommitRow: true}},
			want:   ErrResetAndCommit,
		},
		{
			name: "reset chunk carries a value",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r"), Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v")},
				{ResetRow: true, Value: []byte("smuggled")},
			},
			want: ErrResetWithPayload,
		},
		{
			name: "reset chunk carries cell identity",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r"), Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v")},
				{ResetRow: true, Family: strp("f"), Qualifier: qualp("q")},
			},
			want: ErrResetWithPayload,
		},
		{
			name: "reset chunk carries a row key",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r"), Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v")},
				{ResetRow: true, RowKey: []byte("r")},
			},
			want: ErrResetWithPayload,
		},
		{
			name: "new family without qualifier",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r"), Family: strp("f"), Value: []byte("v")},
			},
			want: ErrNewFamilyWithoutQualifier,
		},
		{
			name:   "first chunk omits row key",
			chunks: []*domain.CellChunk{{Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v")}},
			want:   ErrMissingRowKey,
		},
		{
			name: "row key changes without commit",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r1"), Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v")},
				{RowKey: []byte("r2"), Value: []byte("v")},
			},
			want: ErrRowKeyChangedWithoutCommit,
		},
		{
			name: "identity fields on a continuation chunk",
			chunks: []*domain.CellChunk{
				{RowKey: []byte("r"), Family: strp("f"), Qualifier: qualp("q"), Value: []byte("v"), ValueSize: 10},
				{Qualifier: qualp("other"), Value: []byte("v")},
			},
			want: ErrCellFieldsMidCell,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewChunkParser()
			var err error
			for _, c := range tt.chunks {
				if err = p.Feed(c); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrMalformedStream) {
				t.Error("Expected the error to match the malformed-stream class")
			}
		})
	}
}

func TestChunkParser_EndOfInputWithPartialRow(t *testing.T) {
	p := NewChunkParser()
	// Committed rows do not trip end-of-input validation.
	feedAll(t, p, commitChunk("r1", "f", "q", 0, "v"))

	if err := p.Feed(cellChunk("r2", "f", "q", 0, "v")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if err := p.EndOfInput(); !errors.Is(err, ErrPartialRowAtEnd) {
		t.Fatalf("Expected ErrPartialRowAtEnd, got %v", err)
	}
}

func TestChunkParser_Misuse(t *testing.T) {
	p := NewChunkParser()

	if _, err := p.TakeRow(); !errors.Is(err, ErrNoRowBuffered) {
		t.Fatalf("Expected ErrNoRowBuffered, got %v", err)
	}
	if errors.Is(ErrNoRowBuffered, ErrMalformedStream) {
		t.Fatal("Misuse errors must not be malformed-stream errors")
	}

	if err := p.Feed(commitChunk("r", "f", "q", 0, "v")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	// Feeding with an untaken row buffered is a programming error.
	if err := p.Feed(cellChunk("s", "f", "q", 0, "v")); !errors.Is(err, ErrRowNotTaken) {
		t.Fatalf("Expected ErrRowNotTaken, got %v", err)
	}

	// The buffered row survives the misuse.
	row, err := p.TakeRow()
	if err != nil {
		t.Fatalf("TakeRow failed: %v", err)
	}
	if string(row.Key) != "r" {
		t.Errorf("Expected buffered row r, got %q", row.Key)
	}
}
