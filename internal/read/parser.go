// Package read implements the row-scan side of the client engine: the chunk
// reassembly parser, the resumable stream reader and checkpointed scans.
package read

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vietddude/rowstream/internal/core/domain"
)

// ErrMalformedStream is the class of all chunk grammar violations. Every
// specific parse error below wraps it, so callers can match the class with
// errors.Is while logs keep the precise reason.
var ErrMalformedStream = errors.New("malformed read stream")

var (
	// ErrNonIncreasingRowKey reports a committed row key at or below the
	// previously committed one.
	ErrNonIncreasingRowKey = fmt.Errorf("%w: row key does not strictly increase", ErrMalformedStream)

	// ErrNewFamilyWithoutQualifier reports a chunk that introduces a family
	// but carries no qualifier.
	ErrNewFamilyWithoutQualifier = fmt.Errorf("%w: new family without qualifier", ErrMalformedStream)

	// ErrMissingRowKey reports a chunk that omits the row key when no row is
	// in progress to inherit it from.
	ErrMissingRowKey = fmt.Errorf("%w: chunk omits row key with no row in progress", ErrMalformedStream)

	// ErrRowKeyChangedWithoutCommit reports a row key change before the
	// current row was committed or reset.
	ErrRowKeyChangedWithoutCommit = fmt.Errorf("%w: row key changed without commit", ErrMalformedStream)

	// ErrCommitWithPartialCell reports a commit flag while a cell is still
	// mid-assembly.
	ErrCommitWithPartialCell = fmt.Errorf("%w: commit with partial cell", ErrMalformedStream)

	// ErrResetWithPartialCell reports a reset flag while a cell is still
	// mid-assembly.
	ErrResetWithPartialCell = fmt.Errorf("%w: reset with partial cell", ErrMalformedStream)

	// ErrResetWithNoRow reports a reset flag with no row in progress.
	ErrResetWithNoRow = fmt.Errorf("%w: reset with no row in progress", ErrMalformedStream)

	// ErrResetAndCommit reports a chunk carrying both flags.
	ErrResetAndCommit = fmt.Errorf("%w: chunk carries both reset and commit", ErrMalformedStream)

	// ErrResetWithPayload reports cell data on a reset chunk.
	ErrResetWithPayload = fmt.Errorf("%w: reset chunk carries cell data", ErrMalformedStream)

	// ErrCellFieldsMidCell reports identity fields on a value continuation
	// chunk.
	ErrCellFieldsMidCell = fmt.Errorf("%w: cell fields on a continuation chunk", ErrMalformedStream)

	// ErrPartialRowAtEnd reports end of stream while a row or cell is still
	// mid-assembly.
	ErrPartialRowAtEnd = fmt.Errorf("%w: stream ended with uncommitted row", ErrMalformedStream)
)

// Misuse errors: programming-error class, never a property of the stream.
var (
	// ErrNoRowBuffered is returned by TakeRow when no completed row is
	// buffered.
	ErrNoRowBuffered = errors.New("no row buffered")

	// ErrRowNotTaken is returned by Feed when the previously completed row
	// has not been taken yet.
	ErrRowNotTaken = errors.New("buffered row not taken before next chunk")
)

type cellAccumulator struct {
	family          string
	qualifier       []byte
	timestampMicros int64
	labels          []string
	fragments       [][]byte
}

// ChunkParser reassembles a sequence of wire cell chunks into complete rows,
// enforcing the stream grammar. It is a pure, single-threaded state machine:
// no I/O, no retries.
//
// Usage: Feed chunks one at a time; after a Feed that completed a commit,
// HasRow reports true and the row must be taken with TakeRow before the next
// Feed. EndOfInput validates that nothing was left mid-assembly.
type ChunkParser struct {
	lastCommittedKey []byte
	pendingKey       []byte
	pendingCells     []*domain.Cell
	cell             cellAccumulator
	awaitingNewCell  bool
	row              *domain.Row
}

// NewChunkParser creates a parser in its initial state.
func NewChunkParser() *ChunkParser {
	return &ChunkParser{awaitingNewCell: true}
}

// Feed applies one chunk to the parser state. On a grammar violation it
// returns a malformed-stream error; rows already taken remain valid.
func (p *ChunkParser) Feed(c *domain.CellChunk) error {
	if p.row != nil {
		return ErrRowNotTaken
	}

	if c.ResetRow {
		return p.reset(c)
	}

	if p.awaitingNewCell {
		if err := p.startCell(c); err != nil {
			return err
		}
	} else {
		if err := p.continueCell(c); err != nil {
			return err
		}
	}

	p.cell.fragments = append(p.cell.fragments, c.Value)

	// Nonzero ValueSize declares more fragments to come for this cell.
	if c.ValueSize == 0 {
		p.finishCell()
	} else {
		p.awaitingNewCell = false
	}

	if c.CommitRow {
		return p.commit()
	}
	return nil
}

func (p *ChunkParser) reset(c *domain.CellChunk) error {
	if c.CommitRow {
		return ErrResetAndCommit
	}
	// A reset chunk carries the flag and nothing else.
	if len(c.RowKey) > 0 || c.Family != nil || c.Qualifier != nil ||
		c.TimestampMicros != 0 || len(c.Labels) > 0 ||
		len(c.Value) > 0 || c.ValueSize != 0 {
		return ErrResetWithPayload
	}
	if !p.awaitingNewCell {
		return ErrResetWithPartialCell
	}
	if len(p.pendingKey) == 0 {
		return ErrResetWithNoRow
	}
	p.clearRowState()
	return nil
}

// startCell establishes the identity of a new cell, inheriting row key,
// family and qualifier from the previous cell where omitted. Row key changes
// are only legal at row boundaries.
func (p *ChunkParser) startCell(c *domain.CellChunk) error {
	switch {
	case len(p.pendingKey) == 0:
		if len(c.RowKey) == 0 {
			return ErrMissingRowKey
		}
		p.pendingKey = bytes.Clone(c.RowKey)
	case len(c.RowKey) > 0 && !bytes.Equal(c.RowKey, p.pendingKey):
		return ErrRowKeyChangedWithoutCommit
	}

	if c.Family != nil {
		if c.Qualifier == nil {
			return ErrNewFamilyWithoutQualifier
		}
		p.cell.family = *c.Family
	}
	if c.Qualifier != nil {
		p.cell.qualifier = bytes.Clone(*c.Qualifier)
	}
	p.cell.timestampMicros = c.TimestampMicros
	p.cell.labels = c.Labels
	p.cell.fragments = nil
	return nil
}

// continueCell validates a value continuation chunk. Identity fields belong
// on the first chunk of a cell only.
func (p *ChunkParser) continueCell(c *domain.CellChunk) error {
	if c.Family != nil || c.Qualifier != nil || len(c.Labels) > 0 {
		return ErrCellFieldsMidCell
	}
	if len(c.RowKey) > 0 && !bytes.Equal(c.RowKey, p.pendingKey) {
		return ErrRowKeyChangedWithoutCommit
	}
	return nil
}

// finishCell moves the accumulated fragments into a completed cell. The
// fragment storage is moved, not copied, so long values assemble in linear
// time.
func (p *ChunkParser) finishCell() {
	cell := domain.NewCell(
		p.pendingKey,
		p.cell.family,
		p.cell.qualifier,
		p.cell.timestampMicros,
		p.cell.labels,
		p.cell.fragments,
	)
	p.cell.fragments = nil
	p.pendingCells = append(p.pendingCells, cell)
	p.awaitingNewCell = true
}

func (p *ChunkParser) commit() error {
	if !p.awaitingNewCell {
		return ErrCommitWithPartialCell
	}
	if len(p.pendingKey) == 0 {
		return ErrMissingRowKey
	}
	if bytes.Compare(p.pendingKey, p.lastCommittedKey) <= 0 {
		return ErrNonIncreasingRowKey
	}

	p.row = &domain.Row{Key: p.pendingKey, Cells: p.pendingCells}
	p.lastCommittedKey = p.pendingKey
	p.clearRowState()
	return nil
}

// clearRowState drops per-row state only. The monotonicity watermark
// (lastCommittedKey) is never touched here.
func (p *ChunkParser) clearRowState() {
	p.pendingKey = nil
	p.pendingCells = nil
	p.cell = cellAccumulator{}
	p.awaitingNewCell = true
}

// HasRow reports whether a completed row is buffered.
func (p *ChunkParser) HasRow() bool {
	return p.row != nil
}

// TakeRow removes and returns the buffered row. Calling it with no row
// buffered is a programming error, not a stream error.
func (p *ChunkParser) TakeRow() (*domain.Row, error) {
	if p.row == nil {
		return nil, ErrNoRowBuffered
	}
	row := p.row
	p.row = nil
	return row, nil
}

// EndOfInput signals that no more chunks will arrive. It fails when a cell or
// row is still mid-assembly.
func (p *ChunkParser) EndOfInput() error {
	if !p.awaitingNewCell || len(p.pendingKey) > 0 {
		return ErrPartialRowAtEnd
	}
	return nil
}
