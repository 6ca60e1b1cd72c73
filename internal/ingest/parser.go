// Package ingest decodes uploaded access-control logs into raw tables.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
)

// Decode errors.
var (
	ErrFileTooLarge = errors.New("file exceeds the size limit")
	ErrTooManyRows  = errors.New("file exceeds the row limit")
	ErrNoHeader     = errors.New("file has no header row")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidateDelimiters are tried in order when sniffing the header line.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// Upload is a decoded file: its raw bytes, which identify the session, and the
// table parsed from them.
type Upload struct {
	Filename string
	Raw      []byte
	Table    model.RawTable
}

// Parser decodes CSV access logs.
type Parser struct {
	maxFileSize int64
	maxRows     int
}

// NewParser creates a parser enforcing the configured limits.
func NewParser(limits config.Files) *Parser {
	return &Parser{maxFileSize: limits.MaxFileSize, maxRows: limits.MaxRows}
}

// preprocess strips a UTF-8 byte order mark and leading blank lines.
func (p *Parser) preprocess(content []byte) []byte {
	content = bytes.TrimPrefix(content, utf8BOM)
	return bytes.TrimLeft(content, " \t\r\n")
}

// ParseFile reads a whole upload and decodes it.
func (p *Parser) ParseFile(ctx context.Context, filename string, reader io.Reader) (*Upload, error) {
	limited := reader
	if p.maxFileSize > 0 {
		limited = io.LimitReader(reader, p.maxFileSize+1)
	}
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if p.maxFileSize > 0 && int64(len(raw)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrFileTooLarge, filename, p.maxFileSize)
	}

	table, err := p.Decode(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	slog.Debug("Decoded upload",
		"file", filename,
		"bytes", len(raw),
		"columns", len(table.Headers),
		"rows", len(table.Rows))

	return &Upload{Filename: filename, Raw: raw, Table: table}, nil
}

// Decode parses CSV content into a raw table. Header names are trimmed; rows may be
// ragged and are kept as-is for the normalizer to judge.
func (p *Parser) Decode(ctx context.Context, content []byte) (model.RawTable, error) {
	content = p.preprocess(content)
	if len(content) == 0 {
		return model.RawTable{}, ErrNoHeader
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = SniffDelimiter(content)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		return model.RawTable{}, fmt.Errorf("%w: %v", ErrNoHeader, err)
	}
	table := model.RawTable{Headers: make([]string, len(header))}
	for i, h := range header {
		table.Headers[i] = strings.TrimSpace(h)
	}

	for {
		if len(table.Rows)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return model.RawTable{}, err
			}
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.RawTable{}, fmt.Errorf("line %d: %w", len(table.Rows)+2, err)
		}
		if isBlank(record) {
			continue
		}
		if p.maxRows > 0 && len(table.Rows) >= p.maxRows {
			return model.RawTable{}, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, p.maxRows)
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}

// SniffDelimiter picks the candidate delimiter that occurs most often in the first
// line, defaulting to a comma.
func SniffDelimiter(content []byte) rune {
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
