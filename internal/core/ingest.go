package core

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Row is one data record keyed by header name.
type Row map[string]string

// CSVData is the immutable result of ingesting a CSV file.
type CSVData struct {
	Headers   []string `json:"headers"`
	Rows      []Row    `json:"rows"`
	TotalRows int      `json:"totalRows"`
}

// emptyData is what an empty input produces.
func emptyData() CSVData {
	return CSVData{Headers: []string{}, Rows: []Row{}}
}

// HasHeaders reports whether any header was read.
func (d CSVData) HasHeaders() bool {
	return len(d.Headers) > 0
}

// MarshalJSON writes rows with keys in header order so the serialized
// context reads the way the file does. A repeated header name is written once.
func (d CSVData) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(d.Headers))
	seen := make(map[string]bool, len(d.Headers))
	encodedKeys := make([][]byte, 0, len(d.Headers))
	for _, h := range d.Headers {
		if seen[h] {
			continue
		}
		seen[h] = true
		k, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		keys = append(keys, h)
		encodedKeys = append(encodedKeys, k)
	}

	headers := d.Headers
	if headers == nil {
		headers = []string{}
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"headers":`)
	buf.Write(headerJSON)
	buf.WriteString(`,"rows":[`)
	for i, row := range d.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, k := range keys {
			if j > 0 {
				buf.WriteByte(',')
			}
			v, err := json.Marshal(row[k])
			if err != nil {
				return nil, err
			}
			buf.Write(encodedKeys[j])
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteString(`],"totalRows":`)
	fmt.Fprintf(&buf, "%d", d.TotalRows)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ContextJSON serializes the whole dataset as the context string sent with
// every question. No truncation or sampling is applied.
func (d CSVData) ContextJSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("serialize context: %w", err)
	}
	return string(b), nil
}

// ParseOptions tunes the ingestion engine.
type ParseOptions struct {
	// InvalidUTF8 selects reject (default) or replace handling.
	InvalidUTF8 UTF8Mode

	// MaxBytes fails the parse once more raw bytes are read. 0 disables the guard.
	MaxBytes int64
}

// Parser turns delimited text into CSVData. It is safe for concurrent use;
// every call builds its own reader stack.
type Parser struct {
	opts ParseOptions
}

// NewParser creates a parser with opts.
func NewParser(opts ParseOptions) *Parser {
	if opts.InvalidUTF8 == "" {
		opts.InvalidUTF8 = UTF8Reject
	}
	return &Parser{opts: opts}
}

var defaultParser = NewParser(ParseOptions{})

// Parse ingests r with default options: invalid UTF-8 rejected, no size guard.
func Parse(r io.Reader) (CSVData, error) {
	return defaultParser.Parse(r)
}

// ParseBytes ingests an in-memory CSV document.
func ParseBytes(b []byte) (CSVData, error) {
	return defaultParser.Parse(bytes.NewReader(b))
}

// ParseFile ingests the file at path.
func ParseFile(path string) (CSVData, error) {
	f, err := os.Open(path)
	if err != nil {
		return CSVData{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return defaultParser.Parse(f)
}

// ParseLimited ingests r but fails once more than maxBytes have been read.
func ParseLimited(r io.Reader, maxBytes int64) (CSVData, error) {
	return NewParser(ParseOptions{MaxBytes: maxBytes}).Parse(r)
}

// Parse reads the header line and every following non-empty line.
//
// Short rows get "" for the missing trailing fields and long rows have their
// excess fields dropped. Structural errors are collected, up to
// MaxParseIssues, and returned together as a *ParseError; no data is
// returned alongside it. An empty input yields empty headers and no rows.
func (p *Parser) Parse(r io.Reader) (CSVData, error) {
	input, _ := WrapForIngest(r, p.opts.InvalidUTF8, p.opts.MaxBytes)

	cr := csv.NewReader(input)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = false

	var (
		headers []string
		rows    = []Row{}
		perr    = &ParseError{}
	)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				if len(perr.Issues) == MaxParseIssues {
					perr.Truncated = true
					break
				}
				// encoding/csv always advances past the bad record, so keep
				// reading to report every problem at once.
				perr.Issues = append(perr.Issues, ParseIssue{
					Line:   csvErr.Line,
					Column: csvErr.Column,
					Err:    csvErr.Err,
				})
				continue
			}

			// Encoding failures, size limits and I/O errors end the stream.
			issue := ParseIssue{Err: err}
			var encErr *EncodingError
			if errors.As(err, &encErr) {
				issue.Line = encErr.Line
			}
			if len(perr.Issues) == MaxParseIssues {
				perr.Truncated = true
				break
			}
			perr.Issues = append(perr.Issues, issue)
			break
		}

		if headers == nil {
			headers = record
			continue
		}
		if len(perr.Issues) > 0 {
			// Already failing; skip building rows nobody will see.
			continue
		}
		rows = append(rows, buildRow(headers, record))
	}

	if len(perr.Issues) > 0 {
		return CSVData{}, perr
	}
	if headers == nil {
		return emptyData(), nil
	}

	return CSVData{
		Headers:   headers,
		Rows:      rows,
		TotalRows: len(rows),
	}, nil
}

// buildRow aligns record positions to header indexes. For a repeated header
// name the later column wins.
func buildRow(headers, record []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i < len(record) {
			row[h] = record[i]
		} else {
			row[h] = ""
		}
	}
	return row
}
