package core

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func TestParse_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantHeaders []string
		wantRows    []Row
	}{
		{
			name:        "two data rows",
			input:       "a,b\n1,2\n3,4\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    []Row{{"a": "1", "b": "2"}, {"a": "3", "b": "4"}},
		},
		{
			name:        "header only",
			input:       "a,b\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    []Row{},
		},
		{
			name:        "empty input",
			input:       "",
			wantHeaders: []string{},
			wantRows:    []Row{},
		},
		{
			name:        "blank lines skipped",
			input:       "a,b\n\n1,2\n\n\n3,4\n\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    []Row{{"a": "1", "b": "2"}, {"a": "3", "b": "4"}},
		},
		{
			name:        "crlf line endings",
			input:       "a,b\r\n1,2\r\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    []Row{{"a": "1", "b": "2"}},
		},
		{
			name:        "no trailing newline",
			input:       "a,b\n1,2",
			wantHeaders: []string{"a", "b"},
			wantRows:    []Row{{"a": "1", "b": "2"}},
		},
		{
			name:        "short row padded",
			input:       "a,b,c\n1\n",
			wantHeaders: []string{"a", "b", "c"},
			wantRows:    []Row{{"a": "1", "b": "", "c": ""}},
		},
		{
			name:        "long row truncated",
			input:       "a,b\n1,2,3,4\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    []Row{{"a": "1", "b": "2"}},
		},
		{
			name:        "quoted fields",
			input:       "name,quote\n\"Smith, J\",\"said \"\"hi\"\"\nthen left\"\n",
			wantHeaders: []string{"name", "quote"},
			wantRows:    []Row{{"name": "Smith, J", "quote": "said \"hi\"\nthen left"}},
		},
		{
			name:        "duplicate header later wins",
			input:       "id,id\n1,2\n",
			wantHeaders: []string{"id", "id"},
			wantRows:    []Row{{"id": "2"}},
		},
		{
			name:        "bom stripped from first header",
			input:       "\xEF\xBB\xBFcity,pop\nOslo,700000\n",
			wantHeaders: []string{"city", "pop"},
			wantRows:    []Row{{"city": "Oslo", "pop": "700000"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(data.Headers, tt.wantHeaders) {
				t.Errorf("Headers = %q, want %q", data.Headers, tt.wantHeaders)
			}
			if !reflect.DeepEqual(data.Rows, tt.wantRows) {
				t.Errorf("Rows = %v, want %v", data.Rows, tt.wantRows)
			}
			if data.TotalRows != len(tt.wantRows) {
				t.Errorf("TotalRows = %d, want %d", data.TotalRows, len(tt.wantRows))
			}
			if data.Rows == nil {
				t.Error("Rows must be non-nil")
			}
		})
	}
}

func TestParse_RoundTripCounts(t *testing.T) {
	for cols := 1; cols <= 6; cols++ {
		for rows := 0; rows <= 12; rows += 3 {
			t.Run(fmt.Sprintf("%dx%d", cols, rows), func(t *testing.T) {
				var b strings.Builder
				for c := 0; c < cols; c++ {
					if c > 0 {
						b.WriteByte(',')
					}
					fmt.Fprintf(&b, "h%d", c)
				}
				b.WriteByte('\n')
				for r := 0; r < rows; r++ {
					for c := 0; c < cols; c++ {
						if c > 0 {
							b.WriteByte(',')
						}
						fmt.Fprintf(&b, "v%d_%d", r, c)
					}
					b.WriteByte('\n')
				}

				data, err := ParseBytes([]byte(b.String()))
				if err != nil {
					t.Fatalf("ParseBytes() error = %v", err)
				}
				if len(data.Headers) != cols {
					t.Errorf("len(Headers) = %d, want %d", len(data.Headers), cols)
				}
				if data.TotalRows != rows {
					t.Errorf("TotalRows = %d, want %d", data.TotalRows, rows)
				}
			})
		}
	}
}

func TestParse_MalformedQuoting(t *testing.T) {
	input := "a,b\n1,\"unterminated\n2,3\n"

	data, err := Parse(strings.NewReader(input))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if len(perr.Issues) == 0 {
		t.Fatal("ParseError has no issues")
	}
	if !strings.HasPrefix(err.Error(), "invalid csv: line") {
		t.Errorf("Error() = %q, want line diagnostics", err.Error())
	}
	if data.Headers != nil || data.Rows != nil || data.TotalRows != 0 {
		t.Errorf("partial data returned alongside error: %+v", data)
	}
}

func TestParse_CollectsEveryIssue(t *testing.T) {
	input := "a,b\nx\"y,1\nok,2\np\"q,3\n"

	_, err := Parse(strings.NewReader(input))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if len(perr.Issues) != 2 {
		t.Fatalf("len(Issues) = %d, want 2: %v", len(perr.Issues), err)
	}
	if perr.Issues[0].Line != 2 || perr.Issues[1].Line != 4 {
		t.Errorf("issue lines = %d, %d, want 2, 4", perr.Issues[0].Line, perr.Issues[1].Line)
	}
	if !errors.Is(err, csv.ErrBareQuote) {
		t.Errorf("errors.Is should reach the encoding/csv cause: %v", err)
	}
}

func TestParse_IssueCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("a\n")
	for i := 0; i < MaxParseIssues+10; i++ {
		b.WriteString("x\"y\n")
	}

	_, err := Parse(strings.NewReader(b.String()))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if len(perr.Issues) != MaxParseIssues {
		t.Errorf("len(Issues) = %d, want %d", len(perr.Issues), MaxParseIssues)
	}
	if !perr.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	input := "name\nok\nbad\xff\n"

	t.Run("reject by default", func(t *testing.T) {
		_, err := Parse(strings.NewReader(input))
		var encErr *EncodingError
		if !errors.As(err, &encErr) {
			t.Fatalf("Parse() error = %v, want *EncodingError inside ParseError", err)
		}
		if encErr.Line != 3 {
			t.Errorf("Line = %d, want 3", encErr.Line)
		}
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("error should be a *ParseError: %T", err)
		}
	})

	t.Run("replace", func(t *testing.T) {
		p := NewParser(ParseOptions{InvalidUTF8: UTF8Replace})
		data, err := p.Parse(strings.NewReader(input))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if got := data.Rows[1]["name"]; got != "bad?" {
			t.Errorf("Rows[1][name] = %q, want %q", got, "bad?")
		}
	})
}

func TestParse_OneByteReads(t *testing.T) {
	input := "city,note\nZürich,\"a, b\"\n東京,ok\n"
	data, err := Parse(iotest.OneByteReader(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if data.TotalRows != 2 || data.Rows[1]["city"] != "東京" || data.Rows[0]["note"] != "a, b" {
		t.Errorf("unexpected data: %+v", data)
	}
}

func TestParse_ReaderError(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := Parse(iotest.ErrReader(boom))
	if !errors.Is(err, boom) {
		t.Fatalf("Parse() error = %v, want wrapped %v", err, boom)
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("error should be a *ParseError: %T", err)
	}
}

func TestParseLimited(t *testing.T) {
	input := "a,b\n" + strings.Repeat("1,2\n", 100)

	if _, err := ParseLimited(strings.NewReader(input), int64(len(input))); err != nil {
		t.Fatalf("ParseLimited() at exact size error = %v", err)
	}

	_, err := ParseLimited(strings.NewReader(input), 64)
	if !errors.Is(err, ErrInputTooLarge) {
		t.Fatalf("ParseLimited() error = %v, want ErrInputTooLarge", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(path, []byte("name,age\nAda,36\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if data.TotalRows != 1 || data.Rows[0]["name"] != "Ada" {
		t.Errorf("unexpected data: %+v", data)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ParseFile(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestCSVData_MarshalJSON(t *testing.T) {
	data, err := ParseBytes([]byte("b,a\n2,1\n"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := data.ContextJSON()
	if err != nil {
		t.Fatalf("ContextJSON() error = %v", err)
	}
	want := `{"headers":["b","a"],"rows":[{"b":"2","a":"1"}],"totalRows":1}`
	if got != want {
		t.Errorf("ContextJSON() = %s, want %s", got, want)
	}

	var back CSVData
	if err := json.Unmarshal([]byte(got), &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(back, data) {
		t.Errorf("decoded = %+v, want %+v", back, data)
	}
}

func TestCSVData_MarshalJSON_Empty(t *testing.T) {
	got, err := json.Marshal(CSVData{})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"headers":[],"rows":[],"totalRows":0}`
	if string(got) != want {
		t.Errorf("Marshal(zero) = %s, want %s", got, want)
	}
}
