package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dataghost/internal/answer"
	"github.com/JonMunkholm/dataghost/internal/core"
)

// Summarize describes parsed data in the shape returned by POST /upload.
func Summarize(data core.CSVData) answer.DataSummary {
	headers := data.Headers
	if headers == nil {
		headers = []string{}
	}
	return answer.DataSummary{
		TotalRows:    data.TotalRows,
		TotalColumns: len(headers),
		Headers:      headers,
		Summary:      SummaryText(data),
	}
}

// SummaryText states the row and column counts, the column names and, when
// any cell is blank, the share of cells holding data.
func SummaryText(data core.CSVData) string {
	parts := []string{
		fmt.Sprintf("This dataset contains %s rows and %d columns.", groupThousands(data.TotalRows), len(data.Headers)),
		fmt.Sprintf("The columns are: %s.", strings.Join(data.Headers, ", ")),
	}

	total := len(data.Rows) * len(data.Headers)
	empty := 0
	for _, row := range data.Rows {
		for _, h := range data.Headers {
			if strings.TrimSpace(row[h]) == "" {
				empty++
			}
		}
	}
	if empty > 0 {
		filled := 100 - float64(empty)/float64(total)*100
		parts = append(parts, fmt.Sprintf("Data completeness: %.1f%% of cells contain data.", filled))
	}

	return strings.Join(parts, " ")
}

// groupThousands formats n with comma separators.
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
