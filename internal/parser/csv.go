package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/reportgest/internal/doctree"
)

// CSVParser renders each data row as "header: value" pairs, batched so a
// passage stays small.
type CSVParser struct{}

const csvBatch = 10

func (p *CSVParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{Title: baseTitle(name)}
	if len(records) == 0 {
		return tree, nil
	}
	headers, rows := records[0], records[1:]

	for i := 0; i < len(rows); i += csvBatch {
		end := min(i+csvBatch, len(rows))
		var lines []string
		for _, row := range rows[i:end] {
			cells := make([]string, 0, len(row))
			for j, cell := range row {
				if j < len(headers) && headers[j] != "" {
					cell = headers[j] + ": " + cell
				}
				cells = append(cells, cell)
			}
			lines = append(lines, strings.Join(cells, "; ")+".")
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title: fmt.Sprintf("Rows %d-%d", i+2, end+1),
			Text:  strings.Join(lines, "\n\n"),
		})
	}
	return tree, nil
}
