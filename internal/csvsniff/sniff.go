// Package csvsniff builds the confirmation preview shown before a CSV is sent
// for conversion. It is a display transform only: quoted commas, embedded
// newlines and doubled quotes are deliberately not handled, and the raw text,
// not the grid, is what gets forwarded downstream.
package csvsniff

import (
	"path"
	"strings"
)

const DefaultSampleRows = 5

type Grid [][]string

// Sniff splits raw text into rows and cells. It never fails.
func Sniff(raw string) Grid {
	lines := strings.Split(raw, "\n")
	out := make(Grid, 0, len(lines))
	for _, line := range lines {
		parts := strings.Split(line, ",")
		row := make([]string, len(parts))
		for i, cell := range parts {
			row[i] = unquote(strings.TrimSpace(cell))
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}
		out = append(out, row)
	}
	return out
}

func unquote(cell string) string {
	cell = strings.TrimPrefix(cell, `"`)
	return strings.TrimSuffix(cell, `"`)
}

func (g Grid) Len() int { return len(g) }

// Header returns the first row, which downstream consumers treat as column titles.
func (g Grid) Header() []string {
	if len(g) == 0 {
		return nil
	}
	return g[0]
}

// Sample returns up to n body rows following the header.
func (g Grid) Sample(n int) [][]string {
	if len(g) <= 1 || n <= 0 {
		return [][]string{}
	}
	end := 1 + n
	if end > len(g) {
		end = len(g)
	}
	return g[1:end]
}

// IsCSV mirrors the upload detection: a text/csv mime type or a .csv file name.
func IsCSV(mimeType, fileName string) bool {
	if strings.EqualFold(strings.TrimSpace(mimeType), "text/csv") {
		return true
	}
	return strings.EqualFold(path.Ext(fileName), ".csv")
}
