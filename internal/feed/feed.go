package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"feedfunnel/internal"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatCSVGz Format = "csv.gz"
	FormatXLSX  Format = "xlsx"
	FormatHTML  Format = "html"
)

// DetectFormat picks a reader from the file name.
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(lower, ".csv.gz"), strings.HasSuffix(lower, ".gz"):
		return FormatCSVGz, nil
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".txt"):
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX, nil
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported feed file: %s", path)
	}
}

// ReadFile parses a feed file into product records. An empty format is
// detected from the file name. encoding applies to csv and csv.gz only.
func ReadFile(format Format, path, encoding string) ([]internal.ProductRecord, error) {
	if format == "" {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var table [][]string
	switch format {
	case FormatCSV:
		table, err = readCSV(f, encoding, false)
	case FormatCSVGz:
		table, err = readCSV(f, encoding, true)
	case FormatXLSX:
		table, err = readXLSX(f)
	case FormatHTML:
		table, err = readHTML(f)
	default:
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s feed %s: %w", format, filepath.Base(path), err)
	}
	return mapRecords(table)
}
