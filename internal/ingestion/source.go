package ingestion

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// RawLine is one line of input with its 1-based number.
type RawLine struct {
	Number int
	Text   string
}

// LineSource yields input lines one at a time. Next returns io.EOF after the last line.
type LineSource interface {
	Next() (RawLine, error)
	Close() error
}

// SourceOptions controls how input files are decoded.
type SourceOptions struct {
	// Encoding of text files: "utf-8" (default) or "windows-1251".
	Encoding string
}

// OpenSource opens path as a line source. Files ending in .xlsx are read from
// their first sheet; everything else is treated as delimited text.
func OpenSource(path string, opts SourceOptions) (LineSource, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return openXLSXSource(path)
	}
	return openTextSource(path, opts)
}

type textSource struct {
	file   *os.File
	reader *bufio.Reader
	line   int
}

func openTextSource(path string, opts SourceOptions) (*textSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(opts.Encoding)) {
	case "", "utf-8", "utf8":
		reader = unicode.UTF8BOM.NewDecoder().Reader(file)
	case "windows-1251":
		reader = charmap.Windows1251.NewDecoder().Reader(file)
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported encoding: %s", opts.Encoding)
	}

	return &textSource{file: file, reader: bufio.NewReaderSize(reader, 64<<10)}, nil
}

func (s *textSource) Next() (RawLine, error) {
	text, err := s.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return RawLine{}, fmt.Errorf("failed to read line %d: %w", s.line+1, err)
		}
		if text == "" {
			return RawLine{}, io.EOF
		}
	}

	s.line++
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	return RawLine{Number: s.line, Text: text}, nil
}

func (s *textSource) Close() error {
	return s.file.Close()
}

type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
	line int
}

func openXLSXSource(path string) (*xlsxSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return &xlsxSource{file: f, rows: rows}, nil
}

// Next joins the cells of the next row with the field delimiter. Trailing
// empty cells are not stored by spreadsheets, so short rows are padded.
// Rows missing from the sheet come back from excelize as empty rows, so
// the running count stays equal to the sheet row number.
func (s *xlsxSource) Next() (RawLine, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return RawLine{}, fmt.Errorf("failed to read xlsx row %d: %w", s.line+1, err)
		}
		return RawLine{}, io.EOF
	}

	cells, err := s.rows.Columns()
	if err != nil {
		return RawLine{}, fmt.Errorf("failed to read xlsx row %d: %w", s.line+1, err)
	}
	s.line++

	if len(cells) > 0 && len(cells) < fieldCount {
		padded := make([]string, fieldCount)
		copy(padded, cells)
		cells = padded
	}
	return RawLine{Number: s.line, Text: strings.Join(cells, fieldDelimiter)}, nil
}

func (s *xlsxSource) Close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
