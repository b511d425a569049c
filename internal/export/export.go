// Package export writes discovery results as CSV, JSON or XLSX and renders
// them as a console table.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/company-finder/internal/model"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Columns is the fixed column order of tabular output.
var Columns = []string{"name", "address", "phone", "email", "website", "source_url", "industry_score"}

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unsupported file type %q (use .csv, .xlsx or .json)", filepath.Ext(path))
	}
}

// Save writes records to path in the format implied by its extension.
func Save(path string, records []model.MergedRecord) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if format == FormatXLSX {
		return WriteXLSX(path, records)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch format {
	case FormatCSV:
		err = WriteCSV(f, records)
	case FormatJSON:
		err = WriteJSON(f, records)
	}
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// Row returns the record's values in Columns order.
func Row(r model.MergedRecord) []string {
	return []string{
		r.Name,
		model.Deref(r.Address),
		model.Deref(r.Phone),
		model.Deref(r.Email),
		r.Website,
		r.SourceURL,
		strconv.FormatFloat(r.IndustryScore, 'f', -1, 64),
	}
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []model.MergedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// jsonRecord keeps absent optional fields as explicit nulls.
type jsonRecord struct {
	Name          string   `json:"name"`
	Address       *string  `json:"address"`
	Phone         *string  `json:"phone"`
	Email         *string  `json:"email"`
	Website       string   `json:"website"`
	SourceURL     string   `json:"source_url"`
	IndustryScore float64  `json:"industry_score"`
	Sources       []string `json:"sources,omitempty"`
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []model.MergedRecord) error {
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = jsonRecord{
			Name:          r.Name,
			Address:       r.Address,
			Phone:         r.Phone,
			Email:         r.Email,
			Website:       r.Website,
			SourceURL:     r.SourceURL,
			IndustryScore: r.IndustryScore,
			Sources:       r.Sources,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return eris.Wrap(enc.Encode(out), "export: encode json")
}

// WriteXLSX saves records to a single-sheet workbook at path.
func WriteXLSX(path string, records []model.MergedRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("results")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range records {
		row := sheet.AddRow()
		vals := Row(r)
		for _, v := range vals[:len(vals)-1] {
			row.AddCell().SetString(v)
		}
		row.AddCell().SetFloat(r.IndustryScore)
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// PrintTable renders the contact columns of records to w.
func PrintTable(w io.Writer, records []model.MergedRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Company Finder Results")
	t.AppendHeader(table.Row{"name", "address", "phone", "email", "website"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Name,
			model.Deref(r.Address),
			model.Deref(r.Phone),
			model.Deref(r.Email),
			r.Website,
		})
	}
	t.Render()
}
