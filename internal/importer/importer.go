// Package importer loads leads from CSV and XLSX files into the store.
// Header names are matched loosely so exports from Apollo, LinkedIn, and
// hand-built sheets all work without reshaping.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/store"
)

// headerMap folds common column-name variations onto canonical field keys.
var headerMap = map[string]string{
	"company":           "company_name",
	"company name":      "company_name",
	"company_name":      "company_name",
	"name":              "contact_name",
	"contact name":      "contact_name",
	"contact_name":      "contact_name",
	"email":             "contact_email",
	"contact email":     "contact_email",
	"contact_email":     "contact_email",
	"website":           "website",
	"url":               "website",
	"title":             "contact_title",
	"job title":         "contact_title",
	"contact_title":     "contact_title",
	"phone":             "contact_phone",
	"contact_phone":     "contact_phone",
	"state":             "state",
	"location":          "state",
	"subbies":           "estimated_subbies",
	"subcontractors":    "estimated_subbies",
	"estimated_subbies": "estimated_subbies",
}

// Row is one parsed lead candidate.
type Row struct {
	CompanyName      string
	ContactName      string
	ContactEmail     string
	Website          string
	ContactTitle     string
	ContactPhone     string
	State            string
	EstimatedSubbies int
}

// Summary reports what an import did.
type Summary struct {
	Total      int      `json:"total"`
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// Importer writes parsed rows into the store.
type Importer struct {
	store store.Store
	now   func() time.Time
	title cases.Caser
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

func New(s store.Store, opts ...Option) *Importer {
	i := &Importer{
		store: s,
		now:   time.Now,
		title: cases.Title(language.English, cases.NoLower),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportFile dispatches on the file extension.
func (i *Importer) ImportFile(ctx context.Context, path string) (*Summary, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "importer: open csv")
		}
		defer f.Close()
		return i.ImportCSV(ctx, f)
	case ".xlsx":
		return i.ImportXLSX(ctx, path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

// ImportCSV parses comma-separated leads. The first record is the header.
func (i *Importer) ImportCSV(ctx context.Context, r io.Reader) (*Summary, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv header")
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: read csv record")
		}
		records = append(records, record)
	}
	return i.createAll(ctx, parseRows(header, records))
}

// ImportXLSX parses the first sheet of an XLSX workbook. The first row is
// the header.
func (i *Importer) ImportXLSX(ctx context.Context, path string) (*Summary, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("importer: sheet has no data rows")
	}

	header := rowToStrings(sheet.Rows[0])
	var records [][]string
	for _, row := range sheet.Rows[1:] {
		records = append(records, rowToStrings(row))
	}
	return i.createAll(ctx, parseRows(header, records))
}

func rowToStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}

// parseRows maps records onto Rows via the header, dropping records missing
// any of the three required fields.
func parseRows(header []string, records [][]string) []Row {
	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = headerMap[strings.ToLower(strings.TrimSpace(h))]
	}

	var rows []Row
	for _, record := range records {
		var row Row
		for i, value := range record {
			if i >= len(fields) {
				break
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			switch fields[i] {
			case "company_name":
				row.CompanyName = value
			case "contact_name":
				row.ContactName = value
			case "contact_email":
				row.ContactEmail = value
			case "website":
				row.Website = value
			case "contact_title":
				row.ContactTitle = value
			case "contact_phone":
				row.ContactPhone = value
			case "state":
				row.State = value
			case "estimated_subbies":
				if n, err := strconv.Atoi(value); err == nil {
					row.EstimatedSubbies = n
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// createAll writes rows into the store. Duplicate emails and incomplete rows
// are counted, not fatal.
func (i *Importer) createAll(ctx context.Context, rows []Row) (*Summary, error) {
	summary := &Summary{Total: len(rows)}
	for _, row := range rows {
		if row.CompanyName == "" || row.ContactName == "" || row.ContactEmail == "" {
			summary.Skipped++
			continue
		}
		lead := model.Lead{
			CompanyName:      row.CompanyName,
			ContactName:      i.title.String(row.ContactName),
			ContactEmail:     model.NormalizeEmail(row.ContactEmail),
			Website:          row.Website,
			ContactTitle:     row.ContactTitle,
			ContactPhone:     row.ContactPhone,
			State:            strings.ToUpper(row.State),
			Source:           model.SourceCSVImport,
			Status:           model.StatusNew,
			Tier:             model.TierForSubbies(row.EstimatedSubbies),
			EstimatedSubbies: row.EstimatedSubbies,
		}
		_, err := i.store.CreateLead(ctx, lead)
		switch {
		case eris.Is(err, store.ErrDuplicateEmail):
			summary.Duplicates++
		case err != nil:
			summary.Errors = append(summary.Errors,
				row.ContactEmail+": "+err.Error())
		default:
			summary.Created++
		}
	}

	if summary.Created > 0 {
		date := i.now().Format("2006-01-02")
		if err := i.store.EnsureDailyMetrics(ctx, date); err == nil {
			if err := i.store.IncrementMetric(ctx, date, model.MetricLeadsImported, summary.Created); err != nil {
				zap.L().Warn("importer: metric increment failed", zap.Error(err))
			}
		}
	}

	zap.L().Info("import complete",
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}
