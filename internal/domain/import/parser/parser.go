// Package parser turns raw bank-statement CSV bytes into normalized
// transaction candidates. It is tolerant of the header naming and amount
// formatting quirks of real bank exports: rows are parsed independently and a
// bad row becomes an error entry instead of aborting the file.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Row-level parse failures. Each is recoverable: the ingestor reports the row
// and keeps going.
var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDate          = errors.New("invalid date")
)

// Column aliases, checked in order. Header names are normalized (lower-cased,
// whitespace collapsed to underscores) before matching.
var (
	dateAliases      = []string{"date", "transaction_date", "trans_date", "posting_date", "post_date"}
	descAliases      = []string{"description", "desc", "memo", "transaction_description", "payee", "name"}
	amountAliases    = []string{"amount", "transaction_amount", "trans_amount"}
	debitAliases     = []string{"debit", "withdrawal", "withdrawals", "debit_amount"}
	creditAliases    = []string{"credit", "deposit", "deposits", "credit_amount"}
	referenceAliases = []string{"reference", "ref", "check_number", "check_num", "transaction_id", "trans_id"}
)

// dateFormats are tried in order; US month-first layouts before day-first,
// matching how the bank exports we ingest are written.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Candidate is a parsed, not-yet-persisted bank transaction. Negative amounts
// are outflows, positive amounts inflows.
type Candidate struct {
	Line        int // 1-based source line, header is line 1
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Reference   string
	Raw         map[string]string // normalized header -> raw field, for error reporting
}

// DateString renders the candidate date in canonical YYYY-MM-DD form.
func (c Candidate) DateString() string {
	return c.Date.Format("2006-01-02")
}

// RowError reports a single unparseable row.
type RowError struct {
	Line int
	Err  error
	Raw  map[string]string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Result is the outcome of ingesting one file.
type Result struct {
	Candidates []Candidate
	Errors     []RowError
	Filename   string
}

// ParseCSV decodes and parses a whole statement file. Row failures are
// collected in Result.Errors; only a structurally unreadable file (no header
// row) fails the call.
func ParseCSV(data []byte, filename string) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(normalizeBytes(data)))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = normalizeHeader(h)
	}

	result := &Result{Filename: filename}
	line := 1 // header
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: line, Err: err})
			continue
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		candidate, err := ParseRow(row, line)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: line, Err: err, Raw: row})
			continue
		}
		result.Candidates = append(result.Candidates, *candidate)
	}

	return result, nil
}

// ParseRow converts one record, keyed by normalized header name, into a
// candidate.
func ParseRow(row map[string]string, line int) (*Candidate, error) {
	dateStr := firstField(row, dateAliases)
	description := strings.TrimSpace(firstField(row, descAliases))
	if dateStr == "" || description == "" {
		return nil, fmt.Errorf("%w: date or description", ErrMissingRequiredField)
	}

	date, err := parseDate(dateStr)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if amountStr := firstField(row, amountAliases); amountStr != "" {
		amount, err = parseAmount(amountStr)
		if err != nil {
			return nil, err
		}
	} else if debitStr := firstField(row, debitAliases); debitStr != "" {
		// Sign comes from the column role, not the field text.
		amount, err = parseAmount(debitStr)
		if err != nil {
			return nil, err
		}
		amount = amount.Abs().Neg()
	} else if creditStr := firstField(row, creditAliases); creditStr != "" {
		amount, err = parseAmount(creditStr)
		if err != nil {
			return nil, err
		}
		amount = amount.Abs()
	}

	return &Candidate{
		Line:        line,
		Date:        date,
		Description: description,
		Amount:      amount,
		Reference:   strings.TrimSpace(firstField(row, referenceAliases)),
		Raw:         row,
	}, nil
}

// firstField returns the first non-empty value among the aliased columns.
func firstField(row map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if v, ok := row[alias]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// normalizeHeader lower-cases a header and collapses whitespace runs to a
// single underscore, so "Trans Date" matches the "trans_date" alias.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return whitespaceRun.ReplaceAllString(h, "_")
}

// parseAmount handles $1,234.56, (1234.56) and -1234.56 style values.
func parseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)

	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = s[1 : len(s)-1]
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// parseDate tries each known layout in order.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// normalizeBytes strips a UTF-8 BOM and converts non-UTF-8 input (typically
// Latin-1 bank exports) to valid UTF-8 before the CSV reader sees it.
func normalizeBytes(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}
