package export

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/model"
)

// Canonical header row. Column order is part of the sheet contract with
// the grading staff.
var sheetHeaders = []string{
	"Timestamp", "FullName", "Email", "NationalID", "Phone", "DOB",
	"QuizScore", "EssayScore", "TotalScore", "EssayContent",
}

// SheetsSink writes result rows to a Google Sheet via a service account.
type SheetsSink struct {
	svc       *sheets.Service
	sheetID   string
	sheetName string
	log       zerolog.Logger
}

// NewSheetsSink builds a Sheets-backed sink from service-account
// credentials.
func NewSheetsSink(ctx context.Context, cfg config.SheetsConfig, log zerolog.Logger) (*SheetsSink, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &SheetsSink{
		svc:       svc,
		sheetID:   cfg.SpreadsheetID,
		sheetName: cfg.SheetName,
		log:       log.With().Str("component", "sheets_sink").Logger(),
	}, nil
}

// UpsertResultRow updates the row matching (email, national ID) in
// place, or appends a new one. The header row is created or repaired
// first when missing or drifted.
func (s *SheetsSink) UpsertResultRow(ctx context.Context, row ResultRow) error {
	rows, err := s.ensureHeaders(ctx)
	if err != nil {
		return err
	}

	values := []interface{}{
		row.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		row.FullName,
		row.Email,
		row.NationalID,
		row.Phone,
		row.DOB,
		row.QuizScore,
		row.EssayScore,
		row.TotalScore,
		row.EssayContent,
	}

	idx := findRowIndex(rows, row.Email, row.NationalID)
	if idx == -1 {
		_, err = s.svc.Spreadsheets.Values.Append(
			s.sheetID,
			fmt.Sprintf("%s!A1", s.sheetName),
			&sheets.ValueRange{Values: [][]interface{}{values}},
		).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append result row: %w", err)
		}
		return nil
	}

	rowNumber := idx + 1 // Sheets ranges are 1-based
	_, err = s.svc.Spreadsheets.Values.Update(
		s.sheetID,
		fmt.Sprintf("%s!A%d:%s%d", s.sheetName, rowNumber, columnLetter(len(sheetHeaders)), rowNumber),
		&sheets.ValueRange{Values: [][]interface{}{values}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update result row: %w", err)
	}
	return nil
}

// ensureHeaders makes sure the target sheet exists with the canonical
// header row, returning the full current contents.
func (s *SheetsSink) ensureHeaders(ctx context.Context) ([][]interface{}, error) {
	meta, err := s.svc.Spreadsheets.Get(s.sheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}

	found := false
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.sheetName {
			found = true
			break
		}
	}
	if !found {
		_, err = s.svc.Spreadsheets.BatchUpdate(s.sheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: s.sheetName},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("add sheet: %w", err)
		}
	}

	res, err := s.svc.Spreadsheets.Values.Get(
		s.sheetID,
		fmt.Sprintf("%s!A1:%s", s.sheetName, columnLetter(len(sheetHeaders))),
	).ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet values: %w", err)
	}

	rows := res.Values
	if headersDrifted(rows) {
		headerRow := make([]interface{}, len(sheetHeaders))
		for i, h := range sheetHeaders {
			headerRow[i] = h
		}
		_, err = s.svc.Spreadsheets.Values.Update(
			s.sheetID,
			fmt.Sprintf("%s!A1:%s1", s.sheetName, columnLetter(len(sheetHeaders))),
			&sheets.ValueRange{Values: [][]interface{}{headerRow}},
		).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("write headers: %w", err)
		}
		return [][]interface{}{headerRow}, nil
	}

	return rows, nil
}

func headersDrifted(rows [][]interface{}) bool {
	if len(rows) == 0 {
		return true
	}
	header := rows[0]
	for i, want := range sheetHeaders {
		if i >= len(header) || cellString(header[i]) != want {
			return true
		}
	}
	return false
}

// findRowIndex returns the 0-based index of the data row matching the
// normalized (email, national ID) key, or -1.
func findRowIndex(rows [][]interface{}, email, nationalID string) int {
	const colEmail, colNationalID = 2, 3

	wantEmail := model.NormalizeEmail(email)
	wantID := model.NormalizeNationalID(nationalID)

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) <= colNationalID {
			continue
		}
		gotEmail := model.NormalizeEmail(cellString(row[colEmail]))
		gotID := model.NormalizeNationalID(cellString(row[colNationalID]))
		if gotEmail != "" && gotID != "" && gotEmail == wantEmail && gotID == wantID {
			return i
		}
	}
	return -1
}

func cellString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// columnLetter converts a 1-based column count to its A1 letter.
func columnLetter(n int) string {
	s := ""
	for n > 0 {
		m := (n - 1) % 26
		s = string(rune('A'+m)) + s
		n = (n - 1) / 26
	}
	return s
}
