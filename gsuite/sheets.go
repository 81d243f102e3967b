package gsuite

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"
)

// Registry column headers. The sheet may order them freely; lookup is by
// header name, not position.
const (
	colID       = "ID"
	colFullName = "FullName"
	colPhone    = "Phone"
	colFolderID = "DriveFolderId"
)

// ClientRow is one registry entry. RowNumber is 1-based and includes the
// header row, matching how the sheet UI numbers rows.
type ClientRow struct {
	RowNumber     int
	ID            string
	FullName      string
	Phone         string
	DriveFolderID string
}

// Sheets reads and writes the client registry spreadsheet.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

func (s *Sheets) readAll(ctx context.Context) ([][]any, map[string]int, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("read registry: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil, fmt.Errorf("registry sheet %q has no header row", s.sheetName)
	}
	headers := make(map[string]int, len(resp.Values[0]))
	for i, h := range resp.Values[0] {
		headers[strings.TrimSpace(fmt.Sprint(h))] = i
	}
	for _, required := range []string{colID, colFullName, colPhone, colFolderID} {
		if _, ok := headers[required]; !ok {
			return nil, nil, fmt.Errorf("registry sheet missing column %q", required)
		}
	}
	return resp.Values, headers, nil
}

func cellString(row []any, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

// NormalizePhone strips formatting so "+972-50 000 0001" and "972500000001"
// compare equal. A leading 0 is replaced with the default country code to
// match WhatsApp's international form.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = "972" + digits[1:]
	}
	return digits
}

// FindClientByPhone returns the registry row whose phone matches, nil when
// absent.
func (s *Sheets) FindClientByPhone(ctx context.Context, phone string) (*ClientRow, error) {
	values, headers, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	want := NormalizePhone(phone)
	for i := 1; i < len(values); i++ {
		row := values[i]
		if NormalizePhone(cellString(row, headers[colPhone])) != want {
			continue
		}
		return &ClientRow{
			RowNumber:     i + 1,
			ID:            cellString(row, headers[colID]),
			FullName:      cellString(row, headers[colFullName]),
			Phone:         cellString(row, headers[colPhone]),
			DriveFolderID: cellString(row, headers[colFolderID]),
		}, nil
	}
	return nil, nil
}

// UpsertResult reports the outcome of a registry upsert.
type UpsertResult struct {
	RowNumber     int
	DriveFolderID string
	Exists        bool
}

// UpsertClientRow writes the client into the registry. An existing row
// (matched by ID, then by phone) has blank cells filled in; a folder id that
// no longer matches the given one is overwritten.
func (s *Sheets) UpsertClientRow(ctx context.Context, client ClientRow) (*UpsertResult, error) {
	values, headers, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}

	rowIdx := -1
	for i := 1; i < len(values); i++ {
		row := values[i]
		if client.ID != "" && cellString(row, headers[colID]) == client.ID {
			rowIdx = i
			break
		}
		if rowIdx == -1 && client.Phone != "" &&
			NormalizePhone(cellString(row, headers[colPhone])) == NormalizePhone(client.Phone) {
			rowIdx = i
		}
	}

	if rowIdx == -1 {
		width := len(values[0])
		row := make([]any, width)
		for i := range row {
			row[i] = ""
		}
		row[headers[colID]] = client.ID
		row[headers[colFullName]] = client.FullName
		row[headers[colPhone]] = client.Phone
		row[headers[colFolderID]] = client.DriveFolderID
		_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName,
			&sheets.ValueRange{Values: [][]any{row}}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("append registry row: %w", err)
		}
		return &UpsertResult{
			RowNumber:     len(values) + 1,
			DriveFolderID: client.DriveFolderID,
			Exists:        false,
		}, nil
	}

	existing := values[rowIdx]
	updates := map[int]string{}
	fill := func(col, val string) {
		if val != "" && cellString(existing, headers[col]) == "" {
			updates[headers[col]] = val
		}
	}
	fill(colID, client.ID)
	fill(colFullName, client.FullName)
	fill(colPhone, client.Phone)
	if client.DriveFolderID != "" &&
		cellString(existing, headers[colFolderID]) != client.DriveFolderID {
		updates[headers[colFolderID]] = client.DriveFolderID
	}

	rowNumber := rowIdx + 1
	for col, val := range updates {
		if err := s.updateCell(ctx, rowNumber, col, val); err != nil {
			return nil, err
		}
	}
	folderID := cellString(existing, headers[colFolderID])
	if v, ok := updates[headers[colFolderID]]; ok {
		folderID = v
	}
	return &UpsertResult{
		RowNumber:     rowNumber,
		DriveFolderID: folderID,
		Exists:        true,
	}, nil
}

// UpdateDriveFolderID rewrites the folder cell of an existing row.
func (s *Sheets) UpdateDriveFolderID(ctx context.Context, rowNumber int, folderID string) error {
	_, headers, err := s.readAll(ctx)
	if err != nil {
		return err
	}
	return s.updateCell(ctx, rowNumber, headers[colFolderID], folderID)
}

func (s *Sheets) updateCell(ctx context.Context, rowNumber, colIdx int, value string) error {
	rng := fmt.Sprintf("%s!%s%d", s.sheetName, columnLetter(colIdx), rowNumber)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng,
		&sheets.ValueRange{Values: [][]any{{value}}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update registry cell %s: %w", rng, err)
	}
	return nil
}

// columnLetter converts a zero-based column index to A1 notation.
func columnLetter(idx int) string {
	s := ""
	for idx >= 0 {
		s = string(rune('A'+idx%26)) + s
		idx = idx/26 - 1
	}
	return s
}
