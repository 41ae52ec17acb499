// Package sheets keeps event rosters in Google Sheets. Every event owns one
// spreadsheet; enrollment appends a row, unenrollment removes the matching
// one. The enrollment ledger calls these inside an open database
// transaction so the sheet and the enrollment set move together.
package sheets

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Roster is the external roster capability consumed by the enrollment
// ledger and event administration. Implemented by Client in production and
// by fakes in tests.
type Roster interface {
	CreateSheet(ctx context.Context, title string) (string, error)
	AppendRow(ctx context.Context, sheetID string, row []interface{}) error
	RemoveRow(ctx context.Context, sheetID string, keyColumn int, key string) error
}

// rosterRange bounds reads when searching for a row to delete.
const rosterRange = "Sheet1!A1:Z1000"

// Client talks to the Sheets and Drive APIs with a service account.
type Client struct {
	sheets *gsheets.Service
	drive  *drive.Service
}

// New builds a Client from service account credentials JSON.
func New(ctx context.Context, credsJSON string) (*Client, error) {
	scopes := []option.ClientOption{
		option.WithCredentialsJSON([]byte(credsJSON)),
		option.WithScopes(gsheets.SpreadsheetsScope, drive.DriveScope),
	}
	ss, err := gsheets.NewService(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	ds, err := drive.NewService(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Client{sheets: ss, drive: ds}, nil
}

// CreateSheet provisions a new spreadsheet with the given title, makes it
// world readable and returns its id.
func (c *Client) CreateSheet(ctx context.Context, title string) (string, error) {
	ss, err := c.sheets.Spreadsheets.Create(&gsheets.Spreadsheet{
		Properties: &gsheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}
	_, err = c.drive.Permissions.Create(ss.SpreadsheetId, &drive.Permission{
		Role: "reader",
		Type: "anyone",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("share spreadsheet: %w", err)
	}
	return ss.SpreadsheetId, nil
}

// AppendRow appends one row of values at the bottom of the sheet.
func (c *Client) AppendRow(ctx context.Context, sheetID string, row []interface{}) error {
	_, err := c.sheets.Spreadsheets.Values.Append(sheetID, "Sheet1!A1", &gsheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

// RemoveRow deletes the first data row whose keyColumn cell equals key.
// The header row (index 0) is never considered. Removing a key that is not
// present is a no-op, mirroring the set semantics of unenrollment.
func (c *Client) RemoveRow(ctx context.Context, sheetID string, keyColumn int, key string) error {
	resp, err := c.sheets.Spreadsheets.Values.Get(sheetID, rosterRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	rowIndex := -1
	for i, row := range resp.Values {
		if i == 0 || keyColumn >= len(row) {
			continue
		}
		if s, ok := row[keyColumn].(string); ok && s == key {
			rowIndex = i
			break
		}
	}
	if rowIndex <= 0 {
		return nil
	}
	meta, err := c.sheets.Spreadsheets.Get(sheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet meta: %w", err)
	}
	var gridID int64 = -1
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == "Sheet1" {
			gridID = s.Properties.SheetId
			break
		}
	}
	if gridID < 0 {
		return errors.New("Sheet1 not found")
	}
	_, err = c.sheets.Spreadsheets.BatchUpdate(sheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:    gridID,
					Dimension:  "ROWS",
					StartIndex: int64(rowIndex),
					EndIndex:   int64(rowIndex + 1),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	return nil
}
