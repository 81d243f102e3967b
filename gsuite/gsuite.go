// Package gsuite holds the client registry (Google Sheets) and document
// archive (Google Drive) behind the intake workflow. Both services
// authenticate with the same service-account credentials.
package gsuite

import (
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// NewSheets builds the registry client. credentialsFile may be empty, in
// which case application default credentials apply.
func NewSheets(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*Sheets, error) {
	svc, err := sheets.NewService(ctx, serviceOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("init sheets service: %w", err)
	}
	return &Sheets{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// NewDrive builds the archive client rooted at rootFolderID.
func NewDrive(ctx context.Context, credentialsFile, rootFolderID string) (*Drive, error) {
	svc, err := drive.NewService(ctx, serviceOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("init drive service: %w", err)
	}
	return &Drive{svc: svc, rootFolderID: rootFolderID}, nil
}

func serviceOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}
