package agentloop

import (
	"context"

	"github.com/neo050/Office-Automation-Law-bot/gsuite"
	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

// Result is the JSON payload handed back to the model in a tool message.
type Result struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	FolderID  string `json:"folderId,omitempty"`
	RowNumber int    `json:"rowNumber,omitempty"`
	Exists    *bool  `json:"exists,omitempty"`
	URL       string `json:"url,omitempty"`
}

func failure(reason string) Result { return Result{OK: false, Error: reason} }

// Actions is the side-effect surface the dialogue loop dispatches tool calls
// to. Implemented on Google Workspace in production, faked in tests.
type Actions interface {
	LookupClient(ctx context.Context, id, fullName, phone string) Result
	CreateFolder(ctx context.Context, id, fullName, phone string) Result
	SaveMedia(ctx context.Context, folderID, mediaID, mediaType string) Result
	SaveChatBundle(ctx context.Context, folderID, raw, summary string) Result
	FindByPhone(ctx context.Context, phone string) (fullName string, found bool, err error)
}

// MediaFetcher downloads a WhatsApp media attachment by id.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaID string) (*whatsapp.Media, error)
}

// GoogleActions implements Actions over the Sheets registry and Drive
// archive.
type GoogleActions struct {
	sheets *gsuite.Sheets
	drive  *gsuite.Drive
	media  MediaFetcher
}

// NewGoogleActions wires the production action set.
func NewGoogleActions(sheets *gsuite.Sheets, drive *gsuite.Drive, media MediaFetcher) *GoogleActions {
	return &GoogleActions{sheets: sheets, drive: drive, media: media}
}

// upsert validates the contact fields and writes the registry row. A folder
// id left in the sheet but deleted from Drive is wiped so the caller
// recreates it.
func (a *GoogleActions) upsert(ctx context.Context, id, fullName, phone string) (*gsuite.UpsertResult, Result) {
	if !ValidPhone(phone) {
		logger.Warn("client upsert rejected", "clientId", id, "reason", "missing_phone")
		return nil, failure("missing_phone")
	}
	if !ValidFullName(fullName) {
		logger.Warn("client upsert rejected", "clientId", id, "reason", "missing_fullName")
		return nil, failure("missing_fullName")
	}

	res, err := a.sheets.UpsertClientRow(ctx, gsuite.ClientRow{
		ID:       id,
		FullName: fullName,
		Phone:    phone,
	})
	if err != nil {
		logger.Error("client upsert failed", "clientId", id, "error", err)
		return nil, failure(err.Error())
	}

	if res.DriveFolderID != "" {
		exists, err := a.drive.FolderExists(ctx, res.DriveFolderID)
		if err != nil {
			logger.Error("folder existence check failed", "folderId", res.DriveFolderID, "error", err)
			return nil, failure(err.Error())
		}
		if !exists {
			logger.Warn("stale folder id wiped from registry", "clientId", id, "folderId", res.DriveFolderID)
			if err := a.sheets.UpdateDriveFolderID(ctx, res.RowNumber, ""); err != nil {
				return nil, failure(err.Error())
			}
			res.DriveFolderID = ""
		}
	}
	return res, Result{}
}

func (a *GoogleActions) LookupClient(ctx context.Context, id, fullName, phone string) Result {
	res, fail := a.upsert(ctx, id, fullName, phone)
	if res == nil {
		return fail
	}
	exists := res.Exists
	return Result{
		OK:        true,
		RowNumber: res.RowNumber,
		FolderID:  res.DriveFolderID,
		Exists:    &exists,
	}
}

func (a *GoogleActions) CreateFolder(ctx context.Context, id, fullName, phone string) Result {
	res, fail := a.upsert(ctx, id, fullName, phone)
	if res == nil {
		return fail
	}
	if res.DriveFolderID != "" {
		return Result{OK: true, FolderID: res.DriveFolderID, RowNumber: res.RowNumber}
	}

	folderID, err := a.drive.EnsureFolder(ctx, id, fullName)
	if err != nil {
		logger.Error("folder creation failed", "clientId", id, "error", err)
		return failure(err.Error())
	}
	if err := a.sheets.UpdateDriveFolderID(ctx, res.RowNumber, folderID); err != nil {
		logger.Error("registry folder update failed", "clientId", id, "error", err)
		return failure(err.Error())
	}
	return Result{OK: true, FolderID: folderID, RowNumber: res.RowNumber}
}

func (a *GoogleActions) SaveMedia(ctx context.Context, folderID, mediaID, mediaType string) Result {
	switch mediaType {
	case "image", "audio", "video", "document", "sticker":
	default:
		return failure("bad_media_args")
	}
	if mediaID == "" || folderID == "" {
		return failure("bad_media_args")
	}

	media, err := a.media.FetchMedia(ctx, mediaID)
	if err != nil {
		logger.Error("media fetch failed", "mediaId", mediaID, "error", err)
		return failure(err.Error())
	}
	url, err := a.drive.SaveFile(ctx, folderID, media.Filename, media.MIMEType, media.Data)
	if err != nil {
		logger.Error("media save failed", "mediaId", mediaID, "folderId", folderID, "error", err)
		return failure(err.Error())
	}
	logger.Info("media filed", "mediaId", mediaID, "folderId", folderID, "bytes", len(media.Data))
	return Result{OK: true, URL: url}
}

// FindByPhone looks the registry up by phone number. Used to shortcut the
// name step of contact confirmation for returning clients.
func (a *GoogleActions) FindByPhone(ctx context.Context, phone string) (string, bool, error) {
	row, err := a.sheets.FindClientByPhone(ctx, phone)
	if err != nil {
		return "", false, err
	}
	if row == nil {
		return "", false, nil
	}
	return row.FullName, true, nil
}

func (a *GoogleActions) SaveChatBundle(ctx context.Context, folderID, raw, summary string) Result {
	if folderID == "" {
		return failure("bad_media_args")
	}
	if err := a.drive.UpsertBundle(ctx, folderID, raw, summary); err != nil {
		logger.Error("chat bundle save failed", "folderId", folderID, "error", err)
		return failure(err.Error())
	}
	return Result{OK: true}
}
