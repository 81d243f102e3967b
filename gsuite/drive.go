package gsuite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	folderMIME      = "application/vnd.google-apps.folder"
	transcriptName  = "chat.txt"
	summaryName     = "summary.txt"
	bundleSeparator = "### "
)

// Drive manages per-client document folders under a fixed root.
type Drive struct {
	svc          *drive.Service
	rootFolderID string
}

// FolderName composes the canonical folder name for a client. Whitespace in
// the name is dropped so the id_name form stays a single token.
func FolderName(clientID, fullName string) string {
	return clientID + "_" + strings.Join(strings.Fields(fullName), "")
}

// EnsureFolder returns the id of the client's folder, creating it under the
// root when absent.
func (d *Drive) EnsureFolder(ctx context.Context, clientID, fullName string) (string, error) {
	name := FolderName(clientID, fullName)
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), d.rootFolderID, folderMIME)
	list, err := d.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("find folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	created, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMIME,
		Parents:  []string{d.rootFolderID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return created.Id, nil
}

// FolderExists reports whether the folder is still present and not trashed.
func (d *Drive) FolderExists(ctx context.Context, folderID string) (bool, error) {
	f, err := d.svc.Files.Get(folderID).Fields("id, trashed").Context(ctx).Do()
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check folder %s: %w", folderID, err)
	}
	return !f.Trashed, nil
}

// FolderLink returns the shareable web link for the folder. exists=false
// when the folder is gone.
func (d *Drive) FolderLink(ctx context.Context, folderID string) (string, bool, error) {
	f, err := d.svc.Files.Get(folderID).Fields("id, trashed, webViewLink").Context(ctx).Do()
	if isNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve folder link %s: %w", folderID, err)
	}
	if f.Trashed {
		return "", false, nil
	}
	return f.WebViewLink, true, nil
}

// SaveFile uploads data into the folder and returns the file's web link.
func (d *Drive) SaveFile(ctx context.Context, folderID, filename, mimeType string, data []byte) (string, error) {
	created, err := d.svc.Files.Create(&drive.File{
		Name:    filename,
		Parents: []string{folderID},
	}).Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id, webViewLink").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("save file %q: %w", filename, err)
	}
	return created.WebViewLink, nil
}

// UpsertBundle appends the transcript and summary to the folder's archive
// files, creating them on first use. Each revision is prefixed with a
// timestamp header so successive archives stay readable.
func (d *Drive) UpsertBundle(ctx context.Context, folderID, transcript, summary string) error {
	stamp := time.Now().Format("2006-01-02 15:04")
	if err := d.appendOrCreate(ctx, folderID, transcriptName, stamp, transcript); err != nil {
		return err
	}
	return d.appendOrCreate(ctx, folderID, summaryName, stamp, summary)
}

func (d *Drive) appendOrCreate(ctx context.Context, folderID, filename, stamp, content string) error {
	section := bundleSeparator + stamp + "\n" + strings.TrimRight(content, "\n") + "\n\n"

	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(filename), folderID)
	list, err := d.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("find bundle file %q: %w", filename, err)
	}

	if len(list.Files) == 0 {
		_, err := d.svc.Files.Create(&drive.File{
			Name:    filename,
			Parents: []string{folderID},
		}).Media(strings.NewReader(section), googleapi.ContentType("text/plain")).
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("create bundle file %q: %w", filename, err)
		}
		return nil
	}

	fileID := list.Files[0].Id
	resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("download bundle file %q: %w", filename, err)
	}
	existing, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read bundle file %q: %w", filename, err)
	}

	updated := string(existing) + section
	_, err = d.svc.Files.Update(fileID, &drive.File{}).
		Media(strings.NewReader(updated), googleapi.ContentType("text/plain")).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update bundle file %q: %w", filename, err)
	}
	return nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
