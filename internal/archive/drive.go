package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveScope is requested for both credential variants and the consent flow.
// drive.file cannot see folders the app did not create.
const DriveScope = drive.DriveScope

const driveViewURL = "https://drive.google.com/file/d/%s/view"

// Drive uploads files into Google Drive folders.
type Drive struct {
	svc *drive.Service
	log *logrus.Entry
}

// NewDrive builds the Drive client once; the token source refreshes access
// tokens as they expire.
func NewDrive(ctx context.Context, creds Credentials, log *logrus.Entry) (*Drive, error) {
	if creds == nil {
		return nil, ErrNoCredentials
	}
	ts, err := creds.TokenSource(ctx, DriveScope)
	if err != nil {
		return nil, err
	}
	return newDrive(ctx, log, option.WithTokenSource(ts))
}

func newDrive(ctx context.Context, log *logrus.Entry, opts ...option.ClientOption) (*Drive, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Drive{svc: svc, log: log}, nil
}

// Upload creates a new Drive file from the local file at path. The file is
// placed in folderID when set, otherwise in the account's root.
func (d *Drive) Upload(ctx context.Context, path, name, mimeType, folderID string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	meta := &drive.File{Name: name, MimeType: mimeType}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}

	created, err := d.svc.Files.Create(meta).
		Media(f, googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", fmt.Errorf("drive upload failed (status %d): %s", gerr.Code, gerr.Message)
		}
		return "", fmt.Errorf("drive upload failed: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("drive upload returned no file id")
	}

	d.log.WithFields(logrus.Fields{"file_id": created.Id, "name": name, "folder": folderID}).Info("uploaded to drive")
	return created.Id, nil
}

// ViewURL returns the user-facing Drive link for a file id.
func (d *Drive) ViewURL(id string) string {
	return DriveViewURL(id)
}

func DriveViewURL(id string) string {
	return fmt.Sprintf(driveViewURL, id)
}
