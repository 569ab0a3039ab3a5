package imagehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/googleauth"
)

// GDriveConfig configures the Google Drive backend.
type GDriveConfig struct {
	CredentialsFile string
	FolderID        string
}

// driveAPI is the part of the Drive service used here.
type driveAPI interface {
	create(ctx context.Context, name, folderID, mimeType string, body io.Reader) (string, error)
	shareWithAnyone(ctx context.Context, fileID string) error
	remove(ctx context.Context, fileID string) error
}

const cleanupTimeout = 15 * time.Second

type gdriveBackend struct {
	folderID string
	api      driveAPI
}

func newGDriveBackend(ctx context.Context, cfg GDriveConfig) (backend, error) {
	if strings.TrimSpace(cfg.FolderID) == "" {
		return nil, errors.New("gdrive image host requires a folder id")
	}
	opts, err := googleauth.ServiceAccount(cfg.CredentialsFile, drive.DriveFileScope)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &gdriveBackend{folderID: cfg.FolderID, api: &driveService{svc: svc}}, nil
}

func (b *gdriveBackend) kind() string { return TypeGDrive }

// put uploads into the folder, grants anyone-with-link read access and
// returns the thumbnail URL, which renders inline on blogs and cards. A file
// that cannot be shared is deleted so a retried put leaves no orphan.
func (b *gdriveBackend) put(ctx context.Context, name string, asset domain.ImageAsset) (string, error) {
	id, err := b.api.create(ctx, name, b.folderID, asset.MimeType, bytes.NewReader(asset.Data))
	if err != nil {
		return "", googleauth.Classify("create drive file", err)
	}
	if err := b.api.shareWithAnyone(ctx, id); err != nil {
		shareErr := googleauth.Classify("share drive file", err)
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if rmErr := b.api.remove(cleanupCtx, id); rmErr != nil {
			return "", errors.Join(shareErr, fmt.Errorf("delete unshared drive file %s: %w", id, rmErr))
		}
		return "", shareErr
	}
	return ThumbnailURL(id), nil
}

// ThumbnailURL is the public 1000px thumbnail link for a Drive file.
func ThumbnailURL(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/thumbnail?id=%s&sz=w1000", fileID)
}

type driveService struct {
	svc *drive.Service
}

func (d *driveService) create(ctx context.Context, name, folderID, mimeType string, body io.Reader) (string, error) {
	file := &drive.File{Name: name, Parents: []string{folderID}, MimeType: mimeType}
	created, err := d.svc.Files.Create(file).
		Media(body, googleapi.ContentType(mimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (d *driveService) shareWithAnyone(ctx context.Context, fileID string) error {
	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	_, err := d.svc.Permissions.Create(fileID, perm).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

func (d *driveService) remove(ctx context.Context, fileID string) error {
	return d.svc.Files.Delete(fileID).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}
