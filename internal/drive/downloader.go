package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileNotFound is returned by Fetch when the folder has no matching file
var ErrFileNotFound = errors.New("drive file not found")

// Downloader fetches named frame files from one Drive folder.
type Downloader struct {
	service    FileService
	folderPath string
}

// NewDownloader creates a Downloader for folderPath ("" is the Drive root).
func NewDownloader(s FileService, folderPath string) *Downloader {
	return &Downloader{service: s, folderPath: folderPath}
}

// Fetch downloads the file called name (or its .xlsx sibling) into dir and returns
// the local CSV path. Spreadsheets are converted from their first sheet.
func (d *Downloader) Fetch(ctx context.Context, name, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	folderID, err := d.service.FindFolderByPath(ctx, d.folderPath)
	if err != nil {
		return "", err
	}
	files, err := d.service.ListFiles(ctx, folderID)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	var match *File
	for _, f := range files {
		if f.Name == name {
			match = f
			break
		}
		if match == nil && strings.EqualFold(f.Name, base+".xlsx") {
			match = f
		}
	}
	if match == nil {
		return "", fmt.Errorf("%w: %s in %q", ErrFileNotFound, name, d.folderPath)
	}

	csvPath := filepath.Join(dir, base+".csv")
	if !strings.EqualFold(filepath.Ext(match.Name), ".xlsx") {
		if err := d.download(ctx, match, csvPath); err != nil {
			return "", err
		}
		return csvPath, nil
	}

	xlsxPath := filepath.Join(dir, match.Name)
	if err := d.download(ctx, match, xlsxPath); err != nil {
		return "", err
	}
	defer os.Remove(xlsxPath)
	if err := convertXLSXToCSV(xlsxPath, csvPath); err != nil {
		return "", fmt.Errorf("failed to convert %s to csv: %w", match.Name, err)
	}
	return csvPath, nil
}

func (d *Downloader) download(ctx context.Context, f *File, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if err := d.service.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		return fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	return out.Close()
}
