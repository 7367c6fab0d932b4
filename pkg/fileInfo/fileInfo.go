package fileInfo

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileInfo describes a file that was served or received.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Path     string `json:"-"`
}

// Describe stats, sniffs and hashes a regular file.
func Describe(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, errors.New("not a regular file: " + path)
	}

	fi := FileInfo{
		Name: info.Name(),
		Size: info.Size(),
		Path: path,
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		fi.MimeType = "application/octet-stream"
	} else {
		fi.MimeType = mime.String()
	}

	sum, err := calculateSHA256(path)
	if err != nil {
		return FileInfo{}, err
	}
	fi.Checksum = sum
	return fi, nil
}

// Catalog describes the servable files directly under root, sorted by name.
// Hidden files (lock and partial files among them) are skipped.
func Catalog(root string) ([]FileInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		fi, err := Describe(filepath.Join(root, entry.Name()))
		if err != nil {
			slog.Debug("skipping file", "name", entry.Name(), "error", err)
			continue
		}
		files = append(files, fi)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
