package fileInfo

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
)

func calculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("fail to close file", "error", err.Error())
		}
	}()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifySHA256 recomputes the checksum of the file on disk and compares it to expected.
func (f *FileInfo) VerifySHA256(expected string) (bool, error) {
	actual, err := calculateSHA256(f.Path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
