package tool

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileInfoFromPath reads name and size of a regular local file.
func FileInfoFromPath(filePath string) (string, int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if fileInfo.IsDir() {
		return "", 0, fmt.Errorf("path is a directory, not a file")
	}
	return filepath.Base(filePath), fileInfo.Size(), nil
}
