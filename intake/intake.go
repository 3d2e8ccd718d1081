// Package intake checks a locally selected spreadsheet before anything is sent over the network.
package intake

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

// MaxFileSize is the upload ceiling enforced before preview.
const MaxFileSize int64 = 10 * 1024 * 1024

var acceptedExtensions = map[string]string{
	".xlsx": types.MIMETypeXLSX,
	".xls":  types.MIMETypeXLS,
}

type ErrorKind int

const (
	KindUnsupportedType ErrorKind = iota + 1
	KindTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedType:
		return "unsupported_type"
	case KindTooLarge:
		return "too_large"
	}
	return "unknown"
}

// ValidationError rejects a file on the client side. It is never a server error.
type ValidationError struct {
	Kind ErrorKind
	Name string
	Size int64
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindUnsupportedType:
		return "select an Excel file (.xlsx or .xls)"
	case KindTooLarge:
		return fmt.Sprintf("file exceeds the maximum size of %d MB", MaxFileSize/(1024*1024))
	}
	return "invalid file"
}

// Select validates a candidate by name and size and returns it with a fresh identity.
func Select(name string, size int64) (types.SelectedFile, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mimeType, ok := acceptedExtensions[ext]
	if !ok {
		return types.SelectedFile{}, &ValidationError{Kind: KindUnsupportedType, Name: name, Size: size}
	}
	if size > MaxFileSize {
		return types.SelectedFile{}, &ValidationError{Kind: KindTooLarge, Name: name, Size: size}
	}
	return types.SelectedFile{
		ID:       tool.GenerateRandomUUID(),
		Name:     name,
		Size:     size,
		MIMEType: mimeType,
	}, nil
}

// Open validates a file on disk.
func Open(path string) (types.SelectedFile, error) {
	name, size, err := tool.FileInfoFromPath(path)
	if err != nil {
		return types.SelectedFile{}, err
	}
	file, err := Select(name, size)
	if err != nil {
		return file, err
	}
	file.Path = path
	return file, nil
}
