package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/model"
)

// FileBackend stores the inbox as a pretty-printed JSON array.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend rooted at path. The file is created on
// first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the backing file path.
func (b *FileBackend) Path() string { return b.path }

// Load reads the file. Missing, unreadable or corrupt files load as empty.
func (b *FileBackend) Load(_ context.Context) ([]model.Item, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		zap.L().Warn("inbox: cannot read file, starting empty", zap.String("path", b.path), zap.Error(err))
		return nil, nil
	}
	return decodeItems(data), nil
}

// Save writes all items via a temp file and rename.
func (b *FileBackend) Save(_ context.Context, items []model.Item) error {
	if items == nil {
		items = []model.Item{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return eris.Wrap(err, "inbox: encode items")
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "inbox: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".inbox-*.json")
	if err != nil {
		return eris.Wrap(err, "inbox: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "inbox: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "inbox: close temp file")
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return eris.Wrapf(err, "inbox: replace %s", b.path)
	}
	return nil
}
