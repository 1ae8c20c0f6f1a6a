package decode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"seriallinker/internal/fileutil"
	"seriallinker/internal/textutil"
)

// Share describes a network share mounted locally that the decode server
// reads through its own UNC root.
type Share struct {
	Mount   string
	UNCRoot string
	Subdir  string

	now func() time.Time
}

func (s Share) enabled() bool {
	return s.Mount != ""
}

// Place copies local onto the share unless it already lives there, and returns
// the path on the mount. The copy is fsynced so the server never reads a
// partially flushed file.
func (s Share) Place(local string) (string, error) {
	if !s.enabled() || s.under(local) {
		return local, nil
	}
	dir := filepath.Join(s.Mount, filepath.FromSlash(s.Subdir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create share dir: %w", err)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	base := filepath.Base(local)
	ext := filepath.Ext(base)
	root := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".jpg"
	}
	dest := filepath.Join(dir, fmt.Sprintf("%s_%s%s", root, textutil.TimestampTag(now()), ext))
	if err := fileutil.CopySynced(local, dest); err != nil {
		return "", fmt.Errorf("copy to share: %w", err)
	}
	return dest, nil
}

// RemotePath translates a path under the mount into the server's UNC form.
// Paths outside the mount are returned unchanged.
func (s Share) RemotePath(path string) string {
	if !s.enabled() || s.UNCRoot == "" || !s.under(path) {
		return path
	}
	rel, err := filepath.Rel(s.Mount, filepath.Clean(path))
	if err != nil {
		return path
	}
	return s.UNCRoot + `\` + strings.ReplaceAll(filepath.ToSlash(rel), "/", `\`)
}

func (s Share) under(path string) bool {
	mount := filepath.Clean(s.Mount)
	clean := filepath.Clean(path)
	return strings.HasPrefix(clean, mount+string(filepath.Separator))
}
