package resultlog

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"seriallinker/internal/fileutil"
	"seriallinker/internal/textutil"
)

const maxBackupCollisions = 100

// Backup keeps images of sides that produced no code.
type Backup struct {
	dir string
	now func() time.Time
}

// NewBackup writes under dir.
func NewBackup(dir string) *Backup {
	return &Backup{dir: dir, now: time.Now}
}

// Save copies src as FAIL_<SIDE>_NO_SN_<tag><ext>. An existing file with the
// same name is never overwritten; a numeric suffix is added instead.
func (b *Backup) Save(side Side, src string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".jpg"
	}
	base := fmt.Sprintf("FAIL_%s_NO_SN_%s", strings.ToUpper(string(side)), textutil.TimestampTag(b.now()))
	for i := 0; i < maxBackupCollisions; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		dst := filepath.Join(b.dir, name)
		err := fileutil.CopyNoClobber(src, dst)
		if err == nil {
			return dst, nil
		}
		if !fileutil.IsExist(err) {
			return "", fmt.Errorf("back up %s image: %w", side, err)
		}
	}
	return "", fmt.Errorf("back up %s image: too many name collisions for %s", side, base)
}
