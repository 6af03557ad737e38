package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveConflict returns a path guaranteed not to exist on disk: localPath
// itself if free, otherwise the first "base (N).ext" (N=1,2,...) that does
// not exist, where base is the final segment sans its last extension and
// ext is that last extension (§4.4.3). Invoked after path assembly but
// before commit. Identity on a free path.
func ResolveConflict(localPath string) (string, error) {
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		return localPath, nil
	} else if err != nil {
		return "", fmt.Errorf("fileops: stat %q: %w", localPath, err)
	}

	dir := filepath.Dir(localPath)
	base := filepath.Base(localPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))

		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("fileops: stat %q: %w", candidate, err)
		}
	}
}
