// Package pathguard validates that every path the engine writes to is
// safely contained under the sync root and free of symlink indirection,
// per §4.1. Grounded on the prior internal/sync safety-invariant
// style (named checks with sentinel errors), generalized from that
// package's disk-space/big-delete invariants to path containment.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathUnsafe is returned when target escapes baseDir or traverses a
// symlink. Never retried (§7): it signals adversarial or malformed
// input and always terminates the affected operation.
var ErrPathUnsafe = errors.New("pathguard: unsafe path")

// Validate checks that target lies under baseDir and that no existing path
// component between baseDir and target is a symbolic link, per §4.1.
// Both target and baseDir are lexically normalized to absolute paths before
// comparison. Non-existent intermediate components are permitted.
func Validate(target, baseDir string) error {
	absBase, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("%w: resolve base dir %q: %v", ErrPathUnsafe, baseDir, err) //nolint:errorlint // composed sentinel message
	}

	absTarget, err := filepath.Abs(filepath.Clean(target))
	if err != nil {
		return fmt.Errorf("%w: resolve target %q: %v", ErrPathUnsafe, target, err) //nolint:errorlint
	}

	if err := checkContainment(absTarget, absBase); err != nil {
		return err
	}

	return checkSymlinkFree(absTarget, absBase)
}

// checkContainment verifies absTarget starts with absBase as a path prefix
// (not merely a string prefix — "/root/modulex" must not satisfy baseDir
// "/root/module").
func checkContainment(absTarget, absBase string) error {
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return fmt.Errorf("%w: %q is not relative to %q: %v", ErrPathUnsafe, absTarget, absBase, err) //nolint:errorlint
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q escapes base dir %q", ErrPathUnsafe, absTarget, absBase)
	}

	return nil
}

// checkSymlinkFree walks path components from absBase down to absTarget and
// fails if any *existing* component is a symbolic link. Components that do
// not yet exist are permitted — they will be created safely by FileOps.
func checkSymlinkFree(absTarget, absBase string) error {
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathUnsafe, err) //nolint:errorlint
	}

	if rel == "." {
		return checkOneComponentSymlink(absBase)
	}

	segments := strings.Split(rel, string(filepath.Separator))
	current := absBase

	if err := checkOneComponentSymlink(current); err != nil {
		return err
	}

	for _, seg := range segments {
		current = filepath.Join(current, seg)
		if err := checkOneComponentSymlink(current); err != nil {
			return err
		}
	}

	return nil
}

// checkOneComponentSymlink lstats a single path component and fails if it
// exists and is a symlink. A non-existent component is not an error.
func checkOneComponentSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("%w: stat %q: %v", ErrPathUnsafe, path, err) //nolint:errorlint
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %q is a symbolic link", ErrPathUnsafe, path)
	}

	return nil
}

// EnsureContainedDir validates dir under baseDir and then creates it
// (and any missing parents) if it does not already exist. Used by FileOps
// before every directory creation, temp-file creation, and rename
// (§4.1).
func EnsureContainedDir(dir, baseDir string) error {
	if err := Validate(dir, baseDir); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd // standard dir perms
		return fmt.Errorf("pathguard: create dir %q: %w", dir, err)
	}

	return nil
}
