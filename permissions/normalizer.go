// Package permissions opens up workspace trees so that files written by the backend can be
// consumed, and overwritten, by processes running under another identity (the generation
// script, the container engine's bind mount).
package permissions

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"mockyard/types"
)

const (
	// DirMode lets any identity create files inside workspace directories.
	DirMode fs.FileMode = 0o777
	// FileMode is world read/write, never executable.
	FileMode fs.FileMode = 0o666
)

// ChmodFunc applies a mode to a path. It exists so tests can simulate paths whose
// permissions cannot be changed.
type ChmodFunc func(path string, mode fs.FileMode) error

// Report summarizes one tree walk.
type Report struct {
	Visited  int
	Failures []*types.PermissionError
}

// OK reports whether every visited path was normalized.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// Normalizer applies the broad grants a workspace needs. It is not a security boundary.
type Normalizer struct {
	chmod ChmodFunc
}

// NewNormalizer returns a Normalizer using the platform's native chmod. On Windows that
// toggles the read-only attribute, which is the only grant Go exposes without ACL editing.
func NewNormalizer() *Normalizer {
	return &Normalizer{chmod: os.Chmod}
}

// NewNormalizerWithChmod returns a Normalizer using a custom chmod primitive.
func NewNormalizerWithChmod(chmod ChmodFunc) *Normalizer {
	return &Normalizer{chmod: chmod}
}

// Fix normalizes a single path. The returned error is a *types.PermissionError.
func (n *Normalizer) Fix(ctx context.Context, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return n.fail(ctx, path, err)
	}
	return n.apply(ctx, path, info.Mode())
}

// Normalize walks root, directories before their contents, and normalizes every directory
// and regular file. A failing path is logged and recorded; the walk always continues.
func (n *Normalizer) Normalize(ctx context.Context, root string) Report {
	var report Report
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			// d is non-nil when a directory was visited but could not be read; its mode
			// may still be fixable, the contents are skipped by WalkDir itself.
			report.Failures = append(report.Failures, n.fail(ctx, path, walkErr))
			return nil
		}
		report.Visited++
		if err := n.apply(ctx, path, d.Type()); err != nil {
			report.Failures = append(report.Failures, err.(*types.PermissionError))
		}
		return nil
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("root", root).Int("visited", report.Visited).Msg("permission walk interrupted")
	}
	if !report.OK() {
		log.Ctx(ctx).Warn().Str("root", root).Int("visited", report.Visited).Int("failures", len(report.Failures)).
			Msg("permissions normalized with failures")
	} else {
		log.Ctx(ctx).Debug().Str("root", root).Int("visited", report.Visited).Msg("permissions normalized")
	}
	return report
}

func (n *Normalizer) apply(ctx context.Context, path string, mode fs.FileMode) error {
	var target fs.FileMode
	switch {
	case mode.IsDir():
		target = DirMode
	case mode.IsRegular():
		target = FileMode
	default:
		// Symlinks, sockets and devices are left alone.
		return nil
	}
	if err := n.chmod(path, target); err != nil {
		return n.fail(ctx, path, err)
	}
	return nil
}

func (n *Normalizer) fail(ctx context.Context, path string, err error) *types.PermissionError {
	log.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("could not fix permissions")
	return &types.PermissionError{Path: path, Err: err}
}
