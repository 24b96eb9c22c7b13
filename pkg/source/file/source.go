// Package file implements the source interface over the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/trellis/pkg/source"
)

// Source implements source.Source for a local directory tree.
//
// Keys are slash-separated paths relative to BaseDir. Keys that resolve
// outside BaseDir are rejected with source.ErrAccessDenied.
type Source struct {
	baseDir string
}

var _ source.Source = (*Source)(nil)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	st, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &source.SourceError{Op: "New", Scheme: source.SchemeFile, Key: base, Err: source.ErrNotFound}
		}
		return nil, &source.SourceError{Op: "New", Scheme: source.SchemeFile, Key: base, Err: err}
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("base dir %s is not a directory", base)
	}
	return &Source{baseDir: base}, nil
}

func (s *Source) Close() error { return nil }

// List walks the tree once, filters keys by string prefix, and reports them
// in ascending key order.
func (s *Source) List(ctx context.Context, prefix string, fn func(source.ObjectInfo) error) error {
	prefix = strings.TrimPrefix(prefix, "/")

	infos, err := s.collect(ctx, prefix)
	if err != nil {
		return s.wrapError("List", prefix, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return s.wrapError("List", prefix, err)
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, s.wrapError("Get", key, err)
	}
	full, err := s.fullPath(key)
	if err != nil {
		return nil, 0, s.wrapError("Get", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, s.wrapError("Get", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, s.wrapError("Get", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, s.wrapError("Get", key, source.ErrNotFound)
	}
	return f, st.Size(), nil
}

func (s *Source) Head(ctx context.Context, key string) (*source.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.wrapError("Head", key, err)
	}
	full, err := s.fullPath(key)
	if err != nil {
		return nil, s.wrapError("Head", key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		return nil, s.wrapError("Head", key, err)
	}
	if st.IsDir() {
		return nil, s.wrapError("Head", key, source.ErrNotFound)
	}
	return &source.ObjectInfo{
		Key:          strings.TrimPrefix(key, "/"),
		Size:         st.Size(),
		LastModified: st.ModTime(),
	}, nil
}

// collect walks the directory covering prefix and gathers matching objects.
// The walk root is the directory portion of the prefix; the final segment may
// be a partial name, so matching stays a pure string-prefix test on keys.
func (s *Source) collect(ctx context.Context, prefix string) ([]source.ObjectInfo, error) {
	dir := ""
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		dir = prefix[:idx]
	}
	root, err := s.fullPath(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []source.ObjectInfo
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return nil
		}
		infos = append(infos, source.ObjectInfo{Key: key, Size: st.Size(), LastModified: st.ModTime()})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return infos, nil
}

func (s *Source) fullPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	// Normalize before the traversal check so "a/../../x" is caught.
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", source.ErrAccessDenied
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}

// wrapError normalizes filesystem errors to source sentinels.
func (s *Source) wrapError(op, key string, err error) error {
	werr := &source.SourceError{Op: op, Scheme: source.SchemeFile, Key: key, Err: err}
	switch {
	case os.IsNotExist(err):
		werr.Err = source.ErrNotFound
	case os.IsPermission(err):
		werr.Err = source.ErrAccessDenied
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		werr.Err = source.ErrCanceled
	}
	return werr
}
