package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/trellis/pkg/source"
)

// writeTree creates files under dir from relative slash paths.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func newSource(t *testing.T, files map[string]string) *Source {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, files)
	s, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	return s
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{BaseDir: "   "}.Validate())
	assert.NoError(t, Config{BaseDir: "."}.Validate())
}

func TestNew_MissingDir(t *testing.T) {
	_, err := New(Config{BaseDir: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.True(t, source.IsNotFound(err))
}

func TestNew_FileNotDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := New(Config{BaseDir: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestSource_List(t *testing.T) {
	s := newSource(t, map[string]string{
		"repos/alpha/.travis.yml": "language: python\n",
		"repos/beta/.travis.yml":  "language: go\n",
		"repos/beta/README.md":    "readme\n",
		"misc/notes.txt":          "notes\n",
	})
	defer s.Close()

	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{
			name:   "all keys sorted",
			prefix: "",
			want: []string{
				"misc/notes.txt",
				"repos/alpha/.travis.yml",
				"repos/beta/.travis.yml",
				"repos/beta/README.md",
			},
		},
		{
			name:   "directory prefix",
			prefix: "repos/beta/",
			want:   []string{"repos/beta/.travis.yml", "repos/beta/README.md"},
		},
		{
			name:   "partial segment prefix",
			prefix: "repos/al",
			want:   []string{"repos/alpha/.travis.yml"},
		},
		{
			name:   "no matches",
			prefix: "repos/gamma/",
			want:   nil,
		},
		{
			name:   "nonexistent directory",
			prefix: "elsewhere/deep/",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys []string
			err := s.List(context.Background(), tt.prefix, func(info source.ObjectInfo) error {
				keys = append(keys, info.Key)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestSource_List_ObjectInfo(t *testing.T) {
	s := newSource(t, map[string]string{"a/.travis.yml": "language: python\n"})
	defer s.Close()

	var infos []source.ObjectInfo
	err := s.List(context.Background(), "", func(info source.ObjectInfo) error {
		infos = append(infos, info)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, infos, 1)

	assert.Equal(t, "a/.travis.yml", infos[0].Key)
	assert.Equal(t, int64(len("language: python\n")), infos[0].Size)
	assert.False(t, infos[0].LastModified.IsZero())
	assert.Empty(t, infos[0].ETag)
}

func TestSource_List_CallbackError(t *testing.T) {
	s := newSource(t, map[string]string{
		"a.yml": "x",
		"b.yml": "x",
	})
	defer s.Close()

	stop := errors.New("stop here")
	calls := 0
	err := s.List(context.Background(), "", func(source.ObjectInfo) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestSource_List_ContextCanceled(t *testing.T) {
	s := newSource(t, map[string]string{"a.yml": "x"})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.List(ctx, "", func(source.ObjectInfo) error { return nil })
	require.Error(t, err)
	assert.True(t, source.IsCanceled(err))
}

func TestSource_List_TraversalPrefix(t *testing.T) {
	s := newSource(t, map[string]string{"a.yml": "x"})
	defer s.Close()

	err := s.List(context.Background(), "../outside/", func(source.ObjectInfo) error { return nil })
	require.Error(t, err)
	assert.True(t, source.IsAccessDenied(err))
}

func TestSource_Get(t *testing.T) {
	s := newSource(t, map[string]string{"repos/a/.travis.yml": "language: python\n"})
	defer s.Close()

	body, size, err := s.Get(context.Background(), "repos/a/.travis.yml")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "language: python\n", string(data))
	assert.Equal(t, int64(len(data)), size)
}

func TestSource_Get_NotFound(t *testing.T) {
	s := newSource(t, nil)
	defer s.Close()

	_, _, err := s.Get(context.Background(), "missing.yml")
	require.Error(t, err)
	assert.True(t, source.IsNotFound(err))

	var serr *source.SourceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "Get", serr.Op)
	assert.Equal(t, source.SchemeFile, serr.Scheme)
	assert.Equal(t, "missing.yml", serr.Key)
}

func TestSource_Get_Directory(t *testing.T) {
	s := newSource(t, map[string]string{"repos/a/.travis.yml": "x"})
	defer s.Close()

	_, _, err := s.Get(context.Background(), "repos/a")
	require.Error(t, err)
	assert.True(t, source.IsNotFound(err))
}

func TestSource_Head(t *testing.T) {
	s := newSource(t, map[string]string{"repos/a/.travis.yml": "language: python\n"})
	defer s.Close()

	info, err := s.Head(context.Background(), "repos/a/.travis.yml")
	require.NoError(t, err)
	assert.Equal(t, "repos/a/.travis.yml", info.Key)
	assert.Equal(t, int64(len("language: python\n")), info.Size)
	assert.False(t, info.LastModified.IsZero())
}

func TestSource_Head_NotFound(t *testing.T) {
	s := newSource(t, nil)
	defer s.Close()

	_, err := s.Head(context.Background(), "missing.yml")
	require.Error(t, err)
	assert.True(t, source.IsNotFound(err))
}

func TestSource_TraversalGuard(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644))

	base := filepath.Join(outside, "base")
	require.NoError(t, os.Mkdir(base, 0o755))
	s, err := New(Config{BaseDir: base})
	require.NoError(t, err)
	defer s.Close()

	for _, key := range []string{
		"../secret.txt",
		"a/../../secret.txt",
		"..",
	} {
		t.Run(key, func(t *testing.T) {
			_, _, err := s.Get(context.Background(), key)
			require.Error(t, err)
			assert.True(t, source.IsAccessDenied(err), "key %q must not escape the base dir", key)

			_, err = s.Head(context.Background(), key)
			require.Error(t, err)
			assert.True(t, source.IsAccessDenied(err))
		})
	}
}

func TestSource_KeyNormalization(t *testing.T) {
	s := newSource(t, map[string]string{"repos/a/.travis.yml": "x"})
	defer s.Close()

	// Leading slashes and inner "." segments resolve to the same object.
	for _, key := range []string{
		"/repos/a/.travis.yml",
		"./repos/a/.travis.yml",
		"repos/./a/.travis.yml",
		"repos/b/../a/.travis.yml",
	} {
		info, err := s.Head(context.Background(), key)
		require.NoError(t, err, "key %q", key)
		assert.Equal(t, int64(1), info.Size)
	}
}
