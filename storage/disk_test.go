package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	cherrors "chat-relay/errors"
)

func newTestStore(t *testing.T) *UploadStore {
	t.Helper()
	store, err := NewUploadStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return store
}

func TestUploadStore_Save_Writes_Bytes(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	name, err := store.Save("report.txt", []byte("quarterly numbers"))
	req.NoError(err)
	req.Equal("report.txt", name)

	data, err := os.ReadFile(filepath.Join(store.Dir(), "report.txt"))
	req.NoError(err)
	req.Equal("quarterly numbers", string(data))
}

func TestUploadStore_Collisions_Get_Numbered_Suffixes(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// When the same filename arrives three times
	first, err := store.Save("report.txt", []byte("v1"))
	req.NoError(err)
	second, err := store.Save("report.txt", []byte("v2"))
	req.NoError(err)
	third, err := store.Save("report.txt", []byte("v3"))
	req.NoError(err)

	// Then the suffix goes before the extension and nothing is overwritten
	req.Equal("report.txt", first)
	req.Equal("report_1.txt", second)
	req.Equal("report_2.txt", third)

	data, err := os.ReadFile(filepath.Join(store.Dir(), "report.txt"))
	req.NoError(err)
	req.Equal("v1", string(data))
}

func TestUploadStore_Collision_Without_Extension(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	first, err := store.Save("README", []byte("a"))
	req.NoError(err)
	second, err := store.Save("README", []byte("b"))
	req.NoError(err)

	req.Equal("README", first)
	req.Equal("README_1", second)
}

func TestUploadStore_Strips_Directory_Components(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// A hostile filename must not escape the uploads dir
	name, err := store.Save("../../etc/passwd", []byte("nope"))
	req.NoError(err)
	req.Equal("passwd", name)

	entries, err := os.ReadDir(store.Dir())
	req.NoError(err)
	req.Len(entries, 1)
}

func TestUploadStore_Blank_Filename_Falls_Back(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	name, err := store.Save("   ", []byte("x"))
	req.NoError(err)
	req.Equal("unknown_file", name)
}

func TestUploadStore_Empty_Payload_Is_Rejected(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	_, err := store.Save("empty.bin", nil)
	req.ErrorIs(err, cherrors.ErrEmptyFilePayload)

	entries, err := os.ReadDir(store.Dir())
	req.NoError(err)
	req.Empty(entries)
}

func TestUploadStore_Concurrent_Saves_Never_Share_A_Name(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	const uploads = 16
	names := make(chan string, uploads)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := store.Save("photo.png", []byte("pixels"))
			require.NoError(t, err)
			names <- name
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]struct{})
	for name := range names {
		_, duplicate := seen[name]
		req.False(duplicate, "name %s resolved twice", name)
		seen[name] = struct{}{}
	}
	req.Len(seen, uploads)
}
