package testsupport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"likevault/internal/config"
	"likevault/internal/store"
)

// WriteFile creates path with size bytes of filler. A size <= 0 writes a
// single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MarkDownloaded writes a local file for att under the download directory
// and records it as downloaded, which also charges the disk counter. It
// returns the file path.
func MarkDownloaded(t testing.TB, cfg *config.Config, st *store.Store, att *store.Attachment, size int64) string {
	t.Helper()

	path := filepath.Join(cfg.Paths.DownloadDir, fmt.Sprintf("%s_%d.bin", att.ItemID, att.ID))
	WriteFile(t, path, size)
	if err := st.MarkAttachmentDownloaded(context.Background(), att.ID, path, size); err != nil {
		t.Fatalf("MarkAttachmentDownloaded: %v", err)
	}
	return path
}
