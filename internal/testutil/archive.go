package testutil

import (
	"archive/zip"
	"bytes"
	"testing"
)

// DefaultManifest is added to archives built without one.
const DefaultManifest = `{"version": "1.0", "source": "test"}`

// BuildArchive zips files into a snapshot archive. A manifest is added
// unless files carries one.
func BuildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if _, ok := files["manifest.json"]; !ok {
		files["manifest.json"] = DefaultManifest
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}
	return buf.Bytes()
}
