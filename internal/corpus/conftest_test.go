package corpus

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeNPY writes a little-endian float32 C-order .npy file with the given shape.
func writeNPY(t *testing.T, path string, shape []int, data []float32) {
	t.Helper()

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }", shapeStr)
	// magic(6) + version(2) + header_len(2) + header + '\n' padded to 64 bytes
	total := 10 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	for _, v := range data {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write npy: %v", err)
	}
}

func record(name, method string) map[string]any {
	return map[string]any{
		"name":                name,
		"wikipedia_page":      "Flag of " + name,
		"wikipedia_url":       "https://en.wikipedia.org/wiki/Flag_of_" + name,
		"wikipedia_image_url": "https://upload.wikimedia.org/" + name + ".svg",
		"local_image_link":    "images/" + name + ".png",
		"verification_method": method,
		"score":               0.0,
	}
}

// writeDescriptor writes a descriptor JSON with the given flag records and embeddings reference.
func writeDescriptor(t *testing.T, dir string, records []map[string]any, embeddings string) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"flags":               records,
		"embeddings_filename": embeddings,
	})
	if err != nil {
		t.Fatalf("marshal descriptor: %v", err)
	}
	path := filepath.Join(dir, "flags.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

// toyCorpus writes the 3-flag 2-D corpus [1,0], [0,1], [-1,0] and returns the descriptor path.
func toyCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeNPY(t, filepath.Join(dir, "embeddings.npy"), []int{3, 2}, []float32{1, 0, 0, 1, -1, 0})
	return writeDescriptor(t, dir, []map[string]any{
		record("Japan", "table"),
		record("Chad", "commons"),
		record("Peru", "check_options"),
	}, "embeddings.npy")
}
