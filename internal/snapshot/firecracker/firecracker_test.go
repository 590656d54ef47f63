package firecracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bsdinis/jiftool/internal/jif/page"
)

func writeMemFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestBuildJIFScansZeroPages(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 3*page.Size)
	for i := page.Size; i < 2*page.Size; i++ {
		data[i] = 0xAB
	}
	memPath := writeMemFile(t, dir, "snapshot_mem", data)

	j, err := BuildJIF(Config{MemFilePath: memPath})
	if err != nil {
		t.Fatalf("BuildJIF: %v", err)
	}
	if len(j.Pheaders) != 1 {
		t.Fatalf("len(Pheaders) = %d, want 1", len(j.Pheaders))
	}
	p := j.Pheaders[0]
	intervals := p.Tree.InOrderIntervals()
	if len(intervals) != 1 {
		t.Fatalf("len(intervals) = %d, want 1 (only the non-zero page)", len(intervals))
	}
	if intervals[0].Start != page.Size || intervals[0].End != 2*page.Size {
		t.Fatalf("intervals[0] = [%#x, %#x), want [%#x, %#x)", intervals[0].Start, intervals[0].End, page.Size, 2*page.Size)
	}
}

func TestBuildJIFRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	memPath := writeMemFile(t, dir, "snapshot_mem", nil)
	if _, err := BuildJIF(Config{MemFilePath: memPath}); err == nil {
		t.Fatalf("BuildJIF() on an empty memfile did not fail")
	}
}

func TestFindMemFile(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	want := writeMemFile(t, dirB, "snapshot_mem", []byte{1, 2, 3})

	got, err := FindMemFile([]string{dirA, dirB})
	if err != nil {
		t.Fatalf("FindMemFile: %v", err)
	}
	if got != want {
		t.Fatalf("FindMemFile() = %s, want %s", got, want)
	}
}

func TestFindMemFileNotFound(t *testing.T) {
	dirA := t.TempDir()
	if _, err := FindMemFile([]string{dirA}); err == nil {
		t.Fatalf("FindMemFile() with no snapshot_mem present did not fail")
	}
}
