package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/landcover/internal/timeutil"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_RenameAndGlob(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()

	tmp := filepath.Join(dir, "a_pred.tif.tmp")
	if err := osfs.WriteFile(tmp, []byte("mask"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	final := filepath.Join(dir, "a_pred.tif")
	if err := osfs.Rename(tmp, final); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if osfs.Exists(tmp) {
		t.Error("temp file should be gone after rename")
	}

	if err := osfs.WriteFile(filepath.Join(dir, "b_pred.tif"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	matches, err := osfs.Glob(filepath.Join(dir, "*_pred.tif"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 2 || filepath.Base(matches[0]) != "a_pred.tif" {
		t.Errorf("unexpected glob result %v", matches)
	}
}

func TestOSFileSystem_CreateAndOpen(t *testing.T) {
	osfs := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "nested", "file.bin")

	if err := osfs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	w, err := osfs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := osfs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("expected payload, got %q", data)
	}
	if err := osfs.Remove(path); err != nil {
		t.Errorf("Remove failed: %v", err)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	err := mfs.WriteFile("/test.txt", testData, 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}
}

func TestMemoryFileSystem_CreateAndWrite(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/created.txt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = w.Write([]byte("created content"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	err = w.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := mfs.ReadFile("/created.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != "created content" {
		t.Errorf("expected 'created content', got %q", data)
	}
}

func TestMemoryFileSystem_ModTimeFromClock(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	mfs := NewMemoryFileSystemWithClock(clock)

	if err := mfs.WriteFile("/m/old.ckpt", []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if err := mfs.WriteFile("/m/new.ckpt", []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	oldInfo, err := mfs.Stat("/m/old.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	newInfo, err := mfs.Stat("/m/new.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	if !oldInfo.ModTime().Equal(start) {
		t.Errorf("old mtime = %v, want %v", oldInfo.ModTime(), start)
	}
	if !newInfo.ModTime().After(oldInfo.ModTime()) {
		t.Errorf("expected new file to be newer: %v vs %v", newInfo.ModTime(), oldInfo.ModTime())
	}
}

func TestMemoryFileSystem_RenameKeepsModTime(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	mfs := NewMemoryFileSystemWithClock(clock)

	if err := mfs.WriteFile("/out/a.tif.tmp", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if err := mfs.Rename("/out/a.tif.tmp", "/out/a.tif"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if mfs.Exists("/out/a.tif.tmp") {
		t.Error("source should be removed")
	}
	info, err := mfs.Stat("/out/a.tif")
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(start) {
		t.Errorf("mtime changed on rename: %v", info.ModTime())
	}

	err = mfs.Rename("/out/missing", "/out/b")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Glob(t *testing.T) {
	mfs := NewMemoryFileSystem()
	for _, name := range []string{"/d/images/b_1.tif", "/d/images/a_0.tif", "/d/labels/a_0.tif", "/d/images/notes.txt"} {
		if err := mfs.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := mfs.Glob("/d/images/*.tif")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	want := []string{"/d/images/a_0.tif", "/d/images/b_1.tif"}
	if len(matches) != len(want) {
		t.Fatalf("Glob = %v, want %v", matches, want)
	}
	for i := range want {
		if matches[i] != want[i] {
			t.Errorf("match[%d] = %q, want %q", i, matches[i], want[i])
		}
	}

	if _, err := mfs.Glob("/d/[bad"); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestMemoryFileSystem_StatAndRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		info, err := mfs.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%q) failed: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%q should be a directory", dir)
		}
	}

	if err := mfs.WriteFile("/a/file", []byte("12345"), 0600); err != nil {
		t.Fatal(err)
	}
	info, err := mfs.Stat("/a/./file")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 5 || info.Mode() != 0600 {
		t.Errorf("unexpected info size=%d mode=%v", info.Size(), info.Mode())
	}

	if err := mfs.Remove("/a/file"); err != nil {
		t.Fatal(err)
	}
	if _, err := mfs.Stat("/a/file"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist, got %v", err)
	}
	if err := mfs.Remove("/a/file"); err == nil {
		t.Error("expected error removing missing file")
	}
}

func TestMemoryFileSystem_DataIsolation(t *testing.T) {
	mfs := NewMemoryFileSystem()
	src := []byte("abc")
	if err := mfs.WriteFile("/iso", src, 0644); err != nil {
		t.Fatal(err)
	}
	src[0] = 'z'

	got, _ := mfs.ReadFile("/iso")
	got[1] = 'z'

	again, _ := mfs.ReadFile("/iso")
	if string(again) != "abc" {
		t.Errorf("stored data was mutated: %q", again)
	}
}

func TestMemoryFileSystem_Files(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.WriteFile("/out/x_pred.tif", nil, 0644)
	_ = mfs.WriteFile("/out/x_pred.tif.geo.json", nil, 0644)
	_ = mfs.WriteFile("/outside/y", nil, 0644)

	files := mfs.Files("/out")
	if len(files) != 2 {
		t.Errorf("Files = %v, want 2 entries", files)
	}
}
