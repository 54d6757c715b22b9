package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSearchPaths(t *testing.T) {
	tmpDir := t.TempDir()

	file1 := filepath.Join(tmpDir, "file1.txt")
	file2 := filepath.Join(tmpDir, "file2.txt")
	if err := os.WriteFile(file1, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name    string
		paths   []string
		want    string
		wantErr bool
	}{
		{"finds first existing file", []string{file1, file2}, file1, false},
		{"returns error when no files exist", []string{file2}, "", true},
		{"handles empty path list", []string{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SearchPaths(tt.paths)
			if (err != nil) != tt.wantErr {
				t.Errorf("SearchPaths() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SearchPaths() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchPathsOptional(t *testing.T) {
	tmpDir := t.TempDir()

	file1 := filepath.Join(tmpDir, "file1.txt")
	if err := os.WriteFile(file1, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if got := SearchPathsOptional([]string{file1}); got != file1 {
		t.Errorf("SearchPathsOptional() = %v, want %v", got, file1)
	}
	if got := SearchPathsOptional([]string{filepath.Join(tmpDir, "missing.txt")}); got != "" {
		t.Errorf("SearchPathsOptional() = %v, want empty string", got)
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	paths := DefaultConfigPaths("portway.yaml")

	if len(paths) != 3 {
		t.Fatalf("DefaultConfigPaths() returned %d paths, want 3", len(paths))
	}

	for i, path := range paths {
		if !strings.Contains(path, "portway.yaml") {
			t.Errorf("DefaultConfigPaths()[%d] = %v, should contain 'portway.yaml'", i, path)
		}
	}

	if !strings.HasPrefix(paths[2], "/etc/portway") {
		t.Errorf("DefaultConfigPaths()[2] should start with /etc/portway, got %v", paths[2])
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	testDir := filepath.Join(tmpDir, "testdir")
	if err := os.Mkdir(testDir, 0755); err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"existing file", testFile, true},
		{"nonexistent file", filepath.Join(tmpDir, "nonexistent.txt"), false},
		{"directory", testDir, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileExists(tt.path); got != tt.want {
				t.Errorf("FileExists() = %v, want %v", got, tt.want)
			}
		})
	}
}
