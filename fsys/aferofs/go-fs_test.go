package aferofs

import (
	"errors"
	"io/fs"
	"syscall"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func TestGoFS(t *testing.T) {
	gofs := NewGoFS(testingPopulated(t).fs)
	if err := fstest.TestFS(gofs, "docs/README.md", "docs/HelloWorldThisIsALoongFileName.txt", "docs/sub/data.bin", "empty"); err != nil {
		t.Fatal(err)
	}
}

func TestGoFs_ReadDir(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		want    []string
		wantErr error
	}{
		{name: "root", dir: ".", want: []string{"docs", "empty"}},
		{name: "sorted", dir: "docs", want: []string{"HelloWorldThisIsALoongFileName.txt", "README.md", "sub"}},
		{name: "file", dir: "empty", wantErr: syscall.ENOTDIR},
		{name: "missing", dir: "missing", wantErr: fs.ErrNotExist},
		{name: "rooted", dir: "/docs", wantErr: fs.ErrInvalid},
	}
	gofs := &GoFs{fs: testingPopulated(t)}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := gofs.ReadDir(tt.dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GoFs.ReadDir() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GoFs.ReadDir() error = %v", err)
			}

			var got []string
			for _, e := range entries {
				got = append(got, e.Name())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GoFs.ReadDir() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGoFs_Open(t *testing.T) {
	gofs := &GoFs{fs: testingPopulated(t)}

	for _, name := range []string{"/docs/README.md", "docs/../empty", "docs/", ""} {
		if _, err := gofs.Open(name); !errors.Is(err, fs.ErrInvalid) {
			t.Errorf("GoFs.Open(%q) error = %v, want %v", name, err, fs.ErrInvalid)
		}
	}

	got, err := fs.ReadFile(gofs, "docs/README.md")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "# Hello\n" {
		t.Errorf("ReadFile() = %q", got)
	}

	info, err := fs.Stat(gofs, "docs/sub")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() || info.Name() != "sub" {
		t.Errorf("Stat() = %v %v", info.Name(), info.IsDir())
	}
}
