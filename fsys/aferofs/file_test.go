package aferofs

import (
	"errors"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestFile_Seek(t *testing.T) {
	type args struct {
		offset int64
		whence int
	}
	tests := []struct {
		name    string
		start   int64
		args    args
		want    int64
		wantErr error
	}{
		{name: "from start", args: args{offset: 3, whence: io.SeekStart}, want: 3},
		{name: "from current", start: 2, args: args{offset: 3, whence: io.SeekCurrent}, want: 5},
		{name: "backwards from current", start: 5, args: args{offset: -2, whence: io.SeekCurrent}, want: 3},
		{name: "from end", args: args{offset: -1, whence: io.SeekEnd}, want: 7},
		{name: "to the end", args: args{offset: 0, whence: io.SeekEnd}, want: 8},
		{name: "before start", args: args{offset: -1, whence: io.SeekStart}, wantErr: afero.ErrOutOfRange},
		{name: "behind end", args: args{offset: 1, whence: io.SeekEnd}, wantErr: afero.ErrOutOfRange},
		{name: "invalid whence", args: args{offset: 0, whence: 42}, wantErr: syscall.EINVAL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := testingPopulated(t)
			f, err := fs.Open("docs/README.md")
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			f.(*File).offset = tt.start

			got, err := f.Seek(tt.args.offset, tt.args.whence)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("File.Seek() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, ErrSeekFile) {
					t.Errorf("File.Seek() error = %v, want %v", err, ErrSeekFile)
				}
				return
			}
			if err != nil {
				t.Fatalf("File.Seek() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("File.Seek() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFile_Read(t *testing.T) {
	fs := testingPopulated(t)
	f, err := fs.Open("docs/HelloWorldThisIsALoongFileName.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf := make([]byte, 5)
	var got []string
	for {
		n, err := f.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("File.Read() error = %v", err)
		}
		got = append(got, string(buf[:n]))
	}
	if diff := cmp.Diff([]string{"Hello", " Worl", "d\n"}, got); diff != "" {
		t.Errorf("File.Read() mismatch (-want +got):\n%s", diff)
	}

	if n, err := f.Read(nil); n != 0 || err != nil {
		t.Errorf("File.Read(nil) = %v, %v, want 0, nil", n, err)
	}
}

func TestFile_Write_readOnly(t *testing.T) {
	fs := testingPopulated(t)
	f, err := fs.Open("docs/README.md")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("x")); !errors.Is(err, syscall.EBADF) {
		t.Errorf("File.Write() error = %v, want %v", err, syscall.EBADF)
	}
	if err := f.Truncate(0); !errors.Is(err, syscall.EBADF) {
		t.Errorf("File.Truncate() error = %v, want %v", err, syscall.EBADF)
	}
}

func TestFile_WriteAt(t *testing.T) {
	fs := testingPopulated(t)
	f, err := fs.OpenFile("docs/README.md", os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.WriteAt([]byte("World"), 2); err != nil {
		t.Fatalf("File.WriteAt() error = %v", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("!"); err != nil {
		t.Fatalf("File.WriteString() error = %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("File.Sync() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("File.Close() error = %v", err)
	}
	if err := f.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("second File.Close() error = %v, want %v", err, os.ErrClosed)
	}

	got, err := afero.ReadFile(fs, "docs/README.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "# World\n!" {
		t.Errorf("content = %q, want %q", got, "# World\n!")
	}
}

func TestFile_Truncate(t *testing.T) {
	fs := testingPopulated(t)
	f, err := fs.OpenFile("docs/README.md", os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := f.Truncate(3); err != nil {
		t.Fatalf("File.Truncate() error = %v", err)
	}
	info, _ := f.Stat()
	if info.Size() != 3 {
		t.Errorf("size = %v, want 3", info.Size())
	}
	if err := f.Truncate(-1); err == nil {
		t.Error("File.Truncate(-1) succeeded")
	}
}

func TestFile_Readdir(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  [][]string
	}{
		{name: "all at once", count: -1, want: [][]string{{"sub", "README.md", "HelloWorldThisIsALoongFileName.txt"}}},
		{name: "one by one", count: 1, want: [][]string{{"sub"}, {"README.md"}, {"HelloWorldThisIsALoongFileName.txt"}}},
		{name: "in pairs", count: 2, want: [][]string{{"sub", "README.md"}, {"HelloWorldThisIsALoongFileName.txt"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := testingPopulated(t)
			f, err := fs.Open("docs")
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			var got [][]string
			for {
				names, err := f.Readdirnames(tt.count)
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatalf("File.Readdirnames() error = %v", err)
				}
				got = append(got, names)
				if tt.count <= 0 {
					break
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("File.Readdirnames() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFile_Readdir_file(t *testing.T) {
	fs := testingPopulated(t)
	f, err := fs.Open("empty")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Readdir(-1); !errors.Is(err, syscall.ENOTDIR) {
		t.Errorf("File.Readdir() error = %v, want %v", err, syscall.ENOTDIR)
	}
}
