package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fsys/aferofs"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

func (t *tool) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "info",
			Usage:  "show the device and its partitions",
			Action: t.withSession(t.info),
		},
		{
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[path]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "show size and modification time"},
			},
			Action: t.withSession(t.ls),
		},
		{
			Name:      "tree",
			Usage:     "list a directory recursively",
			ArgsUsage: "[path]",
			Action:    t.withSession(t.tree),
		},
		{
			Name:      "cat",
			Usage:     "print a file",
			ArgsUsage: "path",
			Action:    t.withSession(t.cat),
		},
		{
			Name:      "get",
			Usage:     "copy a file from the device",
			ArgsUsage: "path [local]",
			Action:    t.withSession(t.get),
		},
		{
			Name:      "put",
			Usage:     "copy a local file to the device",
			ArgsUsage: "local path",
			Action:    t.withSession(t.put),
		},
		{
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "path",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "parents", Aliases: []string{"p"}, Usage: "create missing parents"},
			},
			Action: t.withSession(t.mkdir),
		},
		{
			Name:      "rm",
			Usage:     "remove a file or an empty directory",
			ArgsUsage: "path",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "remove directories with their content"},
			},
			Action: t.withSession(t.rm),
		},
		{
			Name:      "mv",
			Usage:     "move or rename, replacing an existing file",
			ArgsUsage: "from to",
			Action:    t.withSession(t.mv),
		},
		{
			Name:      "rename",
			Usage:     "rename a file or directory in place",
			ArgsUsage: "path name",
			Action:    t.withSession(t.rename),
		},
		{
			Name:   "df",
			Usage:  "show the space of all mounted filesystems",
			Action: t.withSession(t.df),
		},
	}
}

// args returns exactly min to max arguments.
func args(c *cli.Context, min, max int) ([]string, error) {
	if c.NArg() < min || c.NArg() > max {
		return nil, cli.Exit(fmt.Sprintf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage), 2)
	}
	return c.Args().Slice(), nil
}

func (t *tool) info(c *cli.Context, s *session) error {
	w := c.App.Writer
	if s.inquiry != nil {
		fmt.Fprintf(w, "device:     %v\n", *s.inquiry)
	} else {
		fmt.Fprintf(w, "image:      %s\n", s.cfg.Image)
	}
	fmt.Fprintf(w, "size:       %s\n", humanize.IBytes(uint64(s.size)))

	for _, p := range s.partitions {
		kind := fmt.Sprintf("%v (%#02x)", p.Type, p.RawType)
		if p.Raw {
			kind = "whole device"
		}
		fmt.Fprintf(w, "partition %d: %s, start %d, %s", p.Index, kind, p.StartLBA, humanize.IBytes(uint64(p.Sectors)*uint64(s.blockSize())))
		if fs := p.FileSystem(); fs != nil {
			fmt.Fprintf(w, ", %v", fs.Type())
			if label := fs.VolumeLabel(); label != "" {
				fmt.Fprintf(w, " %q", label)
			}
		} else if p.Err() != nil {
			fmt.Fprintf(w, ", not mounted: %v", p.Err())
		}
		fmt.Fprintln(w)
	}
	return nil
}

func (s *session) blockSize() int {
	for _, p := range s.partitions {
		if d := p.Device(); d != nil {
			return d.BlockSize()
		}
	}
	return s.cfg.BlockSize
}

func (t *tool) ls(c *cli.Context, s *session) error {
	a, err := args(c, 0, 1)
	if err != nil {
		return err
	}
	fs, err := s.fs()
	if err != nil {
		return err
	}

	name := "/"
	if len(a) > 0 {
		name = a[0]
	}
	info, err := fs.Stat(name)
	if err != nil {
		return err
	}
	entries := []os.FileInfo{info}
	if info.IsDir() {
		if entries, err = afero.ReadDir(fs, name); err != nil {
			return err
		}
	}

	w := c.App.Writer
	for _, e := range entries {
		if !c.Bool("long") {
			fmt.Fprintln(w, e.Name())
			continue
		}
		size := "-"
		if !e.IsDir() {
			size = humanize.IBytes(uint64(e.Size()))
		}
		fmt.Fprintf(w, "%v %9s %s %s\n", e.Mode(), size, e.ModTime().Format("2006-01-02 15:04"), e.Name())
	}
	return nil
}

func (t *tool) tree(c *cli.Context, s *session) error {
	a, err := args(c, 0, 1)
	if err != nil {
		return err
	}
	selected, err := s.selected()
	if err != nil {
		return err
	}

	root := "."
	if len(a) > 0 {
		if p := strings.Trim(path.Clean("/"+a[0]), "/"); p != "" {
			root = p
		}
	}
	w := c.App.Writer
	return fs.WalkDir(aferofs.NewGoFS(selected), root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			fmt.Fprintln(w, path.Join("/", p))
			return nil
		}
		rel := p
		if root != "." {
			rel = strings.TrimPrefix(p, root+"/")
		}
		name := d.Name()
		if d.IsDir() {
			name += "/"
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", strings.Count(rel, "/")+1), name)
		return nil
	})
}

func (t *tool) cat(c *cli.Context, s *session) error {
	a, err := args(c, 1, 1)
	if err != nil {
		return err
	}
	fs, err := s.fs()
	if err != nil {
		return err
	}

	f, err := fs.Open(a[0])
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(c.App.Writer, f)
	return checkpoint.From(err)
}

func (t *tool) get(c *cli.Context, s *session) error {
	a, err := args(c, 1, 2)
	if err != nil {
		return err
	}
	fs, err := s.fs()
	if err != nil {
		return err
	}

	local := path.Base(a[0])
	if len(a) > 1 {
		local = a[1]
	}
	n, err := copyFile(t.host, local, fs, a[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s -> %s (%s)\n", a[0], local, humanize.IBytes(uint64(n)))
	return nil
}

func (t *tool) put(c *cli.Context, s *session) error {
	a, err := args(c, 2, 2)
	if err != nil {
		return err
	}
	fs, err := s.fs()
	if err != nil {
		return err
	}

	dst := a[1]
	if ok, err := afero.DirExists(fs, dst); err != nil {
		return err
	} else if ok {
		dst = path.Join(dst, filepath.Base(a[0]))
	}
	n, err := copyFile(fs, dst, t.host, a[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s -> %s (%s)\n", a[0], dst, humanize.IBytes(uint64(n)))
	return nil
}

// copyFile copies src from srcFs to dst on dstFs, replacing dst.
func copyFile(dstFs afero.Fs, dst string, srcFs afero.Fs, src string) (int64, error) {
	in, err := srcFs.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := dstFs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, checkpoint.From(err)
	}
	return n, out.Close()
}

func (t *tool) mkdir(c *cli.Context, s *session) error {
	a, err := args(c, 1, 1)
	if err != nil {
		return err
	}
	fs, err := s.fs()
	if err != nil {
		return err
	}

	if c.Bool("parents") {
		return fs.MkdirAll(a[0], 0755)
	}
	return fs.Mkdir(a[0], 0755)
}

func (t *tool) rm(c *cli.Context, s *session) error {
	a, err := args(c, 1, 1)
	if err != nil {
		return err
	}
	fs, err := s.fs()
	if err != nil {
		return err
	}

	if c.Bool("recursive") {
		if ok, err := afero.Exists(fs, a[0]); err != nil {
			return err
		} else if !ok {
			return &os.PathError{Op: "remove", Path: a[0], Err: os.ErrNotExist}
		}
		return fs.RemoveAll(a[0])
	}
	return fs.Remove(a[0])
}

func (t *tool) mv(c *cli.Context, s *session) error {
	a, err := args(c, 2, 2)
	if err != nil {
		return err
	}
	fs, err := s.fs()
	if err != nil {
		return err
	}
	return fs.Rename(a[0], a[1])
}

// rename changes the name only and fails if the name is taken.
func (t *tool) rename(c *cli.Context, s *session) error {
	a, err := args(c, 2, 2)
	if err != nil {
		return err
	}
	fs, err := s.selected()
	if err != nil {
		return err
	}

	p := strings.TrimPrefix(path.Clean("/"+a[0]), "/")
	n, err := fs.Root().Search(p)
	if err != nil {
		return err
	}
	if n == nil || n.IsRoot() {
		return &os.PathError{Op: "rename", Path: a[0], Err: os.ErrNotExist}
	}
	return n.Rename(a[1])
}

func (t *tool) df(c *cli.Context, s *session) error {
	w := c.App.Writer
	fmt.Fprintf(w, "%-3s %-6s %-11s %9s %9s %9s %5s\n", "#", "type", "label", "size", "used", "free", "use%")
	for i, fs := range s.fileSystems() {
		used := fs.OccupiedSpace()
		percent := 0.0
		if fs.Capacity() > 0 {
			percent = float64(used) * 100 / float64(fs.Capacity())
		}
		fmt.Fprintf(w, "%-3d %-6v %-11s %9s %9s %9s %4.0f%%\n",
			i, fs.Type(), fs.VolumeLabel(),
			humanize.IBytes(uint64(fs.Capacity())),
			humanize.IBytes(uint64(used)),
			humanize.IBytes(uint64(fs.FreeSpace())),
			percent)
	}
	return nil
}
