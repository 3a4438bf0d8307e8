// Command mkimage creates raw disk images with FAT16 and FAT32 volumes.
//
//  mkimage --size 64MiB --fs fat32:32MiB:DATA --fs fat16 disk.img
//  mkimage --size 16MiB --raw --fs fat16 floppy.img
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aligator/aums/block"
	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fat"
	"github.com/aligator/aums/partition"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

// options of a single image.
type options struct {
	Size    uint64
	Volumes []volume
	// Raw creates a single volume without partition table.
	Raw               bool
	SectorsPerCluster uint8
	Now               func() time.Time
}

// build creates the image name on host. An existing file is replaced.
func build(host afero.Fs, name string, opts options) error {
	f, err := host.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return checkpoint.From(err)
	}
	if err := f.Truncate(int64(opts.Size)); err != nil {
		_ = f.Close()
		return checkpoint.From(err)
	}

	d := block.NewFileDevice(f, block.DefaultBlockSize)
	if err := d.Init(); err != nil {
		_ = d.Close()
		return err
	}
	if err := format(block.NewByteDevice(d), opts); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}

func format(dev *block.ByteDevice, opts options) error {
	formatOptions := func(v volume, hidden uint32) fat.FormatOptions {
		return fat.FormatOptions{
			Type:              v.Type,
			Label:             v.Label,
			SectorsPerCluster: opts.SectorsPerCluster,
			HiddenSectors:     hidden,
			Now:               opts.Now,
		}
	}

	if opts.Raw {
		if len(opts.Volumes) != 1 {
			return checkpoint.Wrapf(fmt.Errorf("%d volumes", len(opts.Volumes)), errInvalidLayout, "raw image")
		}
		return fat.Format(dev, formatOptions(opts.Volumes[0], 0))
	}

	sectors := uint64(dev.Size()) / uint64(dev.BlockSize())
	entries, err := layout(opts.Volumes, sectors, dev.BlockSize())
	if err != nil {
		return err
	}

	mbr := make([]byte, dev.BlockSize())
	if err := partition.WriteMBR(mbr, entries); err != nil {
		return err
	}
	if _, err := dev.WriteAt(mbr, 0); err != nil {
		return checkpoint.From(err)
	}

	for i, e := range entries {
		w, err := dev.Window(int64(e.StartLBA), int64(e.Sectors))
		if err != nil {
			return err
		}
		if err := fat.Format(w, formatOptions(opts.Volumes[i], e.StartLBA)); err != nil {
			return err
		}
		glog.V(1).Infof("mkimage: partition %d: %v at sector %d, %d sectors", i, e.Type, e.StartLBA, e.Sectors)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:      "mkimage",
		Usage:     "create a disk image with FAT volumes",
		ArgsUsage: "image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "size", Aliases: []string{"s"}, Value: "64MiB", Usage: "image size"},
			&cli.StringSliceFlag{Name: "fs", Usage: "volume as type[:size[:label]], type is fat16 or fat32, repeatable"},
			&cli.BoolFlag{Name: "raw", Usage: "a single volume without partition table"},
			&cli.UintFlag{Name: "sectors-per-cluster", Usage: "cluster size in sectors, chosen automatically by default"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: mkimage [options] image", 2)
			}

			size, err := humanize.ParseBytes(c.String("size"))
			if err != nil {
				return checkpoint.Wrapf(err, errInvalidLayout, "size")
			}
			values := c.StringSlice("fs")
			if len(values) == 0 {
				values = []string{"fat32"}
			}
			opts := options{
				Size:              size,
				Raw:               c.Bool("raw"),
				SectorsPerCluster: uint8(c.Uint("sectors-per-cluster")),
			}
			for _, s := range values {
				v, err := parseVolume(s)
				if err != nil {
					return err
				}
				opts.Volumes = append(opts.Volumes, v)
			}

			if err := build(afero.NewOsFs(), c.Args().First(), opts); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "created %s (%s)\n", c.Args().First(), humanize.IBytes(size))
			return nil
		},
	}

	err := app.Run(os.Args)
	glog.Flush()
	if err != nil {
		var exit cli.ExitCoder
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "mkimage:", err)
		}
		os.Exit(1)
	}
}
