// Command aums works with the files on a USB mass storage device or a raw disk image
// without mounting it through the kernel.
//
// Usage:
//  aums --device /dev/bus/usb/001/004 ls -l /
//  aums --image disk.img put notes.txt /docs/notes.txt
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

// tool holds what the commands share.
type tool struct {
	// host is the local filesystem for images and for get and put.
	host afero.Fs
	cfg  config
}

func newApp(host afero.Fs) *cli.App {
	t := &tool{host: host}

	return &cli.App{
		Name:  "aums",
		Usage: "access files on USB mass storage devices and disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration file", Value: defaultConfigPath()},
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "raw disk image to open instead of a device"},
			&cli.BoolFlag{Name: "read-only", Usage: "open the image read only"},
			&cli.IntFlag{Name: "block-size", Usage: "block size of the image"},
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "usbfs node of the device, e.g. /dev/bus/usb/001/004"},
			&cli.UintFlag{Name: "interface", Usage: "mass storage interface number"},
			&cli.UintFlag{Name: "in", Usage: "bulk IN endpoint number"},
			&cli.UintFlag{Name: "out", Usage: "bulk OUT endpoint number"},
			&cli.DurationFlag{Name: "timeout", Usage: "timeout of a single transfer"},
			&cli.UintFlag{Name: "lun", Usage: "logical unit"},
			&cli.IntFlag{Name: "partition", Aliases: []string{"p"}, Usage: "index of the mounted filesystem"},
			&cli.StringFlag{Name: "tz", Usage: "time zone of the timestamps on the device"},
			&cli.IntFlag{Name: "verbose", Usage: "log verbosity"},
		},
		Before:   t.configure,
		Commands: t.commands(),
	}
}

// configure loads the configuration file and applies the flags on top of it.
func (t *tool) configure(c *cli.Context) error {
	cfg, err := loadConfig(t.host, c.String("config"), c.IsSet("config"))
	if err != nil {
		return err
	}

	if c.IsSet("image") {
		cfg.Image = c.String("image")
	}
	if c.IsSet("read-only") {
		cfg.ReadOnly = c.Bool("read-only")
	}
	if c.IsSet("block-size") {
		cfg.BlockSize = c.Int("block-size")
	}
	if c.IsSet("device") {
		cfg.USB.Path = c.String("device")
	}
	if c.IsSet("interface") {
		cfg.USB.Interface = uint8(c.Uint("interface"))
	}
	if c.IsSet("in") {
		cfg.USB.InEndpoint = uint8(c.Uint("in"))
	}
	if c.IsSet("out") {
		cfg.USB.OutEndpoint = uint8(c.Uint("out"))
	}
	if c.IsSet("timeout") {
		cfg.USB.Timeout = c.Duration("timeout")
	}
	if c.IsSet("lun") {
		cfg.LUN = uint8(c.Uint("lun"))
	}
	if c.IsSet("partition") {
		cfg.Partition = c.Int("partition")
	}
	if c.IsSet("tz") {
		cfg.TimeZone = c.String("tz")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Int("verbose")
	}

	setupLogging(cfg.Verbose)
	t.cfg = cfg
	return nil
}

// setupLogging configures glog, which registers its flags on the standard flag set.
func setupLogging(verbose int) {
	if !flag.Parsed() {
		_ = flag.CommandLine.Parse(nil)
	}
	_ = flag.Set("logtostderr", "true")
	_ = flag.Set("v", strconv.Itoa(verbose))
}

// withSession opens the configured image or device for the duration of fn.
func (t *tool) withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := open(t.host, t.cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.close(); err != nil {
				glog.Warningf("aums: close: %v", err)
			}
		}()
		return fn(c, s)
	}
}

func main() {
	defer glog.Flush()

	if err := newApp(afero.NewOsFs()).Run(os.Args); err != nil {
		glog.Flush()
		fmt.Fprintln(os.Stderr, "aums:", err)
		os.Exit(1)
	}
}
