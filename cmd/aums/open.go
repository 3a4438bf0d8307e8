package main

import (
	"errors"
	"fmt"

	"github.com/aligator/aums"
	"github.com/aligator/aums/block"
	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fat"
	"github.com/aligator/aums/fsys"
	"github.com/aligator/aums/fsys/aferofs"
	"github.com/aligator/aums/partition"
	"github.com/aligator/aums/scsi"
	"github.com/aligator/aums/usb"
	"github.com/golang/glog"
	"github.com/spf13/afero"
)

var errNoFileSystem = errors.New("no mounted filesystem")

// session is an opened image or device with its partitions.
type session struct {
	cfg        config
	size       int64
	inquiry    *scsi.InquiryResponse
	partitions []*partition.Partition
	close      func() error
}

// open opens the image or the USB device named in cfg.
// The image is opened through host, so tests can use an in-memory filesystem.
func open(host afero.Fs, cfg config) (*session, error) {
	loc, err := cfg.location()
	if err != nil {
		return nil, err
	}
	probes := []fsys.Probe{fat.Probe{Location: loc}}

	if cfg.Image != "" {
		d, err := block.OpenFile(host, cfg.Image, cfg.BlockSize, cfg.ReadOnly)
		if err != nil {
			return nil, err
		}
		bytes := block.NewByteDevice(d)
		partitions, err := partition.Discover(bytes, probes)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		glog.V(1).Infof("aums: opened image %s", cfg.Image)
		return &session{cfg: cfg, size: bytes.Size(), partitions: partitions, close: d.Close}, nil
	}

	if cfg.USB.Path == "" {
		return nil, checkpoint.From(errors.New("neither an image nor a usb device configured"))
	}
	t, err := usb.Open(cfg.USB)
	if err != nil {
		return nil, err
	}
	dev := aums.New(t, aums.Options{LUN: cfg.LUN, Probes: probes})
	if err := dev.Init(); err != nil {
		_ = dev.Close()
		return nil, err
	}
	inquiry := dev.BlockDevice().Inquiry()
	size := dev.BlockDevice().Blocks() * int64(dev.BlockDevice().BlockSize())
	glog.V(1).Infof("aums: opened %s", cfg.USB.Path)
	return &session{cfg: cfg, size: size, inquiry: &inquiry, partitions: dev.Partitions(), close: dev.Close}, nil
}

func (s *session) fileSystems() []fsys.FileSystem {
	var result []fsys.FileSystem
	for _, p := range s.partitions {
		if fs := p.FileSystem(); fs != nil {
			result = append(result, fs)
		}
	}
	return result
}

// selected returns the filesystem chosen by the partition index.
func (s *session) selected() (fsys.FileSystem, error) {
	all := s.fileSystems()
	if s.cfg.Partition < 0 || s.cfg.Partition >= len(all) {
		return nil, checkpoint.Wrapf(fmt.Errorf("index %d of %d", s.cfg.Partition, len(all)), errNoFileSystem, "select partition")
	}
	return all[s.cfg.Partition], nil
}

// fs returns the selected filesystem as afero.Fs.
func (s *session) fs() (*aferofs.Fs, error) {
	fs, err := s.selected()
	if err != nil {
		return nil, err
	}
	return aferofs.New(fs), nil
}
