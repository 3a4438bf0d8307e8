// Package aums accesses USB mass storage devices from user space.
//
// A Device speaks the Bulk-Only Transport over a usb.Transport, issues SCSI
// block commands, discovers the partitions and mounts their filesystems:
//  t, err := usb.Open(usb.Config{Path: "/dev/bus/usb/001/004", InEndpoint: 1, OutEndpoint: 2})
//  dev := aums.New(t, aums.Options{})
//  if err := dev.Init(); err != nil { ... }
//  root := dev.Partitions()[0].FileSystem().Root()
package aums

import (
	"fmt"

	"github.com/aligator/aums/block"
	"github.com/aligator/aums/bot"
	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/fat"
	"github.com/aligator/aums/fsys"
	"github.com/aligator/aums/partition"
	"github.com/aligator/aums/scsi"
	"github.com/aligator/aums/usb"
	"github.com/golang/glog"
)

// Options configure a Device.
type Options struct {
	// LUN is the logical unit to use.
	LUN uint8
	// Probes are tried in order on every partition. Default is a single fat.Probe.
	Probes []fsys.Probe
}

// Device is a mass storage device with its partitions.
type Device struct {
	transport usb.Transport
	opts      Options

	engine     *bot.Engine
	scsi       *scsi.Device
	bytes      *block.ByteDevice
	partitions []*partition.Partition
}

// New creates a device on top of an opened transport. Call Init before use.
func New(t usb.Transport, opts Options) *Device {
	if len(opts.Probes) == 0 {
		opts.Probes = []fsys.Probe{fat.Probe{}}
	}
	return &Device{
		transport: t,
		opts:      opts,
	}
}

// Init initializes the SCSI device and mounts all partitions.
// Partitions without supported filesystem are kept, see partition.Partition.Err.
func (d *Device) Init() error {
	if maxLUN, err := d.MaxLUN(); err == nil && d.opts.LUN > maxLUN {
		return checkpoint.Wrapf(fmt.Errorf("lun %d of %d", d.opts.LUN, maxLUN), scsi.ErrUnsupportedDevice, "init")
	}

	d.engine = bot.NewEngine(d.transport)
	d.scsi = scsi.NewDevice(d.engine, d.opts.LUN)
	if err := d.scsi.Init(); err != nil {
		return err
	}
	d.bytes = block.NewByteDevice(d.scsi)

	partitions, err := partition.Discover(d.bytes, d.opts.Probes)
	if err != nil {
		return err
	}
	d.partitions = partitions
	glog.V(1).Infof("aums: lun %d has %d partitions", d.opts.LUN, len(partitions))
	return nil
}

// MaxLUN returns the highest logical unit of the device, 0 if the transport cannot query it.
func (d *Device) MaxLUN() (uint8, error) {
	q, ok := d.transport.(usb.LUNQuerier)
	if !ok {
		return 0, nil
	}
	return q.MaxLUN()
}

// BlockDevice returns the SCSI block device. It is nil before Init.
func (d *Device) BlockDevice() *scsi.Device {
	return d.scsi
}

// Partitions in partition table order.
func (d *Device) Partitions() []*partition.Partition {
	return d.partitions
}

// FileSystems returns the mounted filesystems in partition order.
func (d *Device) FileSystems() []fsys.FileSystem {
	var result []fsys.FileSystem
	for _, p := range d.partitions {
		if fs := p.FileSystem(); fs != nil {
			result = append(result, fs)
		}
	}
	return result
}

// Close closes the transport. The filesystems must not be used afterwards.
func (d *Device) Close() error {
	return d.transport.Close()
}
