//go:build linux

package usb

import (
	"errors"
	"runtime"
	"sync"
	"unsafe"

	"github.com/aligator/aums/checkpoint"
	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// Kernel structures from linux/usbdevice_fs.h.
type ctrlTransfer struct {
	requestType uint8
	request     uint8
	value       uint16
	index       uint16
	length      uint16
	timeout     uint32
	data        uintptr
}

type bulkTransfer struct {
	endpoint uint32
	length   uint32
	timeout  uint32
	data     uintptr
}

type ioctlRequest struct {
	ifno      int32
	ioctlCode int32
	data      uintptr
}

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | 'U'<<8 | nr
}

var (
	usbdevfsControl          = ioc(iocRead|iocWrite, 0, unsafe.Sizeof(ctrlTransfer{}))
	usbdevfsBulk             = ioc(iocRead|iocWrite, 2, unsafe.Sizeof(bulkTransfer{}))
	usbdevfsClaimInterface   = ioc(iocRead, 15, unsafe.Sizeof(uint32(0)))
	usbdevfsReleaseInterface = ioc(iocRead, 16, unsafe.Sizeof(uint32(0)))
	usbdevfsIoctl            = ioc(iocRead|iocWrite, 18, unsafe.Sizeof(ioctlRequest{}))
	usbdevfsClearHalt        = ioc(iocRead, 21, unsafe.Sizeof(uint32(0)))
	usbdevfsDisconnect       = ioc(iocNone, 22, 0)
	usbdevfsConnect          = ioc(iocNone, 23, 0)
)

// Class specific requests of the Bulk-Only Transport.
const (
	requestTypeClassInterfaceIn  = 0xA1
	requestTypeClassInterfaceOut = 0x21
	requestGetMaxLUN             = 0xFE
	requestBulkOnlyReset         = 0xFF
)

// USBFS is a Transport talking to a device through the Linux usbfs character devices.
type USBFS struct {
	mu        sync.Mutex
	fd        int
	cfg       Config
	detached  bool
	closed    bool
	timeoutMs uint32
}

// Open opens the usbfs node from cfg, detaches a bound kernel driver and claims the interface.
func Open(cfg Config) (*USBFS, error) {
	fd, err := unix.Open(cfg.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, checkpoint.Wrapf(err, ErrTransport, "open %s", cfg.Path)
	}

	u := &USBFS{
		fd:        fd,
		cfg:       cfg,
		timeoutMs: uint32(cfg.timeout().Milliseconds()),
	}

	if err := u.ifaceIoctl(usbdevfsDisconnect); err == nil {
		u.detached = true
		glog.V(1).Infof("usbfs: detached kernel driver from interface %d", cfg.Interface)
	} else if !errors.Is(err, unix.ENODATA) {
		glog.Warningf("usbfs: could not detach kernel driver: %v", err)
	}

	iface := uint32(cfg.Interface)
	if err := ioctl(fd, usbdevfsClaimInterface, uintptr(unsafe.Pointer(&iface))); err != nil {
		u.reattach()
		_ = unix.Close(fd)
		return nil, checkpoint.Wrapf(err, ErrTransport, "claim interface %d", cfg.Interface)
	}

	return u, nil
}

func ioctl(fd int, req, arg uintptr) error {
	_, err := ioctlRet(fd, req, arg)
	return err
}

func ioctlRet(fd int, req, arg uintptr) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

func (u *USBFS) ifaceIoctl(code uintptr) error {
	req := ioctlRequest{
		ifno:      int32(u.cfg.Interface),
		ioctlCode: int32(code),
	}
	return ioctl(u.fd, usbdevfsIoctl, uintptr(unsafe.Pointer(&req)))
}

func (u *USBFS) reattach() {
	if !u.detached {
		return
	}
	if err := u.ifaceIoctl(usbdevfsConnect); err != nil {
		glog.Warningf("usbfs: could not reattach kernel driver: %v", err)
	}
	u.detached = false
}

func (u *USBFS) bulk(endpoint uint8, p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, checkpoint.From(ErrClosed)
	}

	req := bulkTransfer{
		endpoint: uint32(endpoint),
		length:   uint32(len(p)),
		timeout:  u.timeoutMs,
	}
	if len(p) > 0 {
		req.data = uintptr(unsafe.Pointer(&p[0]))
	}

	n, err := ioctlRet(u.fd, usbdevfsBulk, uintptr(unsafe.Pointer(&req)))
	runtime.KeepAlive(p)
	if err != nil {
		if errors.Is(err, unix.EPIPE) {
			// The endpoint stalled. Clear it so the next command can run.
			ep := uint32(endpoint)
			if cerr := ioctl(u.fd, usbdevfsClearHalt, uintptr(unsafe.Pointer(&ep))); cerr != nil {
				glog.Warningf("usbfs: clear halt on endpoint %#x: %v", endpoint, cerr)
			}
		}
		return n, checkpoint.Wrapf(err, ErrTransport, "endpoint %#x", endpoint)
	}
	return n, nil
}

func (u *USBFS) control(requestType, request uint8, value uint16, data []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, checkpoint.From(ErrClosed)
	}

	req := ctrlTransfer{
		requestType: requestType,
		request:     request,
		value:       value,
		index:       uint16(u.cfg.Interface),
		length:      uint16(len(data)),
		timeout:     u.timeoutMs,
	}
	if len(data) > 0 {
		req.data = uintptr(unsafe.Pointer(&data[0]))
	}

	n, err := ioctlRet(u.fd, usbdevfsControl, uintptr(unsafe.Pointer(&req)))
	runtime.KeepAlive(data)
	return n, err
}

// BulkOut sends p to the configured OUT endpoint.
func (u *USBFS) BulkOut(p []byte) (int, error) {
	return u.bulk(u.cfg.OutEndpoint, p)
}

// BulkIn receives into p from the configured IN endpoint.
func (u *USBFS) BulkIn(p []byte) (int, error) {
	return u.bulk(u.cfg.InEndpoint|0x80, p)
}

// MaxLUN issues GET MAX LUN. Devices without multiple LUNs may stall the request,
// which means LUN 0 only.
func (u *USBFS) MaxLUN() (uint8, error) {
	buf := make([]byte, 1)
	n, err := u.control(requestTypeClassInterfaceIn, requestGetMaxLUN, 0, buf)
	if errors.Is(err, unix.EPIPE) {
		return 0, nil
	}
	if err != nil {
		return 0, checkpoint.Wrapf(err, ErrTransport, "get max lun")
	}
	if n != 1 {
		return 0, nil
	}
	return buf[0], nil
}

// Reset issues a Bulk-Only Mass Storage Reset.
func (u *USBFS) Reset() error {
	_, err := u.control(requestTypeClassInterfaceOut, requestBulkOnlyReset, 0, nil)
	return checkpoint.Wrapf(err, ErrTransport, "bulk-only reset")
}

// Close releases the interface and hands it back to the kernel driver.
func (u *USBFS) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true

	iface := uint32(u.cfg.Interface)
	if err := ioctl(u.fd, usbdevfsReleaseInterface, uintptr(unsafe.Pointer(&iface))); err != nil {
		glog.Warningf("usbfs: release interface %d: %v", u.cfg.Interface, err)
	}
	u.reattach()

	return checkpoint.Wrap(unix.Close(u.fd), ErrTransport)
}
