package xesub

import (
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/drmwrapper/xekit/drm"
)

// Device is an open session to one GPU render node. It owns the node handle
// and must outlive every VM, buffer, queue and fence created through it.
type Device struct {
	logger *slog.Logger
	drv    drm.Driver
	path   string

	// Enumeration snapshots, fetched once per session.
	regions []drm.MemRegion
	engines []drm.Engine
}

// OpenDevice opens the render node at path. A failed open is fatal to the
// caller's workflow and is never retried here.
func OpenDevice(logger *slog.Logger, path string) (*Device, error) {
	node, err := drm.OpenNode(path)
	if err != nil {
		return nil, errors.Mark(err, ErrSetup)
	}

	dev := NewDevice(logger, node)
	dev.path = path
	dev.logger.Info("opened device", "path", path)
	return dev, nil
}

// NewDevice wraps an already-open driver. Used directly by tests, which
// inject a mock driver.
func NewDevice(logger *slog.Logger, drv drm.Driver) *Device {
	return &Device{
		logger: logger.With("component", "device"),
		drv:    drv,
	}
}

func (d *Device) Path() string {
	return d.path
}

// query runs the two-phase variable-length query protocol: probe with a
// zero-length buffer for the payload size, then fetch into a buffer of that
// size. Every structured enumeration against the device goes through here.
func (d *Device) query(kind uint32, name string) ([]byte, error) {
	req := drm.DeviceQuery{Query: kind}

	err := d.drv.Ioctl(drm.IoctlDeviceQuery, unsafe.Pointer(&req))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "device query %s: size probe", name), ErrSetup)
	}

	if req.Size == 0 {
		return nil, errors.Mark(errors.Newf("device query %s: driver reported zero payload size", name), ErrSetup)
	}

	payload := make([]byte, req.Size)
	req.Data = uint64(uintptr(unsafe.Pointer(&payload[0])))

	err = d.drv.Ioctl(drm.IoctlDeviceQuery, unsafe.Pointer(&req))
	runtime.KeepAlive(payload)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "device query %s: fetch of %d bytes", name, req.Size), ErrSetup)
	}

	return payload, nil
}

// Close releases the device handle. The kernel tears down any VM, buffer,
// queue or fence still alive on it; prefer explicit destruction first.
func (d *Device) Close() error {
	return d.drv.Close()
}
