package xesub

import (
	"runtime"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/drmwrapper/xekit/drm"
)

// Fence is a binary completion signal backed by a DRM syncobj. It is created
// once, then reset and reused across many submissions.
type Fence struct {
	dev       *Device
	handle    uint32
	destroyed bool
}

// NewFence creates an unsignaled binary fence.
func (d *Device) NewFence() (*Fence, error) {
	req := drm.SyncobjCreate{}
	if err := d.drv.Ioctl(drm.IoctlSyncobjCreate, unsafe.Pointer(&req)); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "SYNCOBJ_CREATE"), ErrSync)
	}
	return &Fence{dev: d, handle: req.Handle}, nil
}

func (f *Fence) Handle() uint32 {
	return f.handle
}

// Reset forces the fence back to the unsignaled state. Must be called before
// every reuse in a new submission.
func (f *Fence) Reset() error {
	handle := f.handle
	req := drm.SyncobjArray{
		Handles:      uint64(uintptr(unsafe.Pointer(&handle))),
		CountHandles: 1,
	}

	err := f.dev.drv.Ioctl(drm.IoctlSyncobjReset, unsafe.Pointer(&req))
	runtime.KeepAlive(&handle)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "SYNCOBJ_RESET fence %d", f.handle), ErrSync)
	}
	return nil
}

// Wait blocks until the fence signals or the timeout elapses. A non-positive
// timeout waits without bound, so a hung device hangs the calling thread;
// that trade is the caller's to make. Timeouts are reported distinctly
// (IsTimeout) from driver faults.
func (f *Fence) Wait(timeout time.Duration) error {
	handle := f.handle
	req := drm.SyncobjWaitReq{
		Handles:      uint64(uintptr(unsafe.Pointer(&handle))),
		TimeoutNsec:  absTimeout(timeout),
		CountHandles: 1,
	}

	err := f.dev.drv.Ioctl(drm.IoctlSyncobjWait, unsafe.Pointer(&req))
	runtime.KeepAlive(&handle)
	if err == nil {
		return nil
	}

	if errors.Is(err, unix.ETIME) {
		return errors.Mark(
			errors.Mark(errors.Wrapf(err, "SYNCOBJ_WAIT fence %d after %s", f.handle, timeout), ErrTimeout),
			ErrSync)
	}
	return errors.Mark(errors.Wrapf(err, "SYNCOBJ_WAIT fence %d", f.handle), ErrSync)
}

// Signaled probes the fence state without blocking.
func (f *Fence) Signaled() (bool, error) {
	err := f.Wait(time.Nanosecond)
	if err == nil {
		return true, nil
	}
	if IsTimeout(err) {
		return false, nil
	}
	return false, err
}

// Destroy releases the syncobj. Idempotent.
func (f *Fence) Destroy() error {
	if f.destroyed {
		return nil
	}

	req := drm.SyncobjDestroy{Handle: f.handle}
	if err := f.dev.drv.Ioctl(drm.IoctlSyncobjDestroy, unsafe.Pointer(&req)); err != nil {
		return errors.Mark(errors.Wrapf(err, "SYNCOBJ_DESTROY fence %d", f.handle), ErrSync)
	}

	f.destroyed = true
	return nil
}

// absTimeout converts a relative wait budget into the absolute
// CLOCK_MONOTONIC deadline the syncobj wait ioctl expects. Non-positive
// budgets become an effectively unbounded deadline.
func absTimeout(timeout time.Duration) int64 {
	if timeout <= 0 {
		return int64(^uint64(0) >> 1)
	}

	var now unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &now); err != nil {
		return int64(^uint64(0) >> 1)
	}

	deadline := now.Nano() + timeout.Nanoseconds()
	if deadline < now.Nano() {
		return int64(^uint64(0) >> 1)
	}
	return deadline
}
