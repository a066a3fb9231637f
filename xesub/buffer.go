package xesub

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/drmwrapper/xekit/drm"
)

// Buffer is a GPU memory allocation owned by one VM, referenced by an opaque
// GEM handle and optionally CPU-mapped.
type Buffer struct {
	dev       *Device
	vm        *VM
	handle    uint32
	size      uint64
	placement Placement
	caching   uint16

	view   *MemoryView
	closed bool
}

// MemoryView is a live CPU mapping of a buffer. The GPU command stream is a
// little-endian word stream, so word accessors encode explicitly rather than
// relying on host byte order.
type MemoryView struct {
	data []byte
}

func (v *MemoryView) Len() int {
	return len(v.data)
}

func (v *MemoryView) Bytes() []byte {
	return v.data
}

func (v *MemoryView) Word(index int) uint32 {
	return binary.LittleEndian.Uint32(v.data[index*4:])
}

func (v *MemoryView) PutWord(index int, value uint32) {
	binary.LittleEndian.PutUint32(v.data[index*4:], value)
}

// CreateBuffer allocates size bytes placeable in the regions selected by
// placement. Misconfigurations the kernel would reject anyway (empty mask,
// size off the page-size floor) are rejected here with the requested
// parameters attached, since they are the dominant real-world failure class.
func (d *Device) CreateBuffer(vm *VM, size uint64, placement Placement, caching uint16) (*Buffer, error) {
	if placement.Mask == 0 {
		return nil, errors.Mark(
			errors.Newf("GEM_CREATE of %d bytes: empty placement mask", size),
			ErrResource)
	}
	if size == 0 || size%uint64(placement.MinPageSize) != 0 {
		return nil, errors.Mark(
			errors.Newf("GEM_CREATE of %d bytes: size must be a positive multiple of the %d-byte region page size",
				size, placement.MinPageSize),
			ErrResource)
	}

	req := drm.GemCreate{
		Size:       size,
		Placement:  placement.Mask,
		VmID:       vm.id,
		CPUCaching: caching,
	}
	if err := d.drv.Ioctl(drm.IoctlGemCreate, unsafe.Pointer(&req)); err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "GEM_CREATE of %d bytes, placement %#x, vm %d", size, placement.Mask, vm.id),
			ErrResource)
	}

	d.logger.Debug("buffer created", "handle", req.Handle, "size", req.Size, "vm_id", vm.id)

	return &Buffer{
		dev:       d,
		vm:        vm,
		handle:    req.Handle,
		size:      req.Size, // the kernel may round up to its granularity
		placement: placement,
		caching:   caching,
	}, nil
}

func (b *Buffer) Handle() uint32 {
	return b.handle
}

// Size returns the allocated size, which is the requested size rounded up to
// the granularity the driver reports.
func (b *Buffer) Size() uint64 {
	return b.size
}

func (b *Buffer) VM() *VM {
	return b.vm
}

// Map establishes the CPU mapping of the buffer: first an mmap-able offset
// token from the device, then the process mapping at that offset. At most
// one mapping is live at a time.
func (b *Buffer) Map() (*MemoryView, error) {
	if b.closed {
		return nil, errors.Mark(errors.Newf("map of closed buffer %d", b.handle), ErrResource)
	}
	if b.view != nil {
		return nil, errors.Mark(errors.Newf("buffer %d is already mapped", b.handle), ErrResource)
	}

	req := drm.GemMmapOffset{Handle: b.handle}
	if err := b.dev.drv.Ioctl(drm.IoctlGemMmapOffset, unsafe.Pointer(&req)); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "GEM_MMAP_OFFSET for buffer %d", b.handle), ErrResource)
	}

	data, err := b.dev.drv.Mmap(int(b.size), int64(req.Offset))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "mmap of buffer %d", b.handle), ErrResource)
	}

	b.view = &MemoryView{data: data}
	return b.view, nil
}

// Unmap releases the CPU mapping, if any.
func (b *Buffer) Unmap() error {
	if b.view == nil {
		return nil
	}

	err := b.dev.drv.Munmap(b.view.data)
	b.view = nil
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "munmap of buffer %d", b.handle), ErrResource)
	}
	return nil
}

// Close unmaps and releases the GEM handle. Idempotent.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}

	err := b.Unmap()

	req := drm.GemClose{Handle: b.handle}
	if ioctlErr := b.dev.drv.Ioctl(drm.IoctlGemClose, unsafe.Pointer(&req)); ioctlErr != nil {
		err = errors.CombineErrors(err,
			errors.Mark(errors.Wrapf(ioctlErr, "GEM_CLOSE of buffer %d", b.handle), ErrResource))
	}

	b.closed = true
	return err
}

// Export wraps the buffer's handle into a dma-buf file descriptor for
// hand-off to another device context. The caller owns the descriptor.
func (b *Buffer) Export() (int, error) {
	req := drm.PrimeHandle{
		Handle: b.handle,
		Flags:  uint32(unix.O_CLOEXEC | unix.O_RDWR),
	}
	if err := b.dev.drv.Ioctl(drm.IoctlPrimeHandleToFd, unsafe.Pointer(&req)); err != nil {
		return -1, errors.Mark(errors.Wrapf(err, "PRIME export of buffer %d", b.handle), ErrResource)
	}
	return int(req.Fd), nil
}
