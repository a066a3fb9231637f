package drm

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

//go:generate mockgen -source driver.go -destination mocks/driver_mock.go -package mocks

// Driver is the seam between this module and a DRM device node. Every kernel
// touchpoint goes through it so that the layers above can be exercised against
// a mock instead of hardware.
//
// Ioctl failures are reported as the raw unix.Errno so callers can classify
// them (unix.ETIME, unix.EINVAL and friends) with errors.Is.
type Driver interface {
	// Ioctl issues one ioctl against the node. arg must point to a record
	// whose layout matches the kernel's expectation for req.
	Ioctl(req uint32, arg unsafe.Pointer) error
	// Mmap establishes a shared read-write mapping of length bytes at the
	// given node offset.
	Mmap(length int, offset int64) ([]byte, error)
	// Munmap releases a mapping previously returned by Mmap.
	Munmap(data []byte) error
	Close() error
}

// Node is the production Driver over an open DRM device node.
type Node struct {
	fd   int
	path string
}

var _ Driver = &Node{}

// OpenNode opens a DRM node (render or card) read-write with close-on-exec.
func OpenNode(path string) (*Node, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	return &Node{fd: fd, path: path}, nil
}

func (n *Node) Path() string {
	return n.path
}

func (n *Node) Ioctl(req uint32, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(n.fd), uintptr(req), uintptr(arg))
		if errno == 0 {
			return nil
		}
		// Restartable results, same as libdrm's drmIoctl loop.
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		return errno
	}
}

func (n *Node) Mmap(length int, offset int64) ([]byte, error) {
	data, err := unix.Mmap(n.fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes at offset %#x on %s", length, offset, n.path)
	}
	return data, nil
}

func (n *Node) Munmap(data []byte) error {
	return unix.Munmap(data)
}

func (n *Node) Close() error {
	return unix.Close(n.fd)
}
