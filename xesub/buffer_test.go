package xesub

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sys/unix"

	"github.com/drmwrapper/xekit/drm"
)

func TestCreateBufferRejectsEmptyPlacement(t *testing.T) {
	dev, drv := newTestDevice(t)
	vm := newVMForTest(dev, drv, 7)

	_, err := dev.CreateBuffer(vm, 4096, Placement{Mask: 0, MinPageSize: 4096}, drm.CachingWB)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrResource))
}

func TestCreateBufferRejectsOffPageSize(t *testing.T) {
	dev, drv := newTestDevice(t)
	vm := newVMForTest(dev, drv, 7)

	placement := Placement{Mask: 1, MinPageSize: 4096}

	_, err := dev.CreateBuffer(vm, 4095, placement, drm.CachingWB)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrResource))

	_, err = dev.CreateBuffer(vm, 0, placement, drm.CachingWB)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrResource))
}

func TestCreateBufferKeepsKernelRoundedSize(t *testing.T) {
	dev, drv := newTestDevice(t)
	vm := newVMForTest(dev, drv, 7)

	drv.EXPECT().Ioctl(drm.IoctlGemCreate, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			req := (*drm.GemCreate)(arg)
			require.Equal(t, uint64(8192), req.Size)
			require.Equal(t, uint32(1), req.Placement)
			require.Equal(t, uint32(7), req.VmID)
			require.Equal(t, drm.CachingWB, req.CPUCaching)
			req.Handle = 3
			req.Size = 65536 // driver granularity
			return nil
		})

	buf, err := dev.CreateBuffer(vm, 8192, Placement{Mask: 1, MinPageSize: 4096}, drm.CachingWB)
	require.NoError(t, err)
	require.Equal(t, uint32(3), buf.Handle())
	require.Equal(t, uint64(65536), buf.Size())
}

func TestBufferMapUnmapClose(t *testing.T) {
	dev, drv := newTestDevice(t)
	vm := newVMForTest(dev, drv, 7)
	buf := newBufferForTest(dev, drv, vm, 3, 4096)

	drv.EXPECT().Ioctl(drm.IoctlGemMmapOffset, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			req := (*drm.GemMmapOffset)(arg)
			require.Equal(t, uint32(3), req.Handle)
			req.Offset = 0x10000
			return nil
		})
	backing := make([]byte, 4096)
	drv.EXPECT().Mmap(4096, int64(0x10000)).Return(backing, nil)

	view, err := buf.Map()
	require.NoError(t, err)
	require.Equal(t, 4096, view.Len())

	view.PutWord(0, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), view.Word(0))
	require.Equal(t, byte(0xEF), backing[0]) // little endian in the stream

	_, err = buf.Map()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrResource))

	drv.EXPECT().Munmap(backing).Return(nil)
	drv.EXPECT().Ioctl(drm.IoctlGemClose, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			require.Equal(t, uint32(3), (*drm.GemClose)(arg).Handle)
			return nil
		})

	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close())

	_, err = buf.Map()
	require.Error(t, err)
}

func TestBufferExport(t *testing.T) {
	dev, drv := newTestDevice(t)
	vm := newVMForTest(dev, drv, 7)
	buf := newBufferForTest(dev, drv, vm, 3, 4096)

	drv.EXPECT().Ioctl(drm.IoctlPrimeHandleToFd, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			req := (*drm.PrimeHandle)(arg)
			require.Equal(t, uint32(3), req.Handle)
			require.Equal(t, uint32(unix.O_CLOEXEC|unix.O_RDWR), req.Flags)
			req.Fd = 42
			return nil
		})

	fd, err := buf.Export()
	require.NoError(t, err)
	require.Equal(t, 42, fd)
}
