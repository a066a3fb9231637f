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

func TestCreateQueueSingleStream(t *testing.T) {
	dev, drv := newTestDevice(t)
	vm := newVMForTest(dev, drv, 7)
	engine := drm.EngineClassInstance{EngineClass: drm.EngineClassRender, EngineInstance: 1, GtID: 1}

	drv.EXPECT().Ioctl(drm.IoctlExecQueueCreate, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			req := (*drm.ExecQueueCreate)(arg)
			require.Equal(t, uint16(1), req.Width)
			require.Equal(t, uint16(1), req.NumPlacements)
			require.Equal(t, uint32(7), req.VmID)

			instance := (*drm.EngineClassInstance)(unsafe.Pointer(uintptr(req.Instances)))
			require.Equal(t, engine, *instance)

			req.ExecQueueID = 9
			return nil
		})

	queue, err := dev.CreateQueue(vm, engine)
	require.NoError(t, err)
	require.Equal(t, uint32(9), queue.ID())
	require.Equal(t, engine, queue.Engine())

	drv.EXPECT().Ioctl(drm.IoctlExecQueueDestroy, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			require.Equal(t, uint32(9), (*drm.ExecQueueDestroy)(arg).ExecQueueID)
			return nil
		})
	require.NoError(t, queue.Destroy())
	require.NoError(t, queue.Destroy())
}

func TestCreateQueueFailureIsSubmission(t *testing.T) {
	dev, drv := newTestDevice(t)
	vm := newVMForTest(dev, drv, 7)

	drv.EXPECT().Ioctl(drm.IoctlExecQueueCreate, gomock.Any()).Return(unix.EINVAL)

	_, err := dev.CreateQueue(vm, drm.EngineClassInstance{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSubmission))
}
