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

func TestMemRegionsFetchedOncePerSession(t *testing.T) {
	dev, drv := newTestDevice(t)
	scriptQueries(drv, testRegions(), nil)

	first, err := dev.MemRegions()
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Equal(t, uint32(4096), first[0].MinPageSize)

	// The snapshot is cached; the second call returns the same backing array.
	second, err := dev.MemRegions()
	require.NoError(t, err)
	require.Same(t, &first[0], &second[0])
}

func TestQueryProbeFailureIsSetup(t *testing.T) {
	dev, drv := newTestDevice(t)

	drv.EXPECT().Ioctl(drm.IoctlDeviceQuery, gomock.Any()).Return(unix.EINVAL)

	_, err := dev.MemRegions()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSetup))
}

func TestQueryZeroSizeIsSetup(t *testing.T) {
	dev, drv := newTestDevice(t)

	drv.EXPECT().Ioctl(drm.IoctlDeviceQuery, gomock.Any()).Return(nil)

	_, err := dev.Engines()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSetup))
}

func TestQueryFetchFailureIsSetup(t *testing.T) {
	dev, drv := newTestDevice(t)

	probe := drv.EXPECT().Ioctl(drm.IoctlDeviceQuery, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			(*drm.DeviceQuery)(arg).Size = 64
			return nil
		})
	drv.EXPECT().Ioctl(drm.IoctlDeviceQuery, gomock.Any()).Return(unix.ENODEV).After(probe)

	_, err := dev.MemRegions()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSetup))
}
