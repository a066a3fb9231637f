package xesub

import (
	"io"
	"log/slog"
	"testing"
	"unsafe"

	"go.uber.org/mock/gomock"

	"github.com/drmwrapper/xekit/drm"
	"github.com/drmwrapper/xekit/drm/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDevice(t *testing.T) (*Device, *mocks.MockDriver) {
	t.Helper()
	ctrl := gomock.NewController(t)
	drv := mocks.NewMockDriver(ctrl)
	return NewDevice(testLogger(), drv), drv
}

// scriptQueries answers DEVICE_QUERY ioctls for both enumeration kinds,
// playing the kernel's side of the two-phase protocol: report the payload
// size on the probe call, copy the payload through the user pointer on the
// fetch call.
func scriptQueries(drv *mocks.MockDriver, regions []drm.MemRegion, engines []drm.Engine) {
	payloads := map[uint32][]byte{
		drm.QueryMemRegions: drm.EncodeMemRegions(regions),
		drm.QueryEngines:    drm.EncodeEngines(engines),
	}

	drv.EXPECT().Ioctl(drm.IoctlDeviceQuery, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			req := (*drm.DeviceQuery)(arg)
			payload := payloads[req.Query]
			if req.Data == 0 {
				req.Size = uint32(len(payload))
				return nil
			}
			dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(req.Data))), req.Size)
			copy(dst, payload)
			return nil
		}).AnyTimes()
}

// newVMForTest scripts a VM_CREATE answering with id and creates the VM.
func newVMForTest(dev *Device, drv *mocks.MockDriver, id uint32) *VM {
	drv.EXPECT().Ioctl(drm.IoctlVmCreate, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			(*drm.VmCreate)(arg).VmID = id
			return nil
		})
	vm, err := dev.CreateVM()
	if err != nil {
		panic(err)
	}
	return vm
}

// newBufferForTest scripts a GEM_CREATE answering with handle and allocates
// size bytes against a single-region 4 KiB placement.
func newBufferForTest(dev *Device, drv *mocks.MockDriver, vm *VM, handle uint32, size uint64) *Buffer {
	drv.EXPECT().Ioctl(drm.IoctlGemCreate, gomock.Any()).DoAndReturn(
		func(_ uint32, arg unsafe.Pointer) error {
			(*drm.GemCreate)(arg).Handle = handle
			return nil
		})
	buf, err := dev.CreateBuffer(vm, size, Placement{Mask: 1, MinPageSize: 4096}, drm.CachingWB)
	if err != nil {
		panic(err)
	}
	return buf
}

func testRegions() []drm.MemRegion {
	return []drm.MemRegion{
		{MemClass: drm.MemClassSysmem, Instance: 0, MinPageSize: 4096, TotalSize: 1 << 34},
		{MemClass: drm.MemClassVram, Instance: 1, MinPageSize: 65536, TotalSize: 1 << 33},
		{MemClass: drm.MemClassVram, Instance: 2, MinPageSize: 4096, TotalSize: 1 << 33},
	}
}

func testEngines() []drm.Engine {
	return []drm.Engine{
		{Instance: drm.EngineClassInstance{EngineClass: drm.EngineClassCopy, EngineInstance: 0}},
		{Instance: drm.EngineClassInstance{EngineClass: drm.EngineClassRender, EngineInstance: 0}},
		{Instance: drm.EngineClassInstance{EngineClass: drm.EngineClassRender, EngineInstance: 1, GtID: 1}},
	}
}
