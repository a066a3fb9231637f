package drm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// The structs are passed to the kernel by pointer, so their sizes must match
// the uAPI structs byte for byte.
func TestStructSizes(t *testing.T) {
	require.Equal(t, uintptr(40), unsafe.Sizeof(DeviceQuery{}))
	require.Equal(t, uintptr(88), unsafe.Sizeof(MemRegion{}))
	require.Equal(t, uintptr(32), unsafe.Sizeof(Engine{}))
	require.Equal(t, uintptr(56), unsafe.Sizeof(GemCreate{}))
	require.Equal(t, uintptr(40), unsafe.Sizeof(GemMmapOffset{}))
	require.Equal(t, uintptr(80), unsafe.Sizeof(VmBindOp{}))
	require.Equal(t, uintptr(136), unsafe.Sizeof(VmBind{}))
	require.Equal(t, uintptr(48), unsafe.Sizeof(ExecQueueCreate{}))
	require.Equal(t, uintptr(48), unsafe.Sizeof(Sync{}))
	require.Equal(t, uintptr(56), unsafe.Sizeof(Exec{}))
}

func TestDecodeMemRegions(t *testing.T) {
	regions := []MemRegion{
		{MemClass: MemClassSysmem, Instance: 0, MinPageSize: 4096, TotalSize: 1 << 34},
		{MemClass: MemClassVram, Instance: 1, MinPageSize: 65536, TotalSize: 1 << 33, CPUVisibleSize: 1 << 28},
	}

	decoded, err := DecodeMemRegions(EncodeMemRegions(regions))
	require.NoError(t, err)
	require.Equal(t, regions, decoded)
}

func TestDecodeMemRegionsRejectsTruncatedPayload(t *testing.T) {
	payload := EncodeMemRegions([]MemRegion{{MinPageSize: 4096}})

	_, err := DecodeMemRegions(payload[:4])
	require.Error(t, err)

	_, err = DecodeMemRegions(payload[:len(payload)-1])
	require.Error(t, err)
}

func TestDecodeEngines(t *testing.T) {
	engines := []Engine{
		{Instance: EngineClassInstance{EngineClass: EngineClassRender, EngineInstance: 0, GtID: 0}},
		{Instance: EngineClassInstance{EngineClass: EngineClassCopy, EngineInstance: 2, GtID: 1}},
	}

	decoded, err := DecodeEngines(EncodeEngines(engines))
	require.NoError(t, err)
	require.Equal(t, engines, decoded)
}

func TestSetBindVectorOverlaysUnion(t *testing.T) {
	ops := []VmBindOp{{Addr: 0x1000}, {Addr: 0x2000}}

	var req VmBind
	req.SetBindVector(ops)

	stored := *(*uint64)(unsafe.Pointer(&req.Bind))
	require.Equal(t, uint64(uintptr(unsafe.Pointer(&ops[0]))), stored)
}
