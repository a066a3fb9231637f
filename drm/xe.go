package drm

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Xe driver-specific ioctl numbers, relative to commandBase.
const (
	xeDeviceQuery      uint32 = 0x00
	xeGemCreate        uint32 = 0x01
	xeGemMmapOffset    uint32 = 0x02
	xeVmCreate         uint32 = 0x03
	xeVmDestroy        uint32 = 0x04
	xeVmBind           uint32 = 0x05
	xeExecQueueCreate  uint32 = 0x06
	xeExecQueueDestroy uint32 = 0x07
	xeExec             uint32 = 0x08
)

// Device query kinds for DeviceQuery.Query.
const (
	QueryEngines    uint32 = 0
	QueryMemRegions uint32 = 1
	QueryConfig     uint32 = 2
	QueryGtList     uint32 = 3
	QueryHwconfig   uint32 = 4
)

// Memory region classes.
const (
	MemClassSysmem uint16 = 0
	MemClassVram   uint16 = 1
)

// Engine classes.
const (
	EngineClassRender       uint16 = 0
	EngineClassCopy         uint16 = 1
	EngineClassVideoDecode  uint16 = 2
	EngineClassVideoEnhance uint16 = 3
	EngineClassCompute      uint16 = 4
)

// CPU caching modes for GemCreate.CPUCaching.
const (
	CachingWB uint16 = 1
	CachingWC uint16 = 2
)

// VM bind operations.
const (
	BindOpMap      uint32 = 0x0
	BindOpUnmap    uint32 = 0x1
	BindOpUnmapAll uint32 = 0x3
)

// Sync attachment types and flags.
const (
	SyncTypeSyncobj         uint32 = 0
	SyncTypeTimelineSyncobj uint32 = 1

	SyncFlagSignal uint32 = 1 << 0
)

// DeviceQuery is the variable-length query header. A zero Size probes for the
// payload size; a second call with Size and Data set fetches the payload.
type DeviceQuery struct {
	Extensions uint64
	Query      uint32
	Size       uint32
	Data       uint64
	Reserved   [2]uint64
}

// MemRegion mirrors one drm_xe_mem_region entry of the MEM_REGIONS query
// payload.
type MemRegion struct {
	MemClass       uint16
	Instance       uint16
	MinPageSize    uint32
	TotalSize      uint64
	Used           uint64
	CPUVisibleSize uint64
	CPUVisibleUsed uint64
	Reserved       [6]uint64
}

// EngineClassInstance identifies one hardware engine.
type EngineClassInstance struct {
	EngineClass    uint16
	EngineInstance uint16
	GtID           uint16
	Pad            uint16
}

// Engine mirrors one drm_xe_engine entry of the ENGINES query payload.
type Engine struct {
	Instance EngineClassInstance
	Reserved [3]uint64
}

type VmCreate struct {
	Extensions uint64
	Flags      uint32
	VmID       uint32
	Reserved   [2]uint64
}

type VmDestroy struct {
	VmID     uint32
	Pad      uint32
	Reserved [2]uint64
}

type GemCreate struct {
	Extensions uint64
	Size       uint64
	Placement  uint32
	Flags      uint32
	VmID       uint32
	Handle     uint32
	CPUCaching uint16
	Pad        [3]uint16
	Reserved   [2]uint64
}

type GemMmapOffset struct {
	Extensions uint64
	Handle     uint32
	Flags      uint32
	Offset     uint64
	Reserved   [2]uint64
}

type VmBindOp struct {
	Extensions                uint64
	Obj                       uint32
	PatIndex                  uint16
	Pad                       uint16
	ObjOffset                 uint64
	Range                     uint64
	Addr                      uint64
	Op                        uint32
	Flags                     uint32
	PrefetchMemRegionInstance uint32
	Pad2                      uint32
	Reserved                  [3]uint64
}

// VmBind carries one inline bind op. For num_binds > 1 the kernel reads a
// user pointer from the first eight bytes of the union instead; see
// SetBindVector.
type VmBind struct {
	Extensions  uint64
	VmID        uint32
	ExecQueueID uint32
	Pad         uint32
	NumBinds    uint32
	Bind        VmBindOp
	Pad2        uint32
	NumSyncs    uint32
	Syncs       uint64
	Reserved    [2]uint64
}

// SetBindVector points the bind union at an external array of ops, for
// batches with more than one entry.
func (b *VmBind) SetBindVector(ops []VmBindOp) {
	*(*uint64)(unsafe.Pointer(&b.Bind)) = uint64(uintptr(unsafe.Pointer(&ops[0])))
}

type ExecQueueCreate struct {
	Extensions    uint64
	Width         uint16
	NumPlacements uint16
	VmID          uint32
	Flags         uint32
	ExecQueueID   uint32
	Instances     uint64
	Reserved      [2]uint64
}

type ExecQueueDestroy struct {
	ExecQueueID uint32
	Pad         uint32
	Reserved    [2]uint64
}

// Sync describes one fence attachment of an Exec or VmBind request. The
// handle field shares a union with a user-fence address; only the syncobj
// form is modeled here.
type Sync struct {
	Extensions    uint64
	Type          uint32
	Flags         uint32
	Handle        uint32
	Pad           uint32
	TimelineValue uint64
	Reserved      [2]uint64
}

type Exec struct {
	Extensions     uint64
	ExecQueueID    uint32
	NumSyncs       uint32
	Syncs          uint64
	Address        uint64
	NumBatchBuffer uint16
	Pad            [3]uint16
	Reserved       [2]uint64
}

// Request numbers. Sizes are taken from the Go record layouts, which mirror
// the kernel structs field for field.
var (
	IoctlDeviceQuery      = IOWR(commandBase+xeDeviceQuery, uint32(unsafe.Sizeof(DeviceQuery{})))
	IoctlGemCreate        = IOWR(commandBase+xeGemCreate, uint32(unsafe.Sizeof(GemCreate{})))
	IoctlGemMmapOffset    = IOWR(commandBase+xeGemMmapOffset, uint32(unsafe.Sizeof(GemMmapOffset{})))
	IoctlVmCreate         = IOWR(commandBase+xeVmCreate, uint32(unsafe.Sizeof(VmCreate{})))
	IoctlVmDestroy        = IOW(commandBase+xeVmDestroy, uint32(unsafe.Sizeof(VmDestroy{})))
	IoctlVmBind           = IOW(commandBase+xeVmBind, uint32(unsafe.Sizeof(VmBind{})))
	IoctlExecQueueCreate  = IOWR(commandBase+xeExecQueueCreate, uint32(unsafe.Sizeof(ExecQueueCreate{})))
	IoctlExecQueueDestroy = IOW(commandBase+xeExecQueueDestroy, uint32(unsafe.Sizeof(ExecQueueDestroy{})))
	IoctlExec             = IOW(commandBase+xeExec, uint32(unsafe.Sizeof(Exec{})))
)

const (
	memRegionSize = int(unsafe.Sizeof(MemRegion{}))
	engineSize    = int(unsafe.Sizeof(Engine{}))

	queryHeaderSize = 8
)

// DecodeMemRegions unpacks a MEM_REGIONS query payload.
func DecodeMemRegions(payload []byte) ([]MemRegion, error) {
	if len(payload) < queryHeaderSize {
		return nil, errors.Newf("mem regions payload is %d bytes, below the %d-byte header", len(payload), queryHeaderSize)
	}

	count := int(binary.LittleEndian.Uint32(payload))
	if len(payload) < queryHeaderSize+count*memRegionSize {
		return nil, errors.Newf("mem regions payload is %d bytes, too small for %d regions", len(payload), count)
	}

	regions := make([]MemRegion, count)
	for i := 0; i < count; i++ {
		entry := payload[queryHeaderSize+i*memRegionSize:]
		regions[i].MemClass = binary.LittleEndian.Uint16(entry)
		regions[i].Instance = binary.LittleEndian.Uint16(entry[2:])
		regions[i].MinPageSize = binary.LittleEndian.Uint32(entry[4:])
		regions[i].TotalSize = binary.LittleEndian.Uint64(entry[8:])
		regions[i].Used = binary.LittleEndian.Uint64(entry[16:])
		regions[i].CPUVisibleSize = binary.LittleEndian.Uint64(entry[24:])
		regions[i].CPUVisibleUsed = binary.LittleEndian.Uint64(entry[32:])
	}
	return regions, nil
}

// EncodeMemRegions builds a MEM_REGIONS payload from region entries. The
// inverse of DecodeMemRegions, used to fabricate query responses in tests.
func EncodeMemRegions(regions []MemRegion) []byte {
	payload := make([]byte, queryHeaderSize+len(regions)*memRegionSize)
	binary.LittleEndian.PutUint32(payload, uint32(len(regions)))
	for i, r := range regions {
		entry := payload[queryHeaderSize+i*memRegionSize:]
		binary.LittleEndian.PutUint16(entry, r.MemClass)
		binary.LittleEndian.PutUint16(entry[2:], r.Instance)
		binary.LittleEndian.PutUint32(entry[4:], r.MinPageSize)
		binary.LittleEndian.PutUint64(entry[8:], r.TotalSize)
		binary.LittleEndian.PutUint64(entry[16:], r.Used)
		binary.LittleEndian.PutUint64(entry[24:], r.CPUVisibleSize)
		binary.LittleEndian.PutUint64(entry[32:], r.CPUVisibleUsed)
	}
	return payload
}

// DecodeEngines unpacks an ENGINES query payload.
func DecodeEngines(payload []byte) ([]Engine, error) {
	if len(payload) < queryHeaderSize {
		return nil, errors.Newf("engines payload is %d bytes, below the %d-byte header", len(payload), queryHeaderSize)
	}

	count := int(binary.LittleEndian.Uint32(payload))
	if len(payload) < queryHeaderSize+count*engineSize {
		return nil, errors.Newf("engines payload is %d bytes, too small for %d engines", len(payload), count)
	}

	engines := make([]Engine, count)
	for i := 0; i < count; i++ {
		entry := payload[queryHeaderSize+i*engineSize:]
		engines[i].Instance.EngineClass = binary.LittleEndian.Uint16(entry)
		engines[i].Instance.EngineInstance = binary.LittleEndian.Uint16(entry[2:])
		engines[i].Instance.GtID = binary.LittleEndian.Uint16(entry[4:])
	}
	return engines, nil
}

// EncodeEngines builds an ENGINES payload from engine entries, for tests.
func EncodeEngines(engines []Engine) []byte {
	payload := make([]byte, queryHeaderSize+len(engines)*engineSize)
	binary.LittleEndian.PutUint32(payload, uint32(len(engines)))
	for i, e := range engines {
		entry := payload[queryHeaderSize+i*engineSize:]
		binary.LittleEndian.PutUint16(entry, e.Instance.EngineClass)
		binary.LittleEndian.PutUint16(entry[2:], e.Instance.EngineInstance)
		binary.LittleEndian.PutUint16(entry[4:], e.Instance.GtID)
	}
	return payload
}
