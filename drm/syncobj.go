package drm

import "unsafe"

// DRM core ioctl numbers (not driver-specific).
const (
	drmGemClose        uint32 = 0x09
	drmPrimeHandleToFd uint32 = 0x2d
	drmPrimeFdToHandle uint32 = 0x2e
	drmSyncobjCreate   uint32 = 0xBF
	drmSyncobjDestroy  uint32 = 0xC0
	drmSyncobjWait     uint32 = 0xC3
	drmSyncobjReset    uint32 = 0xC4
	drmSyncobjSignal   uint32 = 0xC5
)

// Syncobj wait flags.
const (
	SyncobjWaitFlagAll       uint32 = 1 << 0
	SyncobjWaitFlagForSubmit uint32 = 1 << 1
	SyncobjWaitFlagAvailable uint32 = 1 << 2
)

type GemClose struct {
	Handle uint32
	Pad    uint32
}

// PrimeHandle converts between GEM handles and dma-buf file descriptors in
// both directions.
type PrimeHandle struct {
	Handle uint32
	Flags  uint32
	Fd     int32
}

type SyncobjCreate struct {
	Handle uint32
	Flags  uint32
}

type SyncobjDestroy struct {
	Handle uint32
	Pad    uint32
}

// SyncobjArray addresses a set of syncobj handles for reset and signal.
type SyncobjArray struct {
	Handles      uint64
	CountHandles uint32
	Pad          uint32
}

type SyncobjWaitReq struct {
	Handles       uint64
	TimeoutNsec   int64
	CountHandles  uint32
	Flags         uint32
	FirstSignaled uint32
	Pad           uint32
	DeadlineNsec  uint64
}

var (
	IoctlGemClose        = IOW(drmGemClose, uint32(unsafe.Sizeof(GemClose{})))
	IoctlPrimeHandleToFd = IOWR(drmPrimeHandleToFd, uint32(unsafe.Sizeof(PrimeHandle{})))
	IoctlPrimeFdToHandle = IOWR(drmPrimeFdToHandle, uint32(unsafe.Sizeof(PrimeHandle{})))
	IoctlSyncobjCreate   = IOWR(drmSyncobjCreate, uint32(unsafe.Sizeof(SyncobjCreate{})))
	IoctlSyncobjDestroy  = IOWR(drmSyncobjDestroy, uint32(unsafe.Sizeof(SyncobjDestroy{})))
	IoctlSyncobjWait     = IOWR(drmSyncobjWait, uint32(unsafe.Sizeof(SyncobjWaitReq{})))
	IoctlSyncobjReset    = IOWR(drmSyncobjReset, uint32(unsafe.Sizeof(SyncobjArray{})))
	IoctlSyncobjSignal   = IOWR(drmSyncobjSignal, uint32(unsafe.Sizeof(SyncobjArray{})))
)
