package drm

import "unsafe"

// KMS mode-setting ioctl numbers.
const (
	modeGetResources uint32 = 0xA0
	modeSetCrtc      uint32 = 0xA2
	modeGetEncoder   uint32 = 0xA6
	modeGetConnector uint32 = 0xA7
	modeAddFB        uint32 = 0xAE
	modeRmFB         uint32 = 0xAF
	modeCreateDumb   uint32 = 0xB2
	modeMapDumb      uint32 = 0xB3
	modeDestroyDumb  uint32 = 0xB4
)

// Connector connection states.
const (
	ConnectorStatusConnected    uint32 = 1
	ConnectorStatusDisconnected uint32 = 2
)

type ModeCardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

type ModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type ModeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

type ModeGetEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

type ModeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             ModeInfo
}

type ModeFBCmd struct {
	FbID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Bpp    uint32
	Depth  uint32
	Handle uint32
}

type ModeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type ModeMapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

type ModeDestroyDumb struct {
	Handle uint32
}

var (
	IoctlModeGetResources = IOWR(modeGetResources, uint32(unsafe.Sizeof(ModeCardRes{})))
	IoctlModeSetCrtc      = IOWR(modeSetCrtc, uint32(unsafe.Sizeof(ModeCrtc{})))
	IoctlModeGetEncoder   = IOWR(modeGetEncoder, uint32(unsafe.Sizeof(ModeGetEncoder{})))
	IoctlModeGetConnector = IOWR(modeGetConnector, uint32(unsafe.Sizeof(ModeGetConnector{})))
	IoctlModeAddFB        = IOWR(modeAddFB, uint32(unsafe.Sizeof(ModeFBCmd{})))
	IoctlModeRmFB         = IOWR(modeRmFB, 4)
	IoctlModeCreateDumb   = IOWR(modeCreateDumb, uint32(unsafe.Sizeof(ModeCreateDumb{})))
	IoctlModeMapDumb      = IOWR(modeMapDumb, uint32(unsafe.Sizeof(ModeMapDumb{})))
	IoctlModeDestroyDumb  = IOWR(modeDestroyDumb, uint32(unsafe.Sizeof(ModeDestroyDumb{})))
)
