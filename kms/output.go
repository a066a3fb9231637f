// Package kms is the presentation collaborator of the submission core: a
// mode-setting sink over a DRM card node, with a dumb-buffer framebuffer for
// CPU-rendered content and PRIME import for buffers handed off from another
// device context.
package kms

import (
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/drmwrapper/xekit/drm"
	"github.com/drmwrapper/xekit/xesub"
)

// Output drives one connected display: the first connector that reports a
// mode, at its preferred mode.
type Output struct {
	logger *slog.Logger
	drv    drm.Driver

	connID uint32
	crtcID uint32
	mode   drm.ModeInfo

	// Dumb-buffer framebuffer state, populated by ShowFilled.
	fbID       uint32
	dumbHandle uint32
	pitch      uint32
	size       uint64
	fbMap      []byte

	// Framebuffer created around an imported dma-buf, populated by Present.
	importedFbID uint32
}

var _ xesub.PresentationSink = &Output{}

// OpenOutput opens the card node and discovers a connected connector and a
// CRTC to drive it.
func OpenOutput(logger *slog.Logger, path string) (*Output, error) {
	node, err := drm.OpenNode(path)
	if err != nil {
		return nil, err
	}

	o := &Output{
		logger: logger.With("component", "kms", "path", path),
		drv:    node,
	}
	if err := o.discover(); err != nil {
		_ = node.Close()
		return nil, err
	}

	o.logger.Info("display output ready",
		"connector_id", o.connID,
		"crtc_id", o.crtcID,
		"hdisplay", o.mode.Hdisplay,
		"vdisplay", o.mode.Vdisplay)
	return o, nil
}

// NewOutput wraps an already-open driver, for tests.
func NewOutput(logger *slog.Logger, drv drm.Driver) *Output {
	return &Output{logger: logger.With("component", "kms"), drv: drv}
}

// discover walks resources → connectors → encoder to settle on a connector,
// mode and CRTC. Connector and resource fetches follow the same
// probe-then-fetch shape as the render-node queries: a first call reports
// counts, a second fills caller-allocated arrays.
func (o *Output) discover() error {
	var res drm.ModeCardRes
	if err := o.drv.Ioctl(drm.IoctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return errors.Wrap(err, "MODE_GETRESOURCES: count probe")
	}
	if res.CountConnectors == 0 {
		return errors.New("display has no connectors")
	}

	connectors := make([]uint32, res.CountConnectors)
	crtcs := make([]uint32, max32(res.CountCrtcs, 1))
	res.ConnectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
	res.CrtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	res.CountFbs = 0
	res.CountEncoders = 0

	err := o.drv.Ioctl(drm.IoctlModeGetResources, unsafe.Pointer(&res))
	runtime.KeepAlive(connectors)
	runtime.KeepAlive(crtcs)
	if err != nil {
		return errors.Wrap(err, "MODE_GETRESOURCES")
	}

	for _, connID := range connectors {
		conn := drm.ModeGetConnector{ConnectorID: connID}
		if err := o.drv.Ioctl(drm.IoctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
			continue
		}
		if conn.Connection != drm.ConnectorStatusConnected || conn.CountModes == 0 {
			continue
		}

		modes := make([]drm.ModeInfo, conn.CountModes)
		conn.ModesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
		conn.CountProps = 0
		conn.CountEncoders = 0

		err := o.drv.Ioctl(drm.IoctlModeGetConnector, unsafe.Pointer(&conn))
		runtime.KeepAlive(modes)
		if err != nil {
			return errors.Wrapf(err, "MODE_GETCONNECTOR %d: mode fetch", connID)
		}

		o.connID = connID
		o.mode = modes[0] // preferred mode is first

		// CRTC through the connector's current encoder when it has one.
		if conn.EncoderID != 0 {
			enc := drm.ModeGetEncoder{EncoderID: conn.EncoderID}
			if err := o.drv.Ioctl(drm.IoctlModeGetEncoder, unsafe.Pointer(&enc)); err == nil && enc.CrtcID != 0 {
				o.crtcID = enc.CrtcID
				return nil
			}
		}
		if res.CountCrtcs == 0 {
			return errors.New("no usable CRTC")
		}
		o.crtcID = crtcs[0]
		return nil
	}

	return errors.New("no connected connector with modes")
}

// Mode returns the selected display mode.
func (o *Output) Mode() drm.ModeInfo {
	return o.mode
}

// ShowFilled creates a dumb-buffer framebuffer sized to the selected mode,
// lets src paint it, and flips it onto the CRTC.
func (o *Output) ShowFilled(src xesub.PixelSource) error {
	width := uint32(o.mode.Hdisplay)
	height := uint32(o.mode.Vdisplay)

	creq := drm.ModeCreateDumb{Height: height, Width: width, Bpp: 32}
	if err := o.drv.Ioctl(drm.IoctlModeCreateDumb, unsafe.Pointer(&creq)); err != nil {
		return errors.Wrapf(err, "MODE_CREATE_DUMB %dx%d", width, height)
	}
	o.dumbHandle = creq.Handle
	o.pitch = creq.Pitch
	o.size = creq.Size

	mreq := drm.ModeMapDumb{Handle: o.dumbHandle}
	if err := o.drv.Ioctl(drm.IoctlModeMapDumb, unsafe.Pointer(&mreq)); err != nil {
		return errors.Wrapf(err, "MODE_MAP_DUMB handle %d", o.dumbHandle)
	}

	fbMap, err := o.drv.Mmap(int(o.size), int64(mreq.Offset))
	if err != nil {
		return err
	}
	o.fbMap = fbMap

	if err := src.Fill(o.fbMap, int(width), int(height), int(o.pitch)); err != nil {
		return err
	}

	fb := drm.ModeFBCmd{
		Width:  width,
		Height: height,
		Pitch:  o.pitch,
		Bpp:    32,
		Depth:  24,
		Handle: o.dumbHandle,
	}
	if err := o.drv.Ioctl(drm.IoctlModeAddFB, unsafe.Pointer(&fb)); err != nil {
		return errors.Wrap(err, "MODE_ADDFB")
	}
	o.fbID = fb.FbID

	return o.setCrtc(o.fbID)
}

// Present implements xesub.PresentationSink: it imports the dma-buf into
// this card's context, wraps it in a framebuffer and flips it onto the CRTC.
// The descriptor is owned (and closed on the kernel side) via the import.
func (o *Output) Present(dmabufFd int, width, height, stride, bpp int) error {
	prime := drm.PrimeHandle{Fd: int32(dmabufFd)}
	if err := o.drv.Ioctl(drm.IoctlPrimeFdToHandle, unsafe.Pointer(&prime)); err != nil {
		return errors.Wrapf(err, "PRIME import of fd %d", dmabufFd)
	}

	fb := drm.ModeFBCmd{
		Width:  uint32(width),
		Height: uint32(height),
		Pitch:  uint32(stride),
		Bpp:    uint32(bpp),
		Depth:  24,
		Handle: prime.Handle,
	}
	if err := o.drv.Ioctl(drm.IoctlModeAddFB, unsafe.Pointer(&fb)); err != nil {
		return errors.Wrap(err, "MODE_ADDFB over imported buffer")
	}
	o.importedFbID = fb.FbID

	return o.setCrtc(o.importedFbID)
}

func (o *Output) setCrtc(fbID uint32) error {
	connID := o.connID
	crtc := drm.ModeCrtc{
		SetConnectorsPtr: uint64(uintptr(unsafe.Pointer(&connID))),
		CountConnectors:  1,
		CrtcID:           o.crtcID,
		FbID:             fbID,
		ModeValid:        1,
		Mode:             o.mode,
	}

	err := o.drv.Ioctl(drm.IoctlModeSetCrtc, unsafe.Pointer(&crtc))
	runtime.KeepAlive(&connID)
	if err != nil {
		return errors.Wrapf(err, "MODE_SETCRTC crtc %d fb %d", o.crtcID, fbID)
	}

	o.logger.Info("framebuffer on screen", "fb_id", fbID)
	return nil
}

// Close tears the output down in reverse order of construction.
func (o *Output) Close() error {
	var err error

	for _, fbID := range []uint32{o.importedFbID, o.fbID} {
		if fbID == 0 {
			continue
		}
		id := fbID
		if rmErr := o.drv.Ioctl(drm.IoctlModeRmFB, unsafe.Pointer(&id)); rmErr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(rmErr, "MODE_RMFB %d", id))
		}
	}
	o.importedFbID = 0
	o.fbID = 0

	if o.fbMap != nil {
		err = errors.CombineErrors(err, o.drv.Munmap(o.fbMap))
		o.fbMap = nil
	}

	if o.dumbHandle != 0 {
		dreq := drm.ModeDestroyDumb{Handle: o.dumbHandle}
		if dErr := o.drv.Ioctl(drm.IoctlModeDestroyDumb, unsafe.Pointer(&dreq)); dErr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(dErr, "MODE_DESTROY_DUMB %d", o.dumbHandle))
		}
		o.dumbHandle = 0
	}

	return errors.CombineErrors(err, o.drv.Close())
}

func max32(v uint32, floor uint32) uint32 {
	if v > floor {
		return v
	}
	return floor
}
