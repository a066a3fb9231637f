package drm

const (
	iocNone  uint32 = 0
	iocWrite uint32 = 1
	iocRead  uint32 = 2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// ioctlType is the DRM ioctl magic ('d').
const ioctlType uint32 = 0x64

// commandBase is the offset of driver-specific ioctls within the DRM number
// space.
const commandBase uint32 = 0x40

func ioc(dir, nr, size uint32) uint32 {
	return dir<<iocDirShift | size<<iocSizeShift | ioctlType<<iocTypeShift | nr<<iocNrShift
}

// IOW builds a write-direction DRM ioctl request number.
func IOW(nr, size uint32) uint32 {
	return ioc(iocWrite, nr, size)
}

// IOR builds a read-direction DRM ioctl request number.
func IOR(nr, size uint32) uint32 {
	return ioc(iocRead, nr, size)
}

// IOWR builds a read-write DRM ioctl request number.
func IOWR(nr, size uint32) uint32 {
	return ioc(iocRead|iocWrite, nr, size)
}
