package kms

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Gradient paints the classic diagnostic test pattern: red ramps across X,
// green ramps down Y, constant blue. ARGB8888, little endian.
type Gradient struct{}

func (Gradient) Fill(pix []byte, width, height, stride int) error {
	if width <= 0 || height <= 0 {
		return errors.Newf("gradient fill over %dx%d surface", width, height)
	}
	if len(pix) < stride*height {
		return errors.Newf("gradient fill needs %d bytes but the surface holds %d", stride*height, len(pix))
	}

	for y := 0; y < height; y++ {
		row := pix[y*stride:]
		g := uint32(y * 255 / height)
		for x := 0; x < width; x++ {
			r := uint32(x * 255 / width)
			binary.LittleEndian.PutUint32(row[x*4:], 0xFF000000|r<<16|g<<8|0x80)
		}
	}
	return nil
}
