package xesub

// PixelSource fills a mapped buffer with image content. The core guarantees
// pix is writable, stride*height bytes long, and stable until the call
// returns; it guarantees the GPU will not read the buffer while the source
// writes it.
type PixelSource interface {
	Fill(pix []byte, width, height, stride int) error
}

// PresentationSink accepts a fully written buffer for display. The buffer is
// handed off as a dma-buf descriptor (see Buffer.Export) so the sink may
// live on a different device context; the sink owns the descriptor from the
// call on.
type PresentationSink interface {
	Present(dmabufFd int, width, height, stride, bpp int) error
}
