// xesub-frame puts a CPU-painted gradient on the first connected display via
// a dumb-buffer framebuffer, then proves the render node is alive by running
// one no-op submission through the full pipeline.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drmwrapper/xekit/kms"
	"github.com/drmwrapper/xekit/xesub"
)

func main() {
	var (
		card        = flag.String("card", "/dev/dri/card0", "display node to open")
		node        = flag.String("node", "/dev/dri/renderD128", "render node to open")
		addr        = flag.Uint64("addr", 0x1000000, "GPU virtual address to bind the command buffer at")
		hold        = flag.Duration("hold", 10*time.Second, "how long to keep the image on screen")
		waitTimeout = flag.Duration("wait-timeout", 2*time.Second, "submission completion budget")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *card, *node, *addr, *hold, *waitTimeout); err != nil {
		logger.Error("frame demo failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, card, node string, addr uint64, hold, waitTimeout time.Duration) error {
	output, err := kms.OpenOutput(logger, card)
	if err != nil {
		return err
	}
	defer func() {
		if err := output.Close(); err != nil {
			logger.Warn("output close", "err", err)
		}
	}()

	if err := output.ShowFilled(kms.Gradient{}); err != nil {
		return err
	}
	logger.Info("gradient on screen")

	// The render half is best-effort: a display without a usable Xe render
	// node still shows the gradient.
	if err := submitNoop(ctx, logger, node, addr, waitTimeout); err != nil {
		logger.Warn("render node submission skipped", "err", err)
	}

	logger.Info("holding image", "duration", hold)
	select {
	case <-ctx.Done():
	case <-time.After(hold):
	}
	return nil
}

func submitNoop(ctx context.Context, logger *slog.Logger, node string, addr uint64, waitTimeout time.Duration) error {
	dev, err := xesub.OpenDevice(logger, node)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("device close", "err", err)
		}
	}()

	pipeline, err := xesub.NewPipeline(dev, xesub.CreateOptions{WaitTimeout: waitTimeout})
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Teardown(); err != nil {
			logger.Warn("pipeline teardown", "err", err)
		}
	}()

	buf, err := pipeline.AllocateBuffer(4096, nil)
	if err != nil {
		return err
	}
	if err := pipeline.BindAndEncode(buf, addr); err != nil {
		return err
	}
	if err := pipeline.SubmitOnce(ctx); err != nil {
		return err
	}

	logger.Info("no-op batch executed")
	return nil
}
