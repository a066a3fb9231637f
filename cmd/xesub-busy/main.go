// xesub-busy opens a render node and resubmits a terminator-only command
// buffer in a tight reset/submit/wait loop until interrupted. It exists to
// prove the submission path end to end and to keep an engine busy for
// inspection with external tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drmwrapper/xekit/xesub"
)

func main() {
	var (
		node        = flag.String("node", "/dev/dri/renderD128", "render node to open")
		size        = flag.Uint64("size", 4096, "command buffer size in bytes")
		addr        = flag.Uint64("addr", 0x1000000, "GPU virtual address to bind the command buffer at")
		cycles      = flag.Uint64("cycles", 0, "number of submissions; 0 loops until interrupted")
		waitTimeout = flag.Duration("wait-timeout", 0, "per-submission completion budget; 0 waits without bound")
		stats       = flag.Bool("stats", false, "dump pipeline state as JSON on exit")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *node, *size, *addr, *cycles, *waitTimeout, *stats); err != nil {
		logger.Error("busy loop failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, node string, size, addr, cycles uint64, waitTimeout time.Duration, stats bool) error {
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

	buf, err := pipeline.AllocateBuffer(size, nil)
	if err != nil {
		return err
	}

	if err := pipeline.BindAndEncode(buf, addr); err != nil {
		return err
	}

	if cycles > 0 {
		for i := uint64(0); i < cycles; i++ {
			if err := pipeline.SubmitOnce(ctx); err != nil {
				return err
			}
		}
		logger.Info("done", "cycles", cycles)
	} else {
		logger.Info("entering submit loop; interrupt to stop")
		done, err := pipeline.SubmitLoop(ctx)
		if err != nil {
			return err
		}
		logger.Info("loop stopped", "cycles", done)
	}

	if stats {
		fmt.Println(pipeline.BuildStatsString())
	}
	return nil
}
