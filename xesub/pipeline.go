package xesub

import (
	"context"
	"log/slog"
	"runtime"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/drmwrapper/xekit/drm"
)

// State tracks the coordinator through one submission cycle. Completed is
// terminal per cycle only: the next submission re-enters at Queued, reusing
// the same queue, fence and command-buffer address.
type State int

const (
	StateIdle State = iota
	StateBound
	StateQueued
	StateSubmitted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBound:
		return "Bound"
	case StateQueued:
		return "Queued"
	case StateSubmitted:
		return "Submitted"
	case StateCompleted:
		return "Completed"
	}
	return "Unknown"
}

// waitSlice is how long each individual fence wait blocks before the
// coordinator re-checks its context and deadline budget.
const waitSlice = 100 * time.Millisecond

// CreateOptions configures a Pipeline.
type CreateOptions struct {
	// EngineClass is the required engine capability. The zero value is the
	// render class.
	EngineClass uint16
	// MemClass selects buffer placement. The zero value is system memory.
	MemClass uint16
	// CacheMode is the CPU caching mode for allocated buffers. Zero means
	// write-back.
	CacheMode uint16
	// WaitTimeout bounds each submission's completion wait. Non-positive
	// waits without bound, so a GPU hang hangs the submitting goroutine.
	WaitTimeout time.Duration
	// UseMutex makes the pipeline safe for use from multiple goroutines.
	// The core expects a single controlling goroutine; this is for
	// embedders that drive teardown from elsewhere.
	UseMutex bool
}

// Pipeline owns one full submission context: a VM, its binder, a command
// buffer, an exec queue and a reusable fence. It drives the cycle
// reset fence → submit → wait.
type Pipeline struct {
	logger    *slog.Logger
	dev       *Device
	vm        *VM
	binder    *Binder
	placement Placement
	engine    drm.EngineClassInstance
	queue     *Queue
	fence     *Fence

	cmd       *Buffer
	cmdView   *MemoryView
	cmdAddr   uint64
	cacheMode uint16

	state       State
	cycles      uint64
	faulted     bool
	waitTimeout time.Duration
}

// NewPipeline prepares a submission pipeline on dev: fresh VM, placement for
// the requested memory class, and the first engine matching the requested
// capability. Queue and fence are created lazily on the first submission.
func NewPipeline(dev *Device, o CreateOptions) (*Pipeline, error) {
	if o.CacheMode == 0 {
		o.CacheMode = drm.CachingWB
	}

	placement, err := dev.SelectPlacement(o.MemClass)
	if err != nil {
		return nil, err
	}

	engine, err := dev.SelectEngine(o.EngineClass)
	if err != nil {
		return nil, err
	}

	vm, err := dev.CreateVM()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		logger:      dev.logger.With("component", "pipeline", "vm_id", vm.ID()),
		dev:         dev,
		vm:          vm,
		binder:      NewBinder(dev, vm),
		placement:   placement,
		engine:      engine,
		state:       StateIdle,
		waitTimeout: o.WaitTimeout,
	}
	p.binder.mutex.UseMutex = o.UseMutex
	p.cacheMode = o.CacheMode
	return p, nil
}

// AllocateBuffer allocates a buffer in the pipeline's VM. A nil hint uses
// the pipeline's own placement.
func (p *Pipeline) AllocateBuffer(size uint64, hint *Placement) (*Buffer, error) {
	placement := p.placement
	if hint != nil {
		placement = *hint
	}
	return p.dev.CreateBuffer(p.vm, size, placement, p.cacheMode)
}

// BindAndEncode designates buf as the command buffer: binds it at addr, maps
// it for CPU access if needed, and writes the terminator instruction at
// offset zero.
func (p *Pipeline) BindAndEncode(buf *Buffer, addr uint64) error {
	if err := p.binder.MapBuffer(buf, addr); err != nil {
		return err
	}

	view := buf.view
	if view == nil {
		var err error
		view, err = buf.Map()
		if err != nil {
			return err
		}
	}

	if err := EncodeTerminator(view); err != nil {
		return err
	}

	p.cmd = buf
	p.cmdView = view
	p.cmdAddr = addr
	if p.state == StateIdle {
		p.state = StateBound
	}

	p.logger.Info("command buffer bound", "addr", addr, "size", buf.Size())
	return nil
}

func (p *Pipeline) ensureQueued() error {
	if p.queue == nil {
		queue, err := p.dev.CreateQueue(p.vm, p.engine)
		if err != nil {
			return err
		}
		p.queue = queue
	}

	if p.fence == nil {
		fence, err := p.dev.NewFence()
		if err != nil {
			return err
		}
		p.fence = fence
	}

	p.state = StateQueued
	return nil
}

// SubmitOnce drives one full cycle: reset the fence, submit the command
// buffer address to the queue with the fence attached as a
// signal-on-completion, then wait for the signal.
//
// A timeout leaves the submission outstanding; the caller may retry the wait
// with WaitCompletion, since the GPU may simply still be running. Any other
// failure marks the pipeline faulted: the queue and VM are not reusable.
func (p *Pipeline) SubmitOnce(ctx context.Context) error {
	if p.faulted {
		return errors.Mark(errors.New("pipeline has faulted and must be torn down"), ErrSubmission)
	}
	switch p.state {
	case StateIdle:
		return errors.Mark(errors.New("no command buffer bound"), ErrSubmission)
	case StateSubmitted:
		return errors.Mark(errors.New("previous submission still outstanding; wait for completion first"), ErrSubmission)
	}

	if err := p.ensureQueued(); err != nil {
		return err
	}

	if err := p.fence.Reset(); err != nil {
		return err
	}

	sync := drm.Sync{
		Type:   drm.SyncTypeSyncobj,
		Flags:  drm.SyncFlagSignal,
		Handle: p.fence.Handle(),
	}
	exec := drm.Exec{
		ExecQueueID:    p.queue.ID(),
		NumSyncs:       1,
		Syncs:          uint64(uintptr(unsafe.Pointer(&sync))),
		Address:        p.cmdAddr,
		NumBatchBuffer: 1,
	}

	err := p.dev.drv.Ioctl(drm.IoctlExec, unsafe.Pointer(&exec))
	runtime.KeepAlive(&sync)
	if err != nil {
		p.faulted = true
		return errors.Mark(
			errors.Wrapf(err, "EXEC on queue %d at address %#x", p.queue.ID(), p.cmdAddr),
			ErrSubmission)
	}

	p.state = StateSubmitted
	return p.WaitCompletion(ctx)
}

// WaitCompletion blocks until the outstanding submission signals its fence.
// Exported so a caller that received a timeout from SubmitOnce can keep
// waiting on a device that is merely slow.
func (p *Pipeline) WaitCompletion(ctx context.Context) error {
	if p.state != StateSubmitted {
		return errors.Mark(errors.Newf("no outstanding submission in state %s", p.state), ErrSync)
	}

	var deadline time.Time
	if p.waitTimeout > 0 {
		deadline = time.Now().Add(p.waitTimeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			// The submission stays outstanding; there is no kernel path to
			// abort it.
			return errors.Mark(errors.Mark(errors.Wrap(err, "completion wait abandoned"), ErrTimeout), ErrSync)
		}

		slice := waitSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return errors.Mark(
					errors.Mark(errors.Newf("submission on queue %d did not complete within %s",
						p.queue.ID(), p.waitTimeout), ErrTimeout),
					ErrSync)
			}
			if remaining < slice {
				slice = remaining
			}
		}

		err := p.fence.Wait(slice)
		if err == nil {
			p.state = StateCompleted
			p.cycles++
			return nil
		}
		if IsTimeout(err) {
			continue
		}

		p.faulted = true
		return err
	}
}

// SubmitLoop resubmits the same command buffer until ctx is done, reusing
// the queue, fence and bound address every cycle. Each cycle fully resets
// the fence before resubmission. Returns the number of completed cycles.
func (p *Pipeline) SubmitLoop(ctx context.Context) (uint64, error) {
	var cycles uint64
	for {
		if ctx.Err() != nil {
			return cycles, nil
		}

		if err := p.SubmitOnce(ctx); err != nil {
			if ctx.Err() != nil && IsTimeout(err) {
				return cycles, nil
			}
			return cycles, err
		}
		cycles++
	}
}

func (p *Pipeline) State() State {
	return p.state
}

// Cycles returns the number of completed submissions.
func (p *Pipeline) Cycles() uint64 {
	return p.cycles
}

// CommandAddress returns the bound GPU virtual address of the command buffer.
func (p *Pipeline) CommandAddress() uint64 {
	return p.cmdAddr
}

func (p *Pipeline) VM() *VM {
	return p.vm
}

func (p *Pipeline) Binder() *Binder {
	return p.binder
}

func (p *Pipeline) Placement() Placement {
	return p.placement
}

func (p *Pipeline) Fence() *Fence {
	return p.fence
}

// Teardown releases everything the pipeline owns, in reverse dependency
// order. Mappings are only unbound when the VM's binding state is still
// trustworthy; an indeterminate VM is simply destroyed.
func (p *Pipeline) Teardown() error {
	var err error

	if p.fence != nil {
		err = errors.CombineErrors(err, p.fence.Destroy())
		p.fence = nil
	}
	if p.queue != nil {
		err = errors.CombineErrors(err, p.queue.Destroy())
		p.queue = nil
	}
	if p.cmd != nil {
		if !p.vm.Indeterminate() && !p.faulted {
			err = errors.CombineErrors(err, p.binder.UnmapBuffer(p.cmd, p.cmdAddr))
		}
		err = errors.CombineErrors(err, p.cmd.Close())
		p.cmd = nil
		p.cmdView = nil
	}
	err = errors.CombineErrors(err, p.vm.Destroy())

	p.state = StateIdle
	return err
}
