package xesub

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"

	"github.com/drmwrapper/xekit/drm"

	"github.com/drmwrapper/xekit/xesub/internal/utils"
	"github.com/drmwrapper/xekit/xeutils"
)

// OpKind selects the bind operation direction.
type OpKind uint32

const (
	OpMap   OpKind = OpKind(drm.BindOpMap)
	OpUnmap OpKind = OpKind(drm.BindOpUnmap)
)

// BindOp describes one entry of a bind batch.
type BindOp struct {
	Buffer    *Buffer
	ObjOffset uint64
	// Addr is the caller-chosen GPU virtual address. Must be aligned to the
	// buffer's region page size.
	Addr  uint64
	Range uint64
	Kind  OpKind
}

type liveMapping struct {
	handle uint32
	length uint64
}

// Binder maintains the virtual mappings of one VM. It validates alignment
// and overlap before handing a batch to the kernel, and tracks the live
// mappings so an unmap must name exactly what was mapped.
//
// Whether the kernel applies a failed batch partially is a platform detail
// this core does not rely on: any batch failure poisons the VM as
// binding-indeterminate and the binder refuses further work on it.
type Binder struct {
	dev *Device
	vm  *VM

	mutex utils.OptionalMutex
	live  *swiss.Map[uint64, liveMapping]
}

// NewBinder creates a binder for vm. One binder per VM: the live-mapping
// table is the binder's view of the VM's page tables.
func NewBinder(dev *Device, vm *VM) *Binder {
	return &Binder{
		dev:  dev,
		vm:   vm,
		live: swiss.NewMap[uint64, liveMapping](8),
	}
}

func (b *Binder) validateOp(op BindOp) error {
	if op.Buffer == nil {
		return errors.Mark(errors.New("bind op has no buffer"), ErrResource)
	}
	if op.Buffer.vm != b.vm {
		return errors.Mark(
			errors.Newf("bind of buffer %d into vm %d, but the buffer belongs to vm %d",
				op.Buffer.handle, b.vm.id, op.Buffer.vm.id),
			ErrResource)
	}

	pageSize := uint64(op.Buffer.placement.MinPageSize)
	if err := xeutils.CheckAligned(op.Addr, pageSize, "bind address"); err != nil {
		return errors.Mark(err, ErrResource)
	}
	if op.Range == 0 {
		return errors.Mark(errors.Newf("bind at %#x has zero range", op.Addr), ErrResource)
	}
	if err := xeutils.CheckAligned(op.Range, pageSize, "bind range"); err != nil {
		return errors.Mark(err, ErrResource)
	}

	switch op.Kind {
	case OpMap:
		var conflictAddr uint64
		var conflict bool
		b.live.Iter(func(addr uint64, m liveMapping) bool {
			if xeutils.RangesOverlap(op.Addr, op.Range, addr, m.length) {
				conflictAddr = addr
				conflict = true
				return true
			}
			return false
		})
		if conflict {
			return errors.Mark(
				errors.Newf("bind [%#x, %#x) overlaps the live mapping at %#x in vm %d",
					op.Addr, op.Addr+op.Range, conflictAddr, b.vm.id),
				ErrResource)
		}
	case OpUnmap:
		m, ok := b.live.Get(op.Addr)
		if !ok {
			return errors.Mark(errors.Newf("unmap at %#x: no live mapping in vm %d", op.Addr, b.vm.id), ErrResource)
		}
		if m.length != op.Range {
			return errors.Mark(
				errors.Newf("unmap at %#x spans %d bytes but the live mapping spans %d",
					op.Addr, op.Range, m.length),
				ErrResource)
		}
	default:
		return errors.Mark(errors.Newf("unknown bind op kind %d", op.Kind), ErrResource)
	}

	return nil
}

// Bind applies a batch of bind operations in one synchronous kernel request.
// The call blocks until the page-table update completes. The batch either
// updates the live-mapping table in full, or the VM is marked indeterminate.
func (b *Binder) Bind(ops []BindOp) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.vm.indeterminate {
		return errors.Mark(errors.Wrapf(ErrVmIndeterminate, "vm %d", b.vm.id), ErrResource)
	}
	if len(ops) == 0 {
		return nil
	}

	for _, op := range ops {
		if err := b.validateOp(op); err != nil {
			return err
		}
	}

	kernelOps := make([]drm.VmBindOp, len(ops))
	for i, op := range ops {
		kernelOps[i] = drm.VmBindOp{
			Obj:       op.Buffer.handle,
			ObjOffset: op.ObjOffset,
			Range:     op.Range,
			Addr:      op.Addr,
			Op:        uint32(op.Kind),
		}
		if op.Kind == OpUnmap {
			// Unmap addresses the range, not the object.
			kernelOps[i].Obj = 0
		}
	}

	req := drm.VmBind{
		VmID:     b.vm.id,
		NumBinds: uint32(len(kernelOps)),
	}
	if len(kernelOps) == 1 {
		req.Bind = kernelOps[0]
	} else {
		req.SetBindVector(kernelOps)
	}

	err := b.dev.drv.Ioctl(drm.IoctlVmBind, unsafe.Pointer(&req))
	runtime.KeepAlive(kernelOps)
	if err != nil {
		b.vm.indeterminate = true
		return errors.Mark(
			errors.Wrapf(err, "VM_BIND batch of %d ops on vm %d; binding state is now indeterminate",
				len(ops), b.vm.id),
			ErrResource)
	}

	for _, op := range ops {
		switch op.Kind {
		case OpMap:
			b.live.Put(op.Addr, liveMapping{handle: op.Buffer.handle, length: op.Range})
		case OpUnmap:
			b.live.Delete(op.Addr)
		}
	}

	xeutils.DebugValidate(b)

	b.dev.logger.Debug("bind batch applied", "vm_id", b.vm.id, "ops", len(ops))
	return nil
}

// Validate checks the live-mapping table invariants: no empty mappings, no
// pairwise overlap. Only runs under the debug_xe_utils build tag, via
// xeutils.DebugValidate.
func (b *Binder) Validate() error {
	type entry struct {
		addr   uint64
		length uint64
	}
	var entries []entry
	var err error
	b.live.Iter(func(addr uint64, m liveMapping) bool {
		if m.length == 0 {
			err = errors.Newf("live mapping at %#x in vm %d has zero length", addr, b.vm.id)
			return true
		}
		entries = append(entries, entry{addr, m.length})
		return false
	})
	if err != nil {
		return err
	}

	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if xeutils.RangesOverlap(entries[i].addr, entries[i].length, entries[j].addr, entries[j].length) {
				return errors.Newf("live mappings at %#x and %#x in vm %d overlap",
					entries[i].addr, entries[j].addr, b.vm.id)
			}
		}
	}
	return nil
}

// MapBuffer binds the whole buffer at addr.
func (b *Binder) MapBuffer(buf *Buffer, addr uint64) error {
	return b.Bind([]BindOp{{Buffer: buf, Addr: addr, Range: buf.size, Kind: OpMap}})
}

// UnmapBuffer removes the whole-buffer mapping previously established at addr.
func (b *Binder) UnmapBuffer(buf *Buffer, addr uint64) error {
	return b.Bind([]BindOp{{Buffer: buf, Addr: addr, Range: buf.size, Kind: OpUnmap}})
}

// LiveRange returns the length of the live mapping at addr, if one exists.
func (b *Binder) LiveRange(addr uint64) (uint64, bool) {
	m, ok := b.live.Get(addr)
	if !ok {
		return 0, false
	}
	return m.length, true
}

// LiveCount returns the number of live mappings.
func (b *Binder) LiveCount() int {
	return b.live.Count()
}
