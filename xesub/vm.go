package xesub

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/drmwrapper/xekit/drm"
)

// VM is an isolated GPU page-table context. It is a namespace token: buffers
// are created against it, the binder maps into it, and the exec queue that
// references those mappings must be created on it.
type VM struct {
	dev *Device
	id  uint32

	// Set when a bind batch failed. The kernel may have applied any subset
	// of the batch, so the page-table state is unknowable from here.
	indeterminate bool
	destroyed     bool
}

// CreateVM creates a fresh address space on the device.
func (d *Device) CreateVM() (*VM, error) {
	req := drm.VmCreate{}
	if err := d.drv.Ioctl(drm.IoctlVmCreate, unsafe.Pointer(&req)); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "VM_CREATE"), ErrSetup)
	}

	d.logger.Info("vm created", "vm_id", req.VmID)
	return &VM{dev: d, id: req.VmID}, nil
}

func (vm *VM) ID() uint32 {
	return vm.id
}

// Indeterminate reports whether a failed bind batch has poisoned this VM.
func (vm *VM) Indeterminate() bool {
	return vm.indeterminate
}

// Destroy releases the address space. Idempotent.
func (vm *VM) Destroy() error {
	if vm.destroyed {
		return nil
	}

	req := drm.VmDestroy{VmID: vm.id}
	if err := vm.dev.drv.Ioctl(drm.IoctlVmDestroy, unsafe.Pointer(&req)); err != nil {
		return errors.Mark(errors.Wrapf(err, "VM_DESTROY vm %d", vm.id), ErrResource)
	}

	vm.destroyed = true
	return nil
}
