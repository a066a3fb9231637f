package xesub

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/drmwrapper/xekit/drm"
)

// Queue is a hardware-facing submission channel bound to one engine instance
// and one VM for its entire lifetime. This core always creates it with one
// instruction stream and one placement: one fixed engine, no load balancing.
type Queue struct {
	dev       *Device
	vm        *VM
	id        uint32
	engine    drm.EngineClassInstance
	destroyed bool
}

// CreateQueue creates an execution queue on vm for the given engine.
func (d *Device) CreateQueue(vm *VM, engine drm.EngineClassInstance) (*Queue, error) {
	instance := engine

	req := drm.ExecQueueCreate{
		Width:         1,
		NumPlacements: 1,
		VmID:          vm.id,
		Instances:     uint64(uintptr(unsafe.Pointer(&instance))),
	}

	err := d.drv.Ioctl(drm.IoctlExecQueueCreate, unsafe.Pointer(&req))
	runtime.KeepAlive(&instance)
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "EXEC_QUEUE_CREATE on vm %d, engine class %d instance %d",
				vm.id, engine.EngineClass, engine.EngineInstance),
			ErrSubmission)
	}

	d.logger.Info("exec queue created",
		"queue_id", req.ExecQueueID,
		"engine_class", engine.EngineClass,
		"engine_instance", engine.EngineInstance,
		"gt_id", engine.GtID,
		"vm_id", vm.id)

	return &Queue{dev: d, vm: vm, id: req.ExecQueueID, engine: engine}, nil
}

func (q *Queue) ID() uint32 {
	return q.id
}

func (q *Queue) Engine() drm.EngineClassInstance {
	return q.engine
}

// Destroy releases the queue. Idempotent.
func (q *Queue) Destroy() error {
	if q.destroyed {
		return nil
	}

	req := drm.ExecQueueDestroy{ExecQueueID: q.id}
	if err := q.dev.drv.Ioctl(drm.IoctlExecQueueDestroy, unsafe.Pointer(&req)); err != nil {
		return errors.Mark(errors.Wrapf(err, "EXEC_QUEUE_DESTROY queue %d", q.id), ErrSubmission)
	}

	q.destroyed = true
	return nil
}
