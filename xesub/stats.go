package xesub

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// BuildStatsString renders a JSON snapshot of the pipeline for diagnostics:
// coordinator state, cycle count, the device's region catalog and the VM's
// live mappings.
func (p *Pipeline) BuildStatsString() string {
	w := jwriter.NewWriter()
	obj := w.Object()

	obj.Name("State").String(p.state.String())
	obj.Name("Cycles").Int(int(p.cycles))
	obj.Name("Faulted").Bool(p.faulted)
	obj.Name("VmId").Int(int(p.vm.ID()))
	obj.Name("VmIndeterminate").Bool(p.vm.Indeterminate())
	obj.Name("PlacementMask").String(fmt.Sprintf("%#x", p.placement.Mask))
	obj.Name("MinPageSize").Int(int(p.placement.MinPageSize))

	if p.cmd != nil {
		cmd := obj.Name("CommandBuffer").Object()
		cmd.Name("Handle").Int(int(p.cmd.Handle()))
		cmd.Name("Size").Int(int(p.cmd.Size()))
		cmd.Name("Address").String(fmt.Sprintf("%#x", p.cmdAddr))
		cmd.End()
	}

	if p.queue != nil {
		queue := obj.Name("Queue").Object()
		queue.Name("Id").Int(int(p.queue.ID()))
		queue.Name("EngineClass").Int(int(p.queue.Engine().EngineClass))
		queue.Name("EngineInstance").Int(int(p.queue.Engine().EngineInstance))
		queue.End()
	}

	regions, err := p.dev.MemRegions()
	if err == nil {
		arr := obj.Name("Regions").Array()
		for _, r := range regions {
			entry := arr.Object()
			entry.Name("Class").Int(int(r.MemClass))
			entry.Name("Instance").Int(int(r.Instance))
			entry.Name("MinPageSize").Int(int(r.MinPageSize))
			entry.Name("TotalSize").Int(int(r.TotalSize))
			entry.End()
		}
		arr.End()
	}

	mappings := obj.Name("Mappings").Array()
	p.binder.live.Iter(func(addr uint64, m liveMapping) bool {
		entry := mappings.Object()
		entry.Name("Address").String(fmt.Sprintf("%#x", addr))
		entry.Name("Length").Int(int(m.length))
		entry.Name("Handle").Int(int(m.handle))
		entry.End()
		return false
	})
	mappings.End()

	obj.End()
	return string(w.Bytes())
}
