package xesub

import (
	"github.com/cockroachdb/errors"

	"github.com/drmwrapper/xekit/drm"
	"github.com/drmwrapper/xekit/xeutils"
)

// fallbackPageSize is the alignment floor assumed when no region of the
// requested class exists to report one.
const fallbackPageSize uint32 = 4096

// Placement selects the memory regions an allocation may be satisfied from,
// along with the hardest alignment floor among them.
type Placement struct {
	// Mask has one bit set per acceptable region instance. A zero mask is a
	// degraded state: allocations against it are rejected.
	Mask        uint32
	MinPageSize uint32
}

// MemRegions returns the device's memory region snapshot, fetching it on
// first use.
func (d *Device) MemRegions() ([]drm.MemRegion, error) {
	if d.regions != nil {
		return d.regions, nil
	}

	payload, err := d.query(drm.QueryMemRegions, "MEM_REGIONS")
	if err != nil {
		return nil, err
	}

	regions, err := drm.DecodeMemRegions(payload)
	if err != nil {
		return nil, errors.Mark(err, ErrSetup)
	}

	d.regions = regions
	d.logger.Info("enumerated memory regions", "count", len(regions))
	return regions, nil
}

// SelectPlacement scans the region snapshot for the requested class, ORs
// each matching instance bit into the mask and takes the largest minimum
// page size across matches.
//
// No match is degraded but not fatal: the returned mask is zero and any
// allocation against it will fail with ErrResource.
func (d *Device) SelectPlacement(memClass uint16) (Placement, error) {
	regions, err := d.MemRegions()
	if err != nil {
		return Placement{}, err
	}

	placement := Placement{MinPageSize: fallbackPageSize}
	for _, r := range regions {
		if r.MemClass != memClass {
			continue
		}
		placement.Mask |= 1 << r.Instance
		if r.MinPageSize > placement.MinPageSize {
			placement.MinPageSize = r.MinPageSize
		}
	}

	if placement.Mask == 0 {
		d.logger.Warn("no memory region matches requested class; allocations will fail",
			"mem_class", memClass)
	}
	xeutils.DebugCheckPow2(placement.MinPageSize, "region min page size")

	return placement, nil
}
