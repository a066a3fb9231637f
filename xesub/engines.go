package xesub

import (
	"github.com/cockroachdb/errors"

	"github.com/drmwrapper/xekit/drm"
)

// Engines returns the device's hardware engine snapshot, fetching it on
// first use. Uses the same two-phase query protocol as MemRegions.
func (d *Device) Engines() ([]drm.Engine, error) {
	if d.engines != nil {
		return d.engines, nil
	}

	payload, err := d.query(drm.QueryEngines, "ENGINES")
	if err != nil {
		return nil, err
	}

	engines, err := drm.DecodeEngines(payload)
	if err != nil {
		return nil, errors.Mark(err, ErrSetup)
	}

	d.engines = engines
	d.logger.Info("enumerated engines", "count", len(engines))
	return engines, nil
}

// SelectEngine returns the first engine of the requested class. No engine of
// that class means the device cannot serve the workload at all.
func (d *Device) SelectEngine(engineClass uint16) (drm.EngineClassInstance, error) {
	engines, err := d.Engines()
	if err != nil {
		return drm.EngineClassInstance{}, err
	}

	for _, e := range engines {
		if e.Instance.EngineClass == engineClass {
			return e.Instance, nil
		}
	}

	return drm.EngineClassInstance{}, errors.Mark(
		errors.Newf("no engine of class %d among %d reported engines", engineClass, len(engines)),
		ErrSetup)
}
