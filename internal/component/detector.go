package component

import "github.com/l1jgo/worldgrid/internal/detect"

// Detector turns an occupant into an observer.
// Pure data; the detection system copies it into the detector module
// whenever the entity is staged.
type Detector struct {
	Radius    int32
	Condition detect.Predicate // nil accepts every target
	Removal   detect.Predicate // nil always allows dropping a relation
}

// Settings converts the component for the detector module.
func (d *Detector) Settings() detect.Settings {
	return detect.Settings{Radius: d.Radius, Condition: d.Condition, RemovalCondition: d.Removal}
}
