package l5tracks

// ObjectClass is the camera classification attached to an occupant.
type ObjectClass int

const (
	ClassUnknown ObjectClass = iota
	ClassCar
	ClassPedestrian
	ClassCyclist
	ClassSign
)

// String returns the lowercase class name.
func (c ObjectClass) String() string {
	switch c {
	case ClassCar:
		return "car"
	case ClassPedestrian:
		return "pedestrian"
	case ClassCyclist:
		return "cyclist"
	case ClassSign:
		return "sign"
	default:
		return "unknown"
	}
}
