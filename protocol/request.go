package protocol

// Priority is the urgency class a client attaches to a request.
type Priority uint8

const (
	Passive Priority = iota
	Normal
	Urgent
)

// Priorities lists every class in service order, most urgent first.
var Priorities = [...]Priority{Urgent, Normal, Passive}

func (p Priority) String() string {
	switch p {
	case Urgent:
		return "urgent"
	case Normal:
		return "priority"
	default:
		return "passive"
	}
}

// PriorityFromSelector maps the selector byte of a request frame to its class.
func PriorityFromSelector(selector byte) Priority {
	switch selector {
	case 2:
		return Urgent
	case 1:
		return Normal
	default:
		return Passive
	}
}

// Selector returns the byte a client puts in a frame to request class p.
func (p Priority) Selector() byte {
	switch p {
	case Urgent:
		return 2
	case Normal:
		return 1
	default:
		return 0
	}
}

// Request is a single decoded request frame.
type Request struct {
	Index    uint8
	Archive  uint16
	Priority Priority
}
