package orders

// sideEffect is what a transition does to stock besides writing the status.
type sideEffect int

const (
	effectNone sideEffect = iota
	effectDeliver
	effectCancel
)

type transitionKey struct {
	from Status
	to   Status
}

var workflow = []Status{
	StatusNew,
	StatusMaterialSelected,
	StatusCutting,
	StatusStitching,
	StatusFinishing,
	StatusReady,
	StatusDelivered,
}

// transitions allows any forward move along the workflow and cancellation from every
// non-terminal status.
var transitions = buildTransitions()

func buildTransitions() map[transitionKey]sideEffect {
	table := make(map[transitionKey]sideEffect)
	for i, from := range workflow[:len(workflow)-1] {
		for _, to := range workflow[i+1:] {
			effect := effectNone
			if to == StatusDelivered {
				effect = effectDeliver
			}
			table[transitionKey{from, to}] = effect
		}
		table[transitionKey{from, StatusCancelled}] = effectCancel
	}
	return table
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	for _, w := range workflow {
		if w == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Status) bool {
	_, ok := transitions[transitionKey{from, to}]
	return ok
}
