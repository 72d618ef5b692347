package order

// TransitionPolicy decides which status changes UpdateOrderStatus accepts.
type TransitionPolicy string

const (
	// PolicyPermissive accepts any known target status from any status.
	PolicyPermissive TransitionPolicy = "permissive"
	// PolicyStrict accepts only the forward transitions in allowedTransitions.
	PolicyStrict TransitionPolicy = "strict"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCanceled},
	StatusProcessing: {StatusShipping, StatusCanceled},
	StatusShipping:   {StatusCompleted, StatusReturned},
	StatusCompleted:  {StatusReturned},
}

func (p TransitionPolicy) Valid() bool {
	return p == PolicyPermissive || p == PolicyStrict
}

// Allows reports whether the policy accepts from -> to.
func (p TransitionPolicy) Allows(from, to Status) bool {
	if p != PolicyStrict {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
