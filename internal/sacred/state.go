package sacred

// SealState is the lifecycle stage of a Core. Transitions are monotonic:
// Unsealed to Sealed to LockedDown, never backward.
type SealState int

const (
	// Unsealed accepts registrations but refuses invocation.
	Unsealed SealState = iota
	// Sealed refuses registrations and serves invocations under
	// integrity protection.
	Sealed
	// LockedDown refuses everything permanently.
	LockedDown
)

func (s SealState) String() string {
	switch s {
	case Unsealed:
		return "unsealed"
	case Sealed:
		return "sealed"
	case LockedDown:
		return "locked_down"
	default:
		return "unknown"
	}
}
