package models

// AvailabilityVerdict is the answer to "can this party join this tour on this day"
type AvailabilityVerdict struct {
	Available     bool `json:"available"`
	Capacity      int  `json:"capacity"`
	AlreadyBooked int  `json:"alreadyBooked"`
	CanAccept     int  `json:"canAccept"`
}

// EvaluateAvailability applies a party request against capacity and
// committed demand.
func EvaluateAvailability(capacity, alreadyBooked, requested int) AvailabilityVerdict {
	canAccept := capacity - alreadyBooked
	if canAccept < 0 {
		canAccept = 0
	}
	return AvailabilityVerdict{
		Available:     requested > 0 && alreadyBooked+requested <= capacity,
		Capacity:      capacity,
		AlreadyBooked: alreadyBooked,
		CanAccept:     canAccept,
	}
}

// ExceedsTourSize reports whether a single party can never fit the tour,
// in which case committed demand need not be read at all.
func ExceedsTourSize(capacity, requested int) bool {
	return requested > capacity
}

// OversizedPartyVerdict is returned for parties larger than the whole tour
func OversizedPartyVerdict(capacity int) AvailabilityVerdict {
	return AvailabilityVerdict{
		Available:     false,
		Capacity:      capacity,
		AlreadyBooked: 0,
		CanAccept:     capacity,
	}
}

// CheckAdmission is the decision a store applies inside its atomic unit once
// capacity and committed demand have been re-read: nil when the party fits,
// a *CapacityExceededError otherwise.
func CheckAdmission(tourRef string, dateKey DateKey, partySize, capacity, alreadyBooked int) error {
	verdict := EvaluateAvailability(capacity, alreadyBooked, partySize)
	if verdict.Available {
		return nil
	}
	return &CapacityExceededError{
		TourRef:   tourRef,
		DateKey:   dateKey,
		Requested: partySize,
		Verdict:   verdict,
	}
}
