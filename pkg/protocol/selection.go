package protocol

// Replaces reports whether an event created at candidate, received after an
// event created at current, takes its place. Creation times decide, and on
// ties the event received later wins. Every newest selection goes through it.
func Replaces(candidate, current int64) bool {
	return candidate >= current
}

// Newest returns the event with the greatest creation time. On ties the one
// appearing later in the slice, i.e. received later, wins.
func Newest(events []VerifiedEvent) (VerifiedEvent, bool) {
	i := newestIndex(len(events), func(i int) int64 {
		return int64(events[i].CreatedAt())
	})
	if i < 0 {
		return VerifiedEvent{}, false
	}
	return events[i], true
}

// NewestRequest applies the same rule as Newest to contract requests.
func NewestRequest(requests []ContractRequest) (ContractRequest, bool) {
	i := newestIndex(len(requests), func(i int) int64 {
		return int64(requests[i].Source().CreatedAt())
	})
	if i < 0 {
		return ContractRequest{}, false
	}
	return requests[i], true
}

func newestIndex(n int, createdAt func(i int) int64) int {
	best := -1
	for i := 0; i < n; i++ {
		if best < 0 || Replaces(createdAt(i), createdAt(best)) {
			best = i
		}
	}
	return best
}
