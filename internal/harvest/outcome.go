package harvest

// PageOutcomeKind tags the result of one page fetch. Sources fail in
// heterogeneous ways (slow render, empty result, hard block, server error)
// and the pagination loop needs to distinguish them rather than collapse
// everything into retry-or-abort.
type PageOutcomeKind int

// Page outcome kinds.
const (
	// PageCards means job cards were extracted; MoreAvailable signals
	// whether another page should be attempted.
	PageCards PageOutcomeKind = iota
	// PageNoResults is a legitimate empty result, not an error.
	PageNoResults
	// PageNotFound means the source confirmed the page does not exist.
	PageNotFound
	// PageBlocked means the source actively refused access.
	PageBlocked
	// PageTransient means the retry budget was exhausted on retryable
	// failures (timeouts, unexpected server errors).
	PageTransient
)

// String names the kind for logs.
func (k PageOutcomeKind) String() string {
	switch k {
	case PageCards:
		return "cards"
	case PageNoResults:
		return "no_results"
	case PageNotFound:
		return "not_found"
	case PageBlocked:
		return "blocked"
	case PageTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// PageOutcome is the result of driving the fetch state machine across one
// page, retries included. It never escapes the engine boundary.
type PageOutcome struct {
	Kind          PageOutcomeKind
	Records       []JobRecord
	MoreAvailable bool
	PromoSkipped  int
	CardErrors    int
	Attempts      int
	Err           error
}

// Terminal reports whether the task should stop paginating this sequence.
func (o PageOutcome) Terminal() bool {
	return o.Kind != PageCards || !o.MoreAvailable
}
