package protocol

// ComputeDomain builds the protocol used throughout the tests and demos:
// a type that must be initialized before computing, where computation can
// fail and leave the instance re-computable.
//
// States:
//   NotReady:    constructed, not yet initialized
//   Initialized: ready to compute
//   Computed:    computation succeeded, results readable
//
// Transitions:
//   Initialize               : NotReady -> Initialized
//   Compute (result true)    : Initialized|Computed -> Computed
//   Compute (result false)   : Initialized|Computed -> Initialized
//   Data                     : Computed -> Computed (read-only)
//   Reset                    : any -> NotReady

const (
	NotReady    Value = "NotReady"
	Initialized Value = "Initialized"
	Computed    Value = "Computed"
)

func ComputeDomain() *Domain {
	d := NewDomain("Compute", NotReady, NotReady, Initialized, Computed)

	d.Allow("Initialize", NotReady).
		Always(Initialized)

	d.Allow("Compute", Initialized, Computed).
		OnResult(true, Computed).
		OnResult(false, Initialized)

	d.Allow("Data", Computed).
		Always(Computed)

	d.Allow("Reset", NotReady, Initialized, Computed).
		Always(NotReady)

	return d
}
