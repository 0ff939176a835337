package purge

import "fmt"

// Report is the outcome of one purge run. Err holds a data-access failure
// hit while selecting candidates; such a run deletes nothing further.
type Report struct {
	Policy  Policy
	Deleted int
	Err     error
}

func (r Report) Failed() bool {
	return r.Err != nil
}

func (r Report) String() string {
	switch {
	case r.Err != nil:
		return "Error: " + r.Err.Error()
	case r.Deleted > 0:
		return fmt.Sprintf("Deleted %d accounts.", r.Deleted)
	default:
		return "No accounts to delete."
	}
}
