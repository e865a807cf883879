package harvest

import "time"

// Status is the terminal state of one URL in a batch.
type Status string

// Outcome statuses.
const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome is what a pipeline task reports for one URL.
type Outcome struct {
	URL      string
	Status   Status
	Reason   string
	Paths    Paths
	Duration time.Duration
}

// Succeeded builds a success outcome.
func Succeeded(url string, paths Paths) Outcome {
	return Outcome{URL: url, Status: StatusSuccess, Paths: paths}
}

// Failed builds a failure outcome.
func Failed(url string, reason string) Outcome {
	return Outcome{URL: url, Status: StatusFailure, Reason: reason}
}

// Report aggregates the outcomes of a batch in completion order.
type Report struct {
	RunID     string    `json:"run_id"`
	Mode      Mode      `json:"mode"`
	Succeeded []string  `json:"succeeded"`
	Failed    []string  `json:"failed"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Record appends an outcome to the matching list.
func (r *Report) Record(o Outcome) {
	if o.Status == StatusSuccess {
		r.Succeeded = append(r.Succeeded, o.URL)
		return
	}
	r.Failed = append(r.Failed, o.URL)
}

// Total returns the number of URLs accounted for.
func (r Report) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}
