package service

// Component names reported to a StatusReporter.
const (
	ComponentDevice    = "device"
	ComponentSync      = "sync"
	ComponentDirectory = "directory"
)

// StatusReporter receives liveness transitions from the workers.
type StatusReporter interface {
	SetServing(component string, serving bool)
}

type nopReporter struct{}

func (nopReporter) SetServing(string, bool) {}

func reporterOrNop(r StatusReporter) StatusReporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}
