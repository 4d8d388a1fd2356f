package models

import "strings"

type ServiceState int

const (
	StateUnknown ServiceState = iota
	StateRunning
	StateStopped
)

func (s ServiceState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ServiceStatus is the observed state of one OS service. Err is set when the
// query itself failed (missing service, access denied, ...).
type ServiceStatus struct {
	State ServiceState
	Err   string
}

func Running() ServiceStatus { return ServiceStatus{State: StateRunning} }

func Stopped() ServiceStatus { return ServiceStatus{State: StateStopped} }

func StatusError(err error) ServiceStatus {
	return ServiceStatus{State: StateUnknown, Err: err.Error()}
}

func (s ServiceStatus) Active() bool {
	return s.Err == "" && s.State == StateRunning
}

func (s ServiceStatus) String() string {
	if s.Err != "" {
		return "Error: " + s.Err
	}
	return s.State.String()
}

// SnapshotEntry pairs a monitored service with its status at one tick.
type SnapshotEntry struct {
	Name   string
	Status ServiceStatus
}

// Snapshot is the composite status of all monitored services, kept in the
// configured order so that two serializations are comparable.
type Snapshot struct {
	Entries []SnapshotEntry
}

func (s *Snapshot) Add(name string, status ServiceStatus) {
	s.Entries = append(s.Entries, SnapshotEntry{Name: name, Status: status})
}

// String renders the snapshot as "name:status;" pairs.
func (s Snapshot) String() string {
	var b strings.Builder
	for _, e := range s.Entries {
		b.WriteString(e.Name)
		b.WriteByte(':')
		b.WriteString(e.Status.String())
		b.WriteByte(';')
	}
	return b.String()
}
