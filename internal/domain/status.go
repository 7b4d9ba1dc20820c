package domain

import "fmt"

// DocumentStatus tracks the extraction/analysis lifecycle of a document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusDone       DocumentStatus = "done"
	StatusFailed     DocumentStatus = "failed"
)

// statusRank orders the lifecycle. Transitions are monotonic: a document
// never reverts to an earlier state, and done/failed are terminal.
var statusRank = map[DocumentStatus]int{
	StatusUploaded:   0,
	StatusProcessing: 1,
	StatusDone:       2,
	StatusFailed:     2,
}

// Valid reports whether s is a known lifecycle state.
func (s DocumentStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether moving from s to next respects the
// uploaded -> processing -> done|failed ordering.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	return statusRank[next] == statusRank[s]+1
}

// ParseDocumentStatus validates a textual status.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	st := DocumentStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown document status: %q", s)
	}
	return st, nil
}
