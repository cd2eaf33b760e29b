package archiver

// Status is the outcome of one archive attempt for one conversation. The
// values reported by the notify endpoint are part of its response contract.
type Status string

const (
	StatusArchived     Status = "archived"
	StatusNoFile       Status = "no file"
	StatusNoTitle      Status = "no title"
	StatusExcluded     Status = "excluded"
	StatusUploadFailed Status = "upload failed"
	StatusLinkFailed   Status = "failed to add"
	StatusError        Status = "error"

	StatusOngoing     Status = "ongoing"
	StatusNoChat      Status = "no chat"
	StatusUnmapped    Status = "unmapped"
	StatusFailed      Status = "failed"
	StatusQuarantined Status = "quarantined"
)

// Summary counts the outcomes of one cycle.
type Summary struct {
	Archived    int
	Skipped     int
	Excluded    int
	Failed      int
	Quarantined int
}

func (s *Summary) add(status Status) {
	switch status {
	case StatusArchived:
		s.Archived++
	case StatusExcluded:
		s.Excluded++
	case StatusQuarantined:
		s.Quarantined++
	case StatusUploadFailed, StatusLinkFailed, StatusError, StatusFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}

func (s Summary) attrs() []any {
	return []any{
		"archived", s.Archived,
		"skipped", s.Skipped,
		"excluded", s.Excluded,
		"failed", s.Failed,
		"quarantined", s.Quarantined,
	}
}
