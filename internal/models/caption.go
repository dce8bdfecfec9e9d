package models

import "time"

// Caption is one reviewed image as persisted in the dataset: the (possibly
// operator-edited) generated caption, the optional manual caption, and the
// evaluation each caption received before saving.
type Caption struct {
	ID                   string
	ImagePath            string
	GeneratedCaption     string
	ManualCaption        string
	GeneratedScore       *int
	GeneratedExplanation string
	ManualScore          *int
	ManualExplanation    string
	ReviewedAt           time.Time
}

// HasManual reports whether the operator provided a manual caption.
func (c *Caption) HasManual() bool {
	return c.ManualCaption != ""
}

// ValidScore reports whether n is in the displayable evaluation range.
func ValidScore(n int) bool {
	return n >= 1 && n <= 5
}
