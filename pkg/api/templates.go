package api

import (
	"strconv"
	"strings"
)

// MessageTemplates holds the revision log message templates, one per
// transition shape. Substitution is purely textual: tokens are replaced
// with their values verbatim, with no escaping.
//
// Supported tokens: {to-state}, {from-state}, {from-revision-id},
// {latest-state}, {latest-revision-id}.
type MessageTemplates struct {
	// TransitionLatest is used when the target revision is the latest one.
	TransitionLatest string

	// TransitionHistorical is used when an older revision is copied
	// forward.
	TransitionHistorical string

	// CopyLatestDraft is used when a non-published former head is
	// re-appended on top of a promoted historical revision.
	CopyLatestDraft string
}

// DefaultMessageTemplates returns the stock templates.
func DefaultMessageTemplates() MessageTemplates {
	return MessageTemplates{
		TransitionLatest:     "Scheduled transition: transitioning latest revision from {from-state} to {to-state}",
		TransitionHistorical: "Scheduled transition: copied revision #{from-revision-id} and changed from {from-state} to {to-state}",
		CopyLatestDraft:      "Scheduled transition: reverted {latest-state} revision #{latest-revision-id} back to top",
	}
}

// TokenData carries the substitution values for one transition.
type TokenData struct {
	ToState          string
	FromState        string
	LatestState      string
	FromRevisionID   int64
	LatestRevisionID int64
}

// RenderMessage substitutes tokens in template with values from data.
func RenderMessage(template string, data TokenData) string {
	r := strings.NewReplacer(
		"{to-state}", data.ToState,
		"{from-state}", data.FromState,
		"{latest-state}", data.LatestState,
		"{from-revision-id}", strconv.FormatInt(data.FromRevisionID, 10),
		"{latest-revision-id}", strconv.FormatInt(data.LatestRevisionID, 10),
	)
	return r.Replace(template)
}
