// Package lifecycle holds the statement document state machine. The
// transition, next-action and note tables are plain data so callers and
// the HTTP layer can render them without duplicating rules.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

// ErrInvalidTransition is returned for any move the table does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// Action is an operation a user or the pipeline performs on a document.
type Action string

const (
	ActionValidate         Action = "validate"
	ActionFail             Action = "fail"
	ActionMarkDuplicate    Action = "mark_duplicate"
	ActionReprocess        Action = "reprocess"
	ActionActivate         Action = "activate"
	ActionPost             Action = "post"
	ActionArchive          Action = "archive"
	ActionViewOriginal     Action = "view_original"
	ActionViewTransactions Action = "view_transactions"
	ActionViewExceptions   Action = "view_exceptions"
	ActionViewPrimary      Action = "view_primary"
	ActionDownload         Action = "download_original"
)

// Transitions maps each state to the action that leaves it and the state
// reached. Archived has no way out.
var Transitions = map[models.Status]map[Action]models.Status{
	models.StatusUploaded: {
		ActionValidate:      models.StatusValidated,
		ActionFail:          models.StatusFailed,
		ActionMarkDuplicate: models.StatusDuplicate,
	},
	models.StatusValidated: {
		ActionActivate: models.StatusActive,
		ActionPost:     models.StatusPosted,
		ActionArchive:  models.StatusArchived,
	},
	models.StatusFailed: {
		ActionReprocess: models.StatusUploaded,
		ActionArchive:   models.StatusArchived,
	},
	models.StatusDuplicate: {
		ActionArchive: models.StatusArchived,
	},
	models.StatusActive: {
		ActionPost:    models.StatusPosted,
		ActionArchive: models.StatusArchived,
	},
	models.StatusPosted: {
		ActionArchive: models.StatusArchived,
	},
	models.StatusArchived: {},
}

// NextActions lists the affordances offered to a user in each state.
var NextActions = map[models.Status][]Action{
	models.StatusUploaded:  {ActionValidate, ActionViewOriginal},
	models.StatusValidated: {ActionActivate, ActionViewTransactions, ActionDownload},
	models.StatusFailed:    {ActionViewExceptions, ActionReprocess, ActionDownload},
	models.StatusDuplicate: {ActionViewPrimary, ActionDownload, ActionArchive},
	models.StatusActive:    {ActionViewTransactions, ActionPost, ActionArchive, ActionDownload},
	models.StatusPosted:    {ActionViewTransactions, ActionDownload, ActionArchive},
	models.StatusArchived:  {ActionViewTransactions, ActionDownload},
}

// Notes is the human-readable explanation shown next to each state.
var Notes = map[models.Status]string{
	models.StatusUploaded:  "File received and stored; extraction pending.",
	models.StatusValidated: "Fields and transaction counts reconcile; transactions imported.",
	models.StatusFailed:    "Extraction or reconciliation failed; see the reason and reprocess once fixed.",
	models.StatusDuplicate: "Another statement already covers this customer, account and period.",
	models.StatusActive:    "Transactions classified and open for review.",
	models.StatusPosted:    "Period closed; no further changes to this statement.",
	models.StatusArchived:  "Retained for reference only.",
}

// Next returns the state reached by applying action in from.
func Next(from models.Status, action Action) (models.Status, error) {
	to, ok := Transitions[from][action]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// CanTransition reports whether some action moves from to to.
func CanTransition(from, to models.Status) bool {
	for _, target := range Transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Actions returns the next actions for a state as strings.
func Actions(s models.Status) []string {
	list := NextActions[s]
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = string(a)
	}
	return out
}

// Mutable reports whether transactions of a document in state s may still
// be changed by classification or allocation.
func Mutable(s models.Status) bool {
	return s != models.StatusPosted && s != models.StatusArchived
}
