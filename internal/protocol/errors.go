package protocol

import (
	"errors"

	"raidforge.ai/internal/sim/raid"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrUnknownOp       = "E_UNKNOWN_OP"
	ErrNoPermission    = "E_NO_PERMISSION"

	// Engine failure kinds.
	ErrNotFound     = "E_NOT_FOUND"
	ErrInvalidState = "E_INVALID_STATE"
	ErrMembership   = "E_MEMBERSHIP"
	ErrValidation   = "E_VALIDATION"
	ErrAlreadyDone  = "E_ALREADY_DONE"

	ErrBadRequest = "E_BAD_REQUEST"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnknownOp:       {},
	ErrNoPermission:    {},
	ErrNotFound:        {},
	ErrInvalidState:    {},
	ErrMembership:      {},
	ErrValidation:      {},
	ErrAlreadyDone:     {},
	ErrBadRequest:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an engine error onto its wire code. Errors outside the
// engine taxonomy are internal.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, raid.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, raid.ErrInvalidState):
		return ErrInvalidState
	case errors.Is(err, raid.ErrMembership):
		return ErrMembership
	case errors.Is(err, raid.ErrValidation):
		return ErrValidation
	case errors.Is(err, raid.ErrAlreadyDone):
		return ErrAlreadyDone
	}
	return ErrInternal
}
