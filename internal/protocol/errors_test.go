package protocol

import (
	"errors"
	"fmt"
	"testing"

	"raidforge.ai/internal/sim/raid"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrUnknownOp,
		ErrNoPermission,
		ErrNotFound,
		ErrInvalidState,
		ErrMembership,
		ErrValidation,
		ErrAlreadyDone,
		ErrBadRequest,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&raid.Error{Kind: raid.ErrNotFound, Reason: "raid raid_9 not found"}, ErrNotFound},
		{&raid.Error{Kind: raid.ErrInvalidState, Reason: "x"}, ErrInvalidState},
		{&raid.Error{Kind: raid.ErrMembership, Reason: "x"}, ErrMembership},
		{&raid.Error{Kind: raid.ErrValidation, Reason: "x"}, ErrValidation},
		{fmt.Errorf("wrapped: %w", &raid.Error{Kind: raid.ErrAlreadyDone, Reason: "x"}), ErrAlreadyDone},
		{errors.New("disk full"), ErrInternal},
	}
	for _, c := range cases {
		if got := CodeFor(c.err); got != c.want {
			t.Fatalf("CodeFor(%v)=%q want %q", c.err, got, c.want)
		}
		if !IsKnownCode(CodeFor(c.err)) {
			t.Fatalf("CodeFor(%v) returned unknown code", c.err)
		}
	}
}
