package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"validation", fmt.Errorf("%w: title is required", ErrValidation), ErrValidation},
		{"double wrapped", fmt.Errorf("save: %w", fmt.Errorf("%w: moc x", ErrNotFound)), ErrNotFound},
		{"transition", fmt.Errorf("%w: draft -> draft", ErrInvalidTransition), ErrInvalidTransition},
		{"unclassified", errors.New("boom"), nil},
		{"nil", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.want {
				t.Fatalf("Kind(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
