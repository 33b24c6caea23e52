package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"plain", errors.New("disk full"), nil},
		{"bare sentinel", ErrConflict, ErrConflict},
		{"wrapped", fmt.Errorf("task 7: %w", ErrNotFound), ErrNotFound},
		{"double wrapped", fmt.Errorf("update: %w", fmt.Errorf("parent %w", ErrInvalidOperation)), ErrInvalidOperation},
		{"joined", errors.Join(errors.New("title"), ErrValidation), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}
