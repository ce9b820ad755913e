package routing

import (
	"errors"
	"fmt"
)

var (
	ErrConfigUnreadable = errors.New("routing config unreadable")
	ErrConfigInvalid    = errors.New("routing config invalid")
	ErrConfigSyntax     = errors.New("routing config syntax error")
	ErrNoRoute          = errors.New("no route matched")
)

// SyntaxError describes a malformed use_backend line.
type SyntaxError struct {
	Line   int
	Text   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at line %d: %s (%q)", ErrConfigSyntax, e.Line, e.Reason, e.Text)
}

func (e *SyntaxError) Unwrap() error {
	return ErrConfigSyntax
}
