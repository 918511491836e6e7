package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"concord/internal/prompt"

	"github.com/bwmarrin/discordgo"
)

// Kind is the closed set of command-failure classes. Every failure crossing
// the command boundary maps onto exactly one Kind.
type Kind int

const (
	Unclassified Kind = iota
	PermissionDenied
	MissingCapability
	MissingArgument
	BadArgument
	ForbiddenOperation
	OperationTimeout
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "PermissionDenied"
	case MissingCapability:
		return "MissingCapability"
	case MissingArgument:
		return "MissingArgument"
	case BadArgument:
		return "BadArgument"
	case ForbiddenOperation:
		return "ForbiddenOperation"
	case OperationTimeout:
		return "OperationTimeout"
	default:
		return "Unclassified"
	}
}

// CommandError tags a failure with its Kind at the point where the cause is
// known, so the router does not have to guess later.
type CommandError struct {
	Kind    Kind
	Message string
	// Missing lists the capability names the bot lacks. Set for
	// MissingCapability only.
	Missing []string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *CommandError) Unwrap() error { return e.Err }

// Denied reports a caller who failed a permission gate.
func Denied() error {
	return &CommandError{Kind: PermissionDenied, Message: "caller below required level"}
}

// MissingArg reports a required argument that was not supplied.
func MissingArg(name string) error {
	return &CommandError{Kind: MissingArgument, Message: fmt.Sprintf("missing required argument %q", name)}
}

// BadArg reports an argument that failed conversion or validation.
func BadArg(detail string) error {
	return &CommandError{Kind: BadArgument, Message: detail}
}

// NeedsCapabilities reports capabilities the bot itself lacks for a command.
func NeedsCapabilities(missing ...string) error {
	return &CommandError{
		Kind:    MissingCapability,
		Message: "missing capabilities: " + strings.Join(missing, ", "),
		Missing: missing,
	}
}

// Classify maps a failure onto its Kind. It is a pure function: an explicit
// *CommandError wins, then timeout-class and remote-forbidden causes, then
// the catch-all.
func Classify(err error) Kind {
	var tagged *CommandError
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, prompt.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return OperationTimeout
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
		return ForbiddenOperation
	}
	return Unclassified
}
