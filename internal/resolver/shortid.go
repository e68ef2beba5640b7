package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
// Set to 6 characters to balance usability with collision avoidance.
const MinShortIDLength = 6

// ScanFunc lists the full IDs matching a prefix.
type ScanFunc func(ctx context.Context, prefix string) ([]string, error)

// ExistsFunc verifies a full ID exists.
type ExistsFunc func(ctx context.Context, id string) error

// Resolve resolves a short ID prefix to a full UUID.
// Returns the full UUID if exactly one match found.
// Returns error if zero or multiple matches found.
//
// The function handles three cases:
// 1. Input is already a full UUID (36 chars, 4 hyphens) - validates existence
// 2. Input is too short (< 6 chars) - returns validation error
// 3. Input is a short prefix - scans for matches and returns unique result
func Resolve(ctx context.Context, kind, shortID string, scan ScanFunc, exists ExistsFunc) (string, error) {
	// If input is already a full UUID, verify it exists and return as-is
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		if err := exists(ctx, shortID); err != nil {
			if faults.IsNotFound(err) {
				return "", fmt.Errorf("%s not found: %s", kind, shortID)
			}
			return "", fmt.Errorf("failed to verify %s existence: %w", kind, err)
		}
		return shortID, nil
	}

	// Validate minimum length
	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := scan(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for %s: %w", kind, err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Kind: kind, ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Kind: kind, ShortID: shortID, Matches: matches}
	}
}

// Instance resolves a short ID against agent instances.
func Instance(ctx context.Context, client *store.Client, shortID string) (string, error) {
	return Resolve(ctx, "instance", shortID, client.ScanAgentIDs, func(ctx context.Context, id string) error {
		_, err := client.GetAgent(ctx, id)
		return err
	})
}

// Team resolves a short ID against teams.
func Team(ctx context.Context, client *store.Client, shortID string) (string, error) {
	return Resolve(ctx, "team", shortID, client.ScanTeamIDs, func(ctx context.Context, id string) error {
		_, err := client.GetTeam(ctx, id)
		return err
	})
}

// Workflow resolves a short ID against workflows.
func Workflow(ctx context.Context, client *store.Client, shortID string) (string, error) {
	return Resolve(ctx, "workflow", shortID, client.ScanWorkflowIDs, func(ctx context.Context, id string) error {
		_, err := client.GetWorkflow(ctx, id)
		return err
	})
}

// NotFoundError indicates nothing matched the short ID.
type NotFoundError struct {
	Kind    string
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %ss found matching '%s'", e.Kind, e.ShortID)
}

// AmbiguousError indicates multiple entities matched the short ID.
type AmbiguousError struct {
	Kind    string
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d %ss", e.ShortID, len(e.Matches), e.Kind)
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous short IDs.
// Lists all matching UUIDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous short ID '%s' matches %d %ss:\n", err.ShortID, len(err.Matches), err.Kind)

	// List up to 10 matches
	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += fmt.Sprintf("\nUse a longer prefix to uniquely identify the %s.", err.Kind)
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
