// Package trigger evaluates whether a pipeline should run for a given
// branch/tag combination.
//
// The rules mirror standard CI trigger semantics:
//
//   - A tag matching the pipeline's tag pattern always triggers the run,
//     regardless of branch filters. Tag runs are what gate deploys.
//   - Otherwise the branch is checked against branches.only (allow list)
//     and branches.except (deny list). Patterns are exact names or
//     path.Match globs, so "release/*" works as expected.
//   - An empty only-list means every branch triggers (subject to except).
package trigger

import (
	"fmt"
	"path"
	"regexp"

	"github.com/pipewright/pipewright/internal/model"
)

// Decision is the outcome of evaluating the trigger filters.
type Decision struct {
	// Run reports whether the pipeline should execute.
	Run bool

	// TagRun reports whether the run is tag-triggered. Only tag runs
	// are eligible for tag-gated deploys.
	TagRun bool

	// Reason is a human-readable explanation, shown to the user when a
	// run is skipped and recorded in the run result.
	Reason string
}

// Evaluate applies the pipeline's trigger filters to the given branch
// and tag. Either value may be empty; both empty yields a skip.
//
// The tag pattern must already be defaulted (config.ApplyDefaults); an
// unparseable pattern is reported as an error rather than silently
// skipping, since Validate should have caught it earlier.
func Evaluate(p *model.Pipeline, branch, tag string) (Decision, error) {
	if tag != "" {
		re, err := regexp.Compile(p.TagPattern)
		if err != nil {
			return Decision{}, fmt.Errorf("invalid tag pattern %q: %w", p.TagPattern, err)
		}
		if re.MatchString(tag) {
			return Decision{
				Run:    true,
				TagRun: true,
				Reason: fmt.Sprintf("tag %q matches pattern %s", tag, p.TagPattern),
			}, nil
		}
		// A non-matching tag falls through to branch evaluation: the
		// commit may still be on a triggering branch.
	}

	if branch == "" {
		return Decision{Reason: "no branch or matching tag"}, nil
	}

	if len(p.Branches.Only) > 0 && !matchAny(p.Branches.Only, branch) {
		return Decision{
			Reason: fmt.Sprintf("branch %q not in branches.only %v", branch, p.Branches.Only),
		}, nil
	}
	if matchAny(p.Branches.Except, branch) {
		return Decision{
			Reason: fmt.Sprintf("branch %q excluded by branches.except %v", branch, p.Branches.Except),
		}, nil
	}

	return Decision{
		Run:    true,
		Reason: fmt.Sprintf("branch %q matches filters", branch),
	}, nil
}

// matchAny reports whether the branch matches any pattern in the list.
// Patterns are tried as path.Match globs first; a malformed glob falls
// back to exact string comparison.
func matchAny(patterns []string, branch string) bool {
	for _, pat := range patterns {
		if ok, err := path.Match(pat, branch); err == nil && ok {
			return true
		}
		if pat == branch {
			return true
		}
	}
	return false
}
