package profile

import (
	"fmt"
	"regexp"

	"github.com/hostlint/hostlint/internal/models"
)

// Validate checks a resolved profile for authoring errors that would
// otherwise only surface mid-run: missing ids or commands, unknown
// enums, uncompilable regexps. It normalizes severity, module and
// assert_type casing in place and returns every problem found rather
// than stopping at the first.
func Validate(p *models.Profile) []string {
	var errs []string

	if len(p.Checks) == 0 {
		errs = append(errs, "profile has no checks")
	}

	for i := range p.Checks {
		chk := &p.Checks[i]
		where := fmt.Sprintf("check %d (id %q)", i, chk.ID)

		if chk.ID == "" {
			errs = append(errs, where+": missing id")
		}
		if chk.Command == "" {
			errs = append(errs, where+": missing command")
		}

		if chk.Severity != "" {
			sev, err := models.ParseSeverity(string(chk.Severity))
			if err != nil {
				errs = append(errs, where+": "+err.Error())
			} else {
				chk.Severity = sev
			}
		} else {
			chk.Severity = models.SeverityLow
		}

		if chk.AssertType != "" {
			at, err := models.ParseAssertType(string(chk.AssertType))
			if err != nil {
				errs = append(errs, where+": "+err.Error())
			} else {
				chk.AssertType = at
			}
		} else {
			chk.AssertType = models.AssertExact
		}

		if chk.OnFail != "" {
			if _, ok := models.ParseStatus(chk.OnFail); !ok {
				errs = append(errs, where+fmt.Sprintf(": invalid on_fail status %q", chk.OnFail))
			}
		}

		// Precompile static regexps; templated ones are checked at
		// evaluation time since the pattern depends on the context.
		if chk.AssertType == models.AssertRegexp || chk.AssertType == models.AssertNotRegexp {
			if pattern, ok := chk.Expect.AsString(); ok && !containsTemplate(pattern) {
				if _, err := regexp.Compile(pattern); err != nil {
					errs = append(errs, where+fmt.Sprintf(": invalid regexp in expect: %v", err))
				}
			}
		}
	}

	return errs
}

var templateMarker = regexp.MustCompile(`\{\{.*\}\}`)

func containsTemplate(s string) bool { return templateMarker.MatchString(s) }
