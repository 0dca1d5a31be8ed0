package check

import (
	"fmt"
	"strings"
)

// Side names which database a structure check inspected.
type Side string

const (
	SideSource      Side = "Source"
	SideDestination Side = "Destination"
)

// MissingFields returns the names in expected absent from actual, in the
// order of expected.
func MissingFields(expected, actual []string) []string {
	have := make(map[string]struct{}, len(actual))
	for _, f := range actual {
		have[f] = struct{}{}
	}
	var missing []string
	for _, f := range expected {
		if _, ok := have[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Structure fails when actual lacks any of the expected fields of document.
func Structure(side Side, document string, expected, actual []string) Result {
	missing := MissingFields(expected, actual)
	if len(missing) == 0 {
		return OK()
	}
	return Fail(Finding{
		Document: document,
		Fields:   missing,
		Message: fmt.Sprintf("%s fields are missing. Document: %s. Fields: %s",
			side, document, strings.Join(missing, ",")),
	})
}

// AssertEqual fails with message when expected != actual.
func AssertEqual(expected, actual int64, message string) Result {
	if expected == actual {
		return OK()
	}
	return Fail(Finding{Message: message})
}

// Count reconciles the row count of document.
func Count(document string, expected, actual int64) Result {
	r := AssertEqual(expected, actual, "Incorrect number of entities in document: "+document)
	if !r.Passed() {
		r.findings[0].Document = document
	}
	return r
}
