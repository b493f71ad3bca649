package postcode

import (
	"regexp"
	"strings"
)

// postcodePattern accepts the UK shapes the input mask allows, plus the
// central London A9A / AA9A outward codes.
var postcodePattern = regexp.MustCompile(`^(?:[A-Z]{1,2}[0-9]{1,2}|[A-Z][0-9][A-Z]|[A-Z]{2}[0-9][A-Z]) [0-9][A-Z]{2}$`)

// Normalize uppercases pc, strips mask placeholders and collapses
// whitespace. If pc has no space, one is inserted before the inward code.
func Normalize(pc string) string {
	pc = strings.ToUpper(strings.ReplaceAll(pc, "_", ""))
	pc = strings.Join(strings.Fields(pc), "")
	if len(pc) > 3 {
		pc = pc[:len(pc)-3] + " " + pc[len(pc)-3:]
	}
	return pc
}

// Valid reports whether pc (already normalized) is a complete UK postcode.
func Valid(pc string) bool {
	return postcodePattern.MatchString(pc)
}
