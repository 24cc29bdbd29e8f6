package parcel

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var houseNumberRe = regexp.MustCompile(`^(\d+[a-z]?)`)

// normalize folds case and compatibility forms so "ＥＡＳＴ Hartford" and
// "east hartford" compare equal. A Caser is stateful, so one is built per call.
func normalize(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(s)))
}

// HouseNumber returns the leading house number of an address, lower-cased, with an
// optional trailing letter ("12B Elm St" -> "12b"). It returns "" when the address
// does not start with digits. Only case is folded: NFKC would expand "12½" into
// "121⁄2".
func HouseNumber(address string) string {
	m := houseNumberRe.FindStringSubmatch(strings.TrimSpace(cases.Fold().String(address)))
	if m == nil {
		return ""
	}
	return m[1]
}

// townSegment returns the comma-separated segment expected to hold the town. For
// "123 Main St, East Hartford, CT 06108" that is "east hartford". Addresses without
// a comma are returned whole.
func townSegment(address string) string {
	parts := strings.Split(normalize(address), ",")
	if len(parts) < 2 {
		return strings.TrimSpace(parts[0])
	}
	return strings.TrimSpace(parts[1])
}
