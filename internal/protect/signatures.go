package protect

import "regexp"

// Category identifies the attack a signature reports.
type Category string

const (
	EscapedComment    Category = "ESCAPED_COMMENT"
	EscapedOr         Category = "ESCAPED_OR"
	EscapedAnd        Category = "ESCAPED_AND"
	EqualsWithComment Category = "EQUALS_WITH_COMMENT"
	EscapedSemicolon  Category = "ESCAPED_SEMICOLON"
	EscapedUnion      Category = "ESCAPED_UNION"
)

// Signature is a named pattern evaluated against whole string values.
type Signature struct {
	Category Category
	Pattern  *regexp.Regexp
}

// catalog is evaluated in this order. Patterns accept both the literal and
// the URL-escaped form of quotes, equals signs and semicolons.
var catalog = []Signature{
	{EscapedComment, regexp.MustCompile(`(?i)(%27|')\s*(--)`)},
	{EscapedOr, regexp.MustCompile(`(?i)\w*\s*(%27|')\s*(%6F|o)(%72|r)`)},
	{EscapedAnd, regexp.MustCompile(`(?i)\w*\s*(%27|')\s*(%61|a)(%6E|n)(%64|d)`)},
	{EqualsWithComment, regexp.MustCompile(`(?i)\s*(%3D|=)[^\n]*(%27|'|--|%3B|;)`)},
	{EscapedSemicolon, regexp.MustCompile(`(?i)\w*\s*(%27|')\s*(%3B|;)`)},
	{EscapedUnion, regexp.MustCompile(`(?i)\w*\s*(%27|')union`)},
}

// Catalog returns a copy of the signature catalog in evaluation order.
func Catalog() []Signature {
	out := make([]Signature, len(catalog))
	copy(out, catalog)
	return out
}

func isKnownCategory(c Category) bool {
	for _, sig := range catalog {
		if sig.Category == c {
			return true
		}
	}
	return false
}
