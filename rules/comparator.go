package rules

import "fmt"

// Comparator is how a NumberRule relates a state field to its target value.
// The zero value is Equal.
type Comparator int

const (
	Equal Comparator = iota
	Greater
	Less
)

// ParseComparator converts the textual form. The empty string is Equal.
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case "", "equal":
		return Equal, nil
	case "greater":
		return Greater, nil
	case "less":
		return Less, nil
	}
	return Equal, fmt.Errorf("%w: %q (use greater, less or equal)", ErrUnknownComparator, s)
}

func (c Comparator) String() string {
	switch c {
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	case Less:
		return "less"
	}
	return fmt.Sprintf("Comparator(%d)", int(c))
}

// Compare reports whether got relates to want per c.
func (c Comparator) Compare(got, want float64) bool {
	switch c {
	case Equal:
		return got == want
	case Greater:
		return got > want
	case Less:
		return got < want
	}
	return false
}

func (c Comparator) symbol() string {
	switch c {
	case Equal:
		return "=="
	case Greater:
		return ">"
	case Less:
		return "<"
	}
	return "?"
}
