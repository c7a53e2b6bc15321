package taxonomy

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Rules are the validation rules an attribute value must satisfy
type Rules struct {
	Choices     []string         `json:"choices,omitempty"`
	MinLength   *int             `json:"min_length,omitempty"`
	MaxLength   *int             `json:"max_length,omitempty"`
	Min         *decimal.Decimal `json:"min,omitempty"`
	Max         *decimal.Decimal `json:"max,omitempty"`
	Pattern     string           `json:"pattern,omitempty"`
	MultiValue  bool             `json:"multi_value,omitempty"`
	Separator   string           `json:"separator,omitempty"`
	CategoryIDs []string         `json:"category_ids,omitempty"`
}

// Validate checks that the rules themselves are consistent
func (r Rules) Validate() error {
	if r.MinLength != nil && *r.MinLength < 0 {
		return fmt.Errorf("%w: negative min_length", ErrEntryInvalidRules)
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		return fmt.Errorf("%w: min_length exceeds max_length", ErrEntryInvalidRules)
	}
	if r.Min != nil && r.Max != nil && r.Min.GreaterThan(*r.Max) {
		return fmt.Errorf("%w: min exceeds max", ErrEntryInvalidRules)
	}
	if r.Pattern != "" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("%w: pattern: %v", ErrEntryInvalidRules, err)
		}
	}
	return nil
}

// Equal compares two rule sets
func (r Rules) Equal(o Rules) bool {
	return slices.Equal(r.Choices, o.Choices) &&
		intPtrEqual(r.MinLength, o.MinLength) &&
		intPtrEqual(r.MaxLength, o.MaxLength) &&
		decPtrEqual(r.Min, o.Min) &&
		decPtrEqual(r.Max, o.Max) &&
		r.Pattern == o.Pattern &&
		r.MultiValue == o.MultiValue &&
		r.Separator == o.Separator &&
		slices.Equal(r.CategoryIDs, o.CategoryIDs)
}

// Check validates value against the rules for dataType and returns the
// violations. An empty value has no violations; requiredness is checked by
// the caller.
func (r Rules) Check(dataType DataType, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	parts := []string{value}
	if r.MultiValue {
		parts = r.split(value)
	}

	var violations []string
	for _, part := range parts {
		violations = append(violations, r.checkOne(dataType, part)...)
	}
	return violations
}

func (r Rules) split(value string) []string {
	sep := r.Separator
	if sep == "" {
		sep = ","
	}
	raw := strings.Split(value, sep)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (r Rules) checkOne(dataType DataType, value string) []string {
	var violations []string

	switch dataType {
	case DataTypeInteger, DataTypeDecimal:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return []string{fmt.Sprintf("%q is not a number", value)}
		}
		if dataType == DataTypeInteger && !d.Equal(d.Truncate(0)) {
			violations = append(violations, fmt.Sprintf("%q is not an integer", value))
		}
		if r.Min != nil && d.LessThan(*r.Min) {
			violations = append(violations, fmt.Sprintf("%s is below minimum %s", d, r.Min))
		}
		if r.Max != nil && d.GreaterThan(*r.Max) {
			violations = append(violations, fmt.Sprintf("%s is above maximum %s", d, r.Max))
		}
	case DataTypeBoolean:
		switch strings.ToLower(value) {
		case "true", "false", "yes", "no", "1", "0":
		default:
			violations = append(violations, fmt.Sprintf("%q is not a boolean", value))
		}
	case DataTypeDate:
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			violations = append(violations, fmt.Sprintf("%q is not a date (YYYY-MM-DD)", value))
		}
	case DataTypeURL:
		u, err := url.ParseRequestURI(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			violations = append(violations, fmt.Sprintf("%q is not an http(s) URL", value))
		}
	}

	if dataType == DataTypeString || dataType == DataTypeText || dataType == DataTypeList {
		n := utf8.RuneCountInString(value)
		if r.MinLength != nil && n < *r.MinLength {
			violations = append(violations, fmt.Sprintf("length %d is below minimum %d", n, *r.MinLength))
		}
		if r.MaxLength != nil && n > *r.MaxLength {
			violations = append(violations, fmt.Sprintf("length %d is above maximum %d", n, *r.MaxLength))
		}
	}

	if r.Pattern != "" {
		if re, err := regexp.Compile(r.Pattern); err == nil && !re.MatchString(value) {
			violations = append(violations, fmt.Sprintf("%q does not match pattern %s", value, r.Pattern))
		}
	}

	if len(r.Choices) > 0 {
		if _, ok := MatchChoice(r.Choices, value); !ok {
			violations = append(violations, fmt.Sprintf("%q is not an allowed value", value))
		}
	}

	return violations
}

// FoldValue normalizes a value for case- and form-insensitive comparison.
// A Caser keeps state, so each call builds its own.
func FoldValue(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// MatchChoice finds value among choices ignoring case and Unicode form and
// returns the canonical spelling
func MatchChoice(choices []string, value string) (string, bool) {
	folded := FoldValue(value)
	for _, c := range choices {
		if FoldValue(c) == folded {
			return c, true
		}
	}
	return "", false
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
