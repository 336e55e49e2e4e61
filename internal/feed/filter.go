package feed

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"jobmate/swipe-service/internal/model"
)

// ErrInvalidFilter is wrapped by every filter construction or parse error.
var ErrInvalidFilter = errors.New("invalid filter")

// Kind tags the Filter variant.
type Kind string

const (
	KindTextContains Kind = "contains"
	KindEquals       Kind = "eq"
	KindRange        Kind = "range"
	KindFlag         Kind = "flag"
)

// Field names a filterable JobPosting attribute.
type Field string

const (
	FieldText           Field = "text" // title and category combined
	FieldTitle          Field = "title"
	FieldCategory       Field = "category"
	FieldLocation       Field = "location"
	FieldEmploymentType Field = "employment_type"
	FieldEmployerID     Field = "employer_id"
	FieldSalaryMin      Field = "salary_min"
	FieldSalaryMax      Field = "salary_max"
	FieldExperienceMin  Field = "experience_min"
	FieldIsRemote       Field = "is_remote"
)

var textFields = map[Field]bool{
	FieldText:           true,
	FieldTitle:          true,
	FieldCategory:       true,
	FieldLocation:       true,
	FieldEmploymentType: true,
	FieldEmployerID:     true,
}

var numericFields = map[Field]bool{
	FieldSalaryMin:     true,
	FieldSalaryMax:     true,
	FieldExperienceMin: true,
}

var flagFields = map[Field]bool{
	FieldIsRemote: true,
}

// Filter is one predicate over a job posting. Only the members relevant to
// Kind are read.
type Filter struct {
	Kind   Kind
	Field  Field
	Value  string
	Negate bool
	Min    *float64
	Max    *float64
	Flag   bool
}

// TextContains matches when field contains needle, ignoring case.
func TextContains(field Field, needle string) Filter {
	return Filter{Kind: KindTextContains, Field: field, Value: needle}
}

// NotContains matches when field does not contain needle, ignoring case.
func NotContains(field Field, needle string) Filter {
	return Filter{Kind: KindTextContains, Field: field, Value: needle, Negate: true}
}

// Equals matches an exact, case-insensitive field value.
func Equals(field Field, value string) Filter {
	return Filter{Kind: KindEquals, Field: field, Value: value}
}

// Range matches numeric fields within [min, max]. A nil bound is open; a job
// with the field unset never matches.
func Range(field Field, min, max *float64) Filter {
	return Filter{Kind: KindRange, Field: field, Min: min, Max: max}
}

// Flag matches a boolean field.
func Flag(field Field, want bool) Filter {
	return Filter{Kind: KindFlag, Field: field, Flag: want}
}

// Validate rejects field and kind combinations that cannot be evaluated.
func (f Filter) Validate() error {
	switch f.Kind {
	case KindTextContains, KindEquals:
		if !textFields[f.Field] {
			return fmt.Errorf("%w: field %q does not support %s", ErrInvalidFilter, f.Field, f.Kind)
		}
		if strings.TrimSpace(f.Value) == "" {
			return fmt.Errorf("%w: empty value for %s", ErrInvalidFilter, f.Field)
		}
	case KindRange:
		if !numericFields[f.Field] {
			return fmt.Errorf("%w: field %q is not numeric", ErrInvalidFilter, f.Field)
		}
		if f.Min == nil && f.Max == nil {
			return fmt.Errorf("%w: range on %s has no bounds", ErrInvalidFilter, f.Field)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("%w: range on %s has min > max", ErrInvalidFilter, f.Field)
		}
	case KindFlag:
		if !flagFields[f.Field] {
			return fmt.Errorf("%w: field %q is not a flag", ErrInvalidFilter, f.Field)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFilter, f.Kind)
	}
	return nil
}

// Match evaluates f against j. f must be valid.
func (f Filter) Match(j *model.JobPosting) bool {
	switch f.Kind {
	case KindTextContains:
		hit := strings.Contains(strings.ToLower(textValue(j, f.Field)), strings.ToLower(strings.TrimSpace(f.Value)))
		return hit != f.Negate
	case KindEquals:
		return strings.EqualFold(textValue(j, f.Field), strings.TrimSpace(f.Value))
	case KindRange:
		v := numericValue(j, f.Field)
		if v == nil {
			return false
		}
		if f.Min != nil && *v < *f.Min {
			return false
		}
		if f.Max != nil && *v > *f.Max {
			return false
		}
		return true
	case KindFlag:
		return j.IsRemote == f.Flag
	}
	return false
}

func textValue(j *model.JobPosting, f Field) string {
	switch f {
	case FieldText:
		return j.Title + " " + j.Category
	case FieldTitle:
		return j.Title
	case FieldCategory:
		return j.Category
	case FieldLocation:
		return j.Location
	case FieldEmploymentType:
		return string(j.EmploymentType)
	case FieldEmployerID:
		return j.EmployerID
	}
	return ""
}

func numericValue(j *model.JobPosting, f Field) *float64 {
	switch f {
	case FieldSalaryMin:
		return j.SalaryMin
	case FieldSalaryMax:
		return j.SalaryMax
	case FieldExperienceMin:
		return j.ExperienceRequiredMin
	}
	return nil
}

// ParseQuery reads filters from URL query parameters of the form
//
//	contains.<field>=needle   not.<field>=needle   eq.<field>=value
//	min.<field>=n             max.<field>=n        flag.<field>=true|false
//
// Parameters without a recognised prefix are ignored so callers can mix in
// paging arguments. min and max on the same field fold into one Range.
// Keys are read in sorted order, so the result and the first reported error
// do not depend on map iteration.
func ParseQuery(q url.Values) ([]Filter, error) {
	var out []Filter
	ranges := map[Field]*Filter{}
	var rangeOrder []Field

	for _, key := range slices.Sorted(maps.Keys(q)) {
		values := q[key]
		prefix, name, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		field := Field(name)
		for _, v := range values {
			switch prefix {
			case "contains":
				out = append(out, TextContains(field, v))
			case "not":
				out = append(out, NotContains(field, v))
			case "eq":
				out = append(out, Equals(field, v))
			case "flag":
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidFilter, key, v)
				}
				out = append(out, Flag(field, b))
			case "min", "max":
				n, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidFilter, key, v)
				}
				r, seen := ranges[field]
				if !seen {
					r = &Filter{Kind: KindRange, Field: field}
					ranges[field] = r
					rangeOrder = append(rangeOrder, field)
				}
				if prefix == "min" {
					r.Min = &n
				} else {
					r.Max = &n
				}
			default:
				continue
			}
		}
	}
	for _, f := range rangeOrder {
		out = append(out, *ranges[f])
	}

	for _, f := range out {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
