package bestsellers

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/briangreenhill/bestsellers/internal/isbn"
)

// PageSize is the number of results the upstream API returns per page;
// offsets must be a multiple of it.
const PageSize = 20

// Query is a filtered best-sellers history lookup.
type Query struct {
	Author string   `json:"author" validate:"max=255"`
	Title  string   `json:"title" validate:"max=255"`
	ISBN   []string `json:"isbn" validate:"dive,isbn13or10"`
	Offset *int     `json:"offset" validate:"omitempty,min=0,page"`
}

// Params is the canonical parameter set sent upstream and hashed into the
// cache key. Absent fields have no entry.
type Params map[string]string

// Normalize converts q into Params. ISBNs lose their separators and are
// joined with ';' in the order given.
func (q Query) Normalize() Params {
	p := Params{}
	if q.Author != "" {
		p["author"] = q.Author
	}
	if q.Title != "" {
		p["title"] = q.Title
	}
	if len(q.ISBN) > 0 {
		stripped := make([]string, len(q.ISBN))
		for i, s := range q.ISBN {
			stripped[i] = isbn.Strip(s)
		}
		p["isbn"] = strings.Join(stripped, ";")
	}
	if q.Offset != nil {
		p["offset"] = strconv.Itoa(*q.Offset)
	}
	return p
}

// ValidationError lists the problems found per field. Keys follow the
// request parameter names, with list entries addressed as "isbn.N".
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "invalid request parameters: " + strings.Join(parts, ", ")
}

// Add records msg against field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks queries before they reach the cache or the network.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the custom rules: isbn13or10 strips hyphens and
// spaces before checking the checksum, page requires a multiple of PageSize.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("isbn13or10", func(fl validator.FieldLevel) bool {
		return isbn.Valid(fl.Field().String())
	})
	_ = v.RegisterValidation("page", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%PageSize == 0
	})
	return &Validator{v: v}
}

// Validate returns a *ValidationError describing every failing field, or nil.
func (val *Validator) Validate(q Query) error {
	err := val.v.Struct(q)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate query: %w", err)
	}

	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		field := fieldName(fe)
		ve.Add(field, message(field, fe))
	}
	return ve
}

// fieldName turns "Query.isbn[1]" into "isbn.1".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	return strings.ReplaceAll(ns, "]", "")
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "isbn13or10":
		return "Each ISBN must be a valid ISBN-10 or ISBN-13 number."
	case "page":
		return fmt.Sprintf("The offset must be a multiple of %d.", PageSize)
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s must not be greater than %s characters.", field, fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}
