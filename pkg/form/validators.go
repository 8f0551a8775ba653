package form

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Validator checks a single field value.
type Validator interface {
	// Validate returns nil if valid, or an error carrying a user message.
	Validate(v Value) error
}

// ValidatorFunc is a function that implements Validator.
type ValidatorFunc func(v Value) error

func (f ValidatorFunc) Validate(v Value) error {
	return f(v)
}

// FieldError is a validation failure on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors collects field errors in schema order.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

// Required rejects empty values. For flags it requires true, which is how
// confirmation checkboxes are expressed.
func Required(msg string) Validator {
	if msg == "" {
		msg = "This field is required"
	}
	return ValidatorFunc(func(v Value) error {
		if v.Shape() == ShapeBool {
			if !v.Flag() {
				return FieldError{Message: msg}
			}
			return nil
		}
		if v.IsEmpty() {
			return FieldError{Message: msg}
		}
		return nil
	})
}

// MinLength validates that a string has at least n characters.
func MinLength(n int, msg string) Validator {
	if msg == "" {
		msg = fmt.Sprintf("Must be at least %d characters", n)
	}
	return ValidatorFunc(func(v Value) error {
		s := v.Text()
		if s == "" {
			return nil // Required handles empty values
		}
		if len([]rune(s)) < n {
			return FieldError{Message: msg}
		}
		return nil
	})
}

// MaxLength validates that a string has at most n characters.
func MaxLength(n int, msg string) Validator {
	if msg == "" {
		msg = fmt.Sprintf("Must be at most %d characters", n)
	}
	return ValidatorFunc(func(v Value) error {
		if len([]rune(v.Text())) > n {
			return FieldError{Message: msg}
		}
		return nil
	})
}

// Pattern validates that a string matches the given regular expression.
func Pattern(re *regexp.Regexp, msg string) Validator {
	if msg == "" {
		msg = "Invalid format"
	}
	return ValidatorFunc(func(v Value) error {
		s := strings.TrimSpace(v.Text())
		if s == "" {
			return nil
		}
		if !re.MatchString(s) {
			return FieldError{Message: msg}
		}
		return nil
	})
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// Vietnamese mobile and landline numbers, with or without +84.
	phonePattern = regexp.MustCompile(`^(\+84|84|0)[1-9][0-9]{8,9}$`)
)

// Email validates that the value looks like an email address.
func Email(msg string) Validator {
	if msg == "" {
		msg = "Invalid email address"
	}
	return Pattern(emailPattern, msg)
}

// Phone validates a phone number after stripping spaces, dots and dashes.
func Phone(msg string) Validator {
	if msg == "" {
		msg = "Invalid phone number"
	}
	return ValidatorFunc(func(v Value) error {
		s := strings.Map(func(r rune) rune {
			if r == ' ' || r == '.' || r == '-' {
				return -1
			}
			return r
		}, v.Text())
		if s == "" {
			return nil
		}
		if !phonePattern.MatchString(s) {
			return FieldError{Message: msg}
		}
		return nil
	})
}

// Numeric validates that the value contains only digits.
func Numeric(msg string) Validator {
	if msg == "" {
		msg = "Must contain only numbers"
	}
	return ValidatorFunc(func(v Value) error {
		for _, r := range v.Text() {
			if !unicode.IsDigit(r) {
				return FieldError{Message: msg}
			}
		}
		return nil
	})
}

// MaxItems limits the number of selections in a multiselect.
func MaxItems(n int, msg string) Validator {
	if msg == "" {
		msg = fmt.Sprintf("Choose at most %d options", n)
	}
	return ValidatorFunc(func(v Value) error {
		if len(v.Items()) > n {
			return FieldError{Message: msg}
		}
		return nil
	})
}

func validatorFromRule(name, arg string) (Validator, error) {
	intArg := func() (int, error) {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("rule %s wants a non-negative integer, got %q", name, arg)
		}
		return n, nil
	}

	switch name {
	case "required":
		return Required(""), nil
	case "email":
		return Email(""), nil
	case "phone":
		return Phone(""), nil
	case "numeric", "digits":
		return Numeric(""), nil
	case "minlen", "minlength":
		n, err := intArg()
		if err != nil {
			return nil, err
		}
		return MinLength(n, ""), nil
	case "maxlen", "maxlength":
		n, err := intArg()
		if err != nil {
			return nil, err
		}
		return MaxLength(n, ""), nil
	case "maxitems":
		n, err := intArg()
		if err != nil {
			return nil, err
		}
		return MaxItems(n, ""), nil
	}
	return nil, fmt.Errorf("unknown rule %q", name)
}

// parseRules parses "email,maxlen=120" into validators.
func parseRules(rules string) ([]Validator, error) {
	if strings.TrimSpace(rules) == "" {
		return nil, nil
	}
	parts := strings.Split(rules, ",")
	out := make([]Validator, 0, len(parts))
	for _, rule := range parts {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		name, arg, _ := strings.Cut(rule, "=")
		v, err := validatorFromRule(name, arg)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ValidateField runs the field's validators and returns the first failure.
func (f *Field) ValidateField(v Value) *FieldError {
	for _, validator := range f.validators {
		if err := validator.Validate(v); err != nil {
			fe := FieldError{Field: f.Name, Message: err.Error()}
			if e, ok := err.(FieldError); ok {
				fe.Message = e.Message
			}
			return &fe
		}
	}
	return nil
}

// Validate checks a complete state. Missing fields are validated as their
// defaults. The result is nil when every field passes.
func (s *Schema) Validate(st State) ValidationErrors {
	var errs ValidationErrors
	for i := range s.Fields {
		f := &s.Fields[i]
		v, ok := st[f.Name]
		if !ok || !v.IsSet() {
			v = f.DefaultValue()
		}
		if fe := f.ValidateField(v); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

// ErrorMap returns the errors keyed by field, convenient for templates.
func (e ValidationErrors) ErrorMap() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		if _, exists := out[fe.Field]; !exists {
			out[fe.Field] = fe.Message
		}
	}
	return out
}

// Fields returns the failing field names, sorted.
func (e ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for _, fe := range e {
		out = append(out, fe.Field)
	}
	sort.Strings(out)
	return out
}
