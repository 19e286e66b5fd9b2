package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"doclife/internal/domain"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Struct runs the per-field data-type constraints declared in struct tags.
// Only paths whose top-level field is in only (when non-nil) are reported.
func Struct(e domain.Entity, only map[string]bool) (Errors, error) {
	errs := Errors{}
	err := getValidator().Struct(e)
	if err == nil {
		return errs, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	for _, fe := range verrs {
		path := fieldPath(fe.Namespace())
		if only != nil && !only[topField(path)] {
			continue
		}
		errs.Add(path, message(fe))
	}
	return errs, nil
}

// fieldPath drops the struct name prefix and the embedded Base segment.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	if len(parts) > 1 && parts[0] == "Base" {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}

func topField(path string) string {
	path = strings.SplitN(path, ".", 2)[0]
	return strings.SplitN(path, "[", 2)[0]
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "oneof":
		return "must be one of: " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
