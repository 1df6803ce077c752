package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps request bodies; a create request is a handful of filters.
const maxBodyBytes = 64 << 10

var validate = validator.New()

// Module names are lowercase identifiers with underscores.
var moduleRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("module", func(fl validator.FieldLevel) bool {
		return moduleRegex.MatchString(fl.Field().String())
	})
}

// Decode reads a JSON body into v and runs its validate tags. Validation
// failures name the offending JSON fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return fmt.Errorf("validation error: %s", describe(fieldErrs))
		}
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func describe(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
		switch fe.Tag() {
		case "module":
			parts = append(parts, fmt.Sprintf("%s: %q is not a module name", field, fe.Value()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s: at most %s allowed", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func RequireID(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}
