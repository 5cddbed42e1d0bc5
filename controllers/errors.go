package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const nonFieldErrors = "non_field_errors"

// FieldErrors Validation messages keyed by the (dotted) field they belong to
type FieldErrors map[string][]string

func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Merge Copy other into e, prefixing every key
func (e FieldErrors) Merge(prefix string, other FieldErrors) {
	for field, messages := range other {
		key := prefix
		if field != nonFieldErrors {
			key = prefix + "." + field
		}
		e[key] = append(e[key], messages...)
	}
}

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e[field], " ")))
	}
	return strings.Join(parts, "; ")
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
		if err := v.RegisterValidation("label_id", validLabelID); err != nil {
			panic(err)
		}
	}
}

// jsonFieldName Report fields under their JSON name
func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func validLabelID(fl validator.FieldLevel) bool {
	_, err := uuid.Parse(fl.Field().String())
	return err == nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "label_id":
		return "Must be a valid UUID."
	default:
		return fmt.Sprintf("Failed on the '%s' rule.", fe.Tag())
	}
}

// toFieldErrors Translate binding, decoding and validation errors into field errors
func toFieldErrors(err error) FieldErrors {
	errs := FieldErrors{}

	var fieldErrs FieldErrors
	var validationErrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &fieldErrs):
		return fieldErrs
	case errors.As(err, &validationErrs):
		for _, fe := range validationErrs {
			field := fe.Namespace()
			// drop the struct name the namespace starts with
			if idx := strings.Index(field, "."); idx >= 0 {
				field = field[idx+1:]
			}
			errs.Add(field, validationMessage(fe))
		}
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = nonFieldErrors
		}
		errs.Add(field, fmt.Sprintf("Incorrect type. Got %s.", typeErr.Value))
	case errors.As(err, &syntaxErr):
		errs.Add(nonFieldErrors, fmt.Sprintf("JSON parse error - %s", syntaxErr.Error()))
	default:
		errs.Add(nonFieldErrors, err.Error())
	}
	return errs
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}
