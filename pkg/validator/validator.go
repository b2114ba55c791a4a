// Package validator wraps go-playground/validator with JSON-tag field names
// and a domain rule for policy documents.
package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/tinyauth/microauth/pkg/policy"
)

// Validator wraps a configured go-playground validator instance.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

var (
	globalValidator *Validator
	once            sync.Once
)

// Global returns the shared validator instance, initializing it on first use.
func Global() *Validator {
	once.Do(func() {
		globalValidator = New()
	})
	return globalValidator
}

// New creates a Validator with JSON tag names, English messages, and the
// policydoc rule registered.
func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}

	// Report errors against JSON field names, not Go field names.
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	v.trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v.validate, v.trans)

	// policydoc accepts a string holding a well-formed policy document.
	_ = v.validate.RegisterValidation("policydoc", func(fl validator.FieldLevel) bool {
		_, err := policy.Parse([]byte(fl.Field().String()))
		return err == nil
	})
	_ = v.validate.RegisterTranslation("policydoc", v.trans,
		func(ut ut.Translator) error {
			return ut.Add("policydoc", "{0} is not a valid policy document", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("policydoc", fe.Field())
			return t
		})

	return v
}

// Validate validates a struct, returning nil or a *ValidationErrors.
func (v *Validator) Validate(s any) *ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationErrors{
			Errors: []FieldError{{Field: "unknown", Message: err.Error()}},
		}
	}

	result := &ValidationErrors{
		Errors: make([]FieldError, 0, len(fieldErrors)),
	}
	for _, fe := range fieldErrors {
		result.Errors = append(result.Errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fe.Translate(v.trans),
		})
	}
	return result
}

// Struct validates a struct with the global validator.
func Struct(s any) *ValidationErrors {
	return Global().Validate(s)
}
