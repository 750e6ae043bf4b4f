// Package validation registers the custom binding tags used by request DTOs.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/MontelAle/participium-sub001/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)
	registerOnce    sync.Once
	registerErr     error
)

// Register installs the custom tags on gin's validator and makes field
// errors report JSON names. Safe to call more than once.
func Register() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("binding validator is not go-playground/validator")
			return
		}
		registerErr = Install(v)
	})
	return registerErr
}

// Install registers the tags on v.
func Install(v *validator.Validate) error {
	v.RegisterTagNameFunc(fieldName)

	tags := map[string]validator.Func{
		"username":       validUsername,
		"strongpassword": validStrongPassword,
		"reportstatus":   validReportStatus,
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func validUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

// StrongPassword reports whether p has 8-64 characters including an upper
// case letter, a lower case letter and a digit.
func StrongPassword(p string) bool {
	if len(p) < 8 || len(p) > 64 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func validStrongPassword(fl validator.FieldLevel) bool {
	return StrongPassword(fl.Field().String())
}

func validReportStatus(fl validator.FieldLevel) bool {
	return models.IsValidStatus(fl.Field().String())
}
