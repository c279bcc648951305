package types

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

const containerNameRegex = `^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,62}$`

var containerNameRe = regexp.MustCompile(containerNameRegex)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// V returns the shared validator with the project's custom tags registered.
func V() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("containername", containerNameValidator)
	})
	return validate
}

// containerNameValidator checks that a project name can be embedded in a container handle.
func containerNameValidator(fl validator.FieldLevel) bool {
	return ValidProjectName(fl.Field().String())
}

// ValidProjectName reports whether name is usable as the suffix of a container name.
func ValidProjectName(name string) bool {
	return containerNameRe.MatchString(name)
}
