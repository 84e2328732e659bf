package config

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// identifier matches the names that can be spliced unquoted into a ClickHouse query
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the `validate` struct tags of c.  On top of the validator built ins, `identifier` accepts only
// letters, digits and underscores, not starting with a digit.
func Validate(c interface{}) error {
	validate := validator.New()
	if err := validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifier.MatchString(fl.Field().String())
	}); err != nil {
		return err
	}
	return validate.Struct(c)
}

func LogValidationErrors(err error) {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		if err != nil {
			log.Errorf("ConfigError: %v", err)
		}
		return
	}
	for _, err := range validationErrors {
		fieldName := stripPrefix(err.Namespace())
		tag := err.Tag()
		switch tag {
		case "required":
			log.Errorf("ConfigError: Field %s is required but was not found", fieldName)
		default:
			log.Errorf("ConfigError: Field %s has invalid value %v: %s", fieldName, err.Value(), tag)
		}
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
