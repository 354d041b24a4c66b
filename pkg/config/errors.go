package config

import (
	"fmt"

	"peachy-go/pkg/errors"
)

func errMissingOption(section, option string) error {
	return errors.ConfigOptionError(section, option)
}

func errMissingSection(section string) error {
	return errors.ConfigSectionError(section)
}

func errInvalidValue(section, option, value, expected string) error {
	return errors.ConfigTypeError(section, option, value, expected)
}

func errOutOfRange(section, option string, value float64, constraint string) error {
	return errors.ConfigValidationError(section, option, fmt.Sprintf("value %v %s", value, constraint))
}

func errUnused(message string) error {
	return errors.New(errors.ErrConfigValidation, message)
}
