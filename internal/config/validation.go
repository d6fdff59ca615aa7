package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"xdao.co/privatefs/keys"
)

var validate = validator.New()

// Validate checks struct tags, then rules the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if err := keys.CheckName("identity", cfg.Identity); err != nil {
		return err
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
