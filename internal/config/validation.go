package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if (cfg.Server.TLSCertFile == "") != (cfg.Server.TLSKeyFile == "") {
		return fmt.Errorf("server: tls_cert_file and tls_key_file must be set together")
	}

	if cfg.Sharing.Secret == cfg.Auth.JWTSecret {
		return fmt.Errorf("sharing.secret must differ from auth.jwt_secret")
	}

	if cfg.OIDC.IssuerURL != "" && cfg.OIDC.ClientID == "" {
		return fmt.Errorf("oidc: client_id is required when issuer_url is set")
	}

	if len(cfg.Auth.Users) == 0 && cfg.Auth.DatabaseURL == "" && cfg.OIDC.IssuerURL == "" {
		return fmt.Errorf("auth: configure users, database_url or oidc so someone can sign in")
	}

	names := make(map[string]bool)
	for i, u := range cfg.Auth.Users {
		if names[u.Username] {
			return fmt.Errorf("auth.users[%d]: duplicate username %q", i, u.Username)
		}
		names[u.Username] = true
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages. Values are left out because several fields hold secrets.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag", e.Namespace(), e.Tag())
	}
	return err
}
