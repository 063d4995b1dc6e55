package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittostore/pkg/access"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if _, err := cfg.Uploads.MaxSizeBytes(); err != nil {
		return err
	}

	seen := make(map[access.PublicRead]bool, len(cfg.Uploads.PublicRead))
	for i, pr := range cfg.Uploads.PublicRead {
		if pr.Module == "" {
			return fmt.Errorf("uploads.public_read[%d]: module is required", i)
		}
		if seen[pr] {
			return fmt.Errorf("uploads.public_read[%d]: duplicate entry %s/%s", i, pr.Module, pr.EntityType)
		}
		seen[pr] = true
	}

	if cfg.ObjectStore.Type == "s3" {
		if bucket, _ := cfg.ObjectStore.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("object_store.s3: bucket is required")
		}
	}

	type entity struct{ entityType, entityID string }
	labelled := make(map[entity]bool, len(cfg.Naming.Labels))
	for i, l := range cfg.Naming.Labels {
		key := entity{l.EntityType, l.EntityID}
		if labelled[key] {
			return fmt.Errorf("naming.labels[%d]: duplicate label for %s %s", i, l.EntityType, l.EntityID)
		}
		labelled[key] = true
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
