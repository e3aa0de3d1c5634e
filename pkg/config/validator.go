package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/williamokano/s3backend/pkg/storage"
)

// Validate validates a configuration document against the JSON schema
func Validate(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(Schema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("%w: failed to validate schema: %v", storage.ErrInvalidConfig, err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: configuration file is not valid: %s", storage.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}
