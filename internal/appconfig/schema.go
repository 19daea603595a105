package appconfig

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/config.schema.json
var configSchema []byte

// ValidateDocument checks a raw JSON configuration document against the embedded schema.
func ValidateDocument(doc []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(configSchema)
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// ValidateFile reads path and validates it with ValidateDocument.
func ValidateFile(path string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file %q: %w", path, err)
	}
	if err := ValidateDocument(doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
