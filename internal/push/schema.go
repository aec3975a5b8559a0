package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

const payloadSchemaURL = "push-payload.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *validator.Schema
	schemaErr      error
)

// PayloadSchema returns the JSON schema of the wire contract, reflected from Payload.
func PayloadSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	return json.Marshal(r.Reflect(&Payload{}))
}

func payloadValidator() (*validator.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := PayloadSchema()
		if err != nil {
			schemaErr = fmt.Errorf("reflecting payload schema: %w", err)
			return
		}
		doc, err := validator.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			schemaErr = fmt.Errorf("parsing payload schema: %w", err)
			return
		}
		c := validator.NewCompiler()
		if err := c.AddResource(payloadSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("adding payload schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(payloadSchemaURL)
	})
	return compiledSchema, schemaErr
}

func validatePayload(raw []byte) error {
	sch, err := payloadValidator()
	if err != nil {
		return err
	}
	inst, err := validator.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
