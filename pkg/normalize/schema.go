package normalize

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/astromechza/livesync/pkg/model"
)

//go:embed tasklist.schema.json
var taskListSchemaJSON string

const taskListSchemaURL = "mem:///tasklist.schema.json"

var taskListSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(taskListSchemaURL, strings.NewReader(taskListSchemaJSON)); err != nil {
		panic(fmt.Sprintf("failed to add task list schema: %v", err))
	}
	return compiler.MustCompile(taskListSchemaURL)
}

// checkTaskList validates the raw body against the task list schema.
func checkTaskList(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return &model.ProtocolError{Reason: "task list is not valid json", Err: err}
	}
	if err := taskListSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := firstLeaf(ve)
			return &model.ProtocolError{Reason: fmt.Sprintf("task list field %s: %s", leaf.InstanceLocation, leaf.Message)}
		}
		return &model.ProtocolError{Reason: "task list does not match schema", Err: err}
	}
	return nil
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
