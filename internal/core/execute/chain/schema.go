// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

// compileDocumentSchema compiles the schema of a document type. The
// contract's definitions are available to the schema as #/$defs.
func compileDocumentSchema(contract *protocol.DataContract, typ string) (*jsonschema.Schema, error) {
	raw, ok := contract.Documents[typ]
	if !ok {
		return nil, fmt.Errorf("document type %q is not defined", typ)
	}

	doc := jsonValue(raw).(map[string]any)
	if len(contract.Defs) > 0 {
		doc["$defs"] = jsonValue(contract.Defs)
	}

	url := fmt.Sprintf("platform:///%v/%s", contract.ID, typ)
	c := jsonschema.NewCompiler()
	err := c.AddResource(url, doc)
	if err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// validateDocumentSchemas compiles every document schema of a contract.
func validateDocumentSchemas(contract *protocol.DataContract) []consensus.Error {
	var errs []consensus.Error
	for _, typ := range contract.DocumentTypes() {
		_, err := compileDocumentSchema(contract, typ)
		if err != nil {
			errs = append(errs, &consensus.JsonSchemaCompilationError{
				CompilationError: fmt.Sprintf("%s: %v", typ, err),
			})
		}
	}
	return errs
}

// validateDocumentData validates document data against the schema of its
// type.
func validateDocumentData(contract *protocol.DataContract, typ string, data map[string]any) []consensus.Error {
	schema, err := compileDocumentSchema(contract, typ)
	if err != nil {
		return []consensus.Error{&consensus.JsonSchemaCompilationError{CompilationError: err.Error()}}
	}
	if data == nil {
		data = map[string]any{}
	}

	err = schema.Validate(jsonValue(data))
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []consensus.Error{&consensus.JsonSchemaError{Message: err.Error()}}
	}

	var errs []consensus.Error
	for _, leaf := range leafErrors(verr) {
		errs = append(errs, &consensus.JsonSchemaError{
			Message: leaf.Error(),
			Keyword: strings.Join(leaf.ErrorKind.KeywordPath(), "/"),
			Path:    "/" + strings.Join(leaf.InstanceLocation, "/"),
		})
	}
	return errs
}

func leafErrors(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var leaves []*jsonschema.ValidationError
	for _, c := range err.Causes {
		leaves = append(leaves, leafErrors(c)...)
	}
	return leaves
}

// jsonValue converts a decoded CBOR value into the value space of JSON.
// Byte strings become arrays of integers.
func jsonValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, x := range v {
			m[k] = jsonValue(x)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, x := range v {
			m[fmt.Sprint(k)] = jsonValue(x)
		}
		return m
	case []any:
		l := make([]any, len(v))
		for i, x := range v {
			l[i] = jsonValue(x)
		}
		return l
	case []byte:
		l := make([]any, len(v))
		for i, b := range v {
			l[i] = float64(b)
		}
		return l
	case protocol.Identifier:
		return jsonValue(v[:])
	case uint64:
		return float64(v)
	case int64:
		return float64(v)
	case uint32:
		return float64(v)
	case int:
		return float64(v)
	case float32:
		return float64(v)
	}
	return v
}
