package table

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// jsonType maps a postgres data type to its JSON schema fragment.
func jsonType(c Column) map[string]interface{} {
	var prop map[string]interface{}
	switch c.DataType {
	case "smallint", "integer", "bigint":
		prop = map[string]interface{}{"type": "integer"}
	case "numeric", "real", "double precision":
		prop = map[string]interface{}{"type": "number"}
	case "boolean":
		prop = map[string]interface{}{"type": "boolean"}
	case "json", "jsonb":
		return map[string]interface{}{} // any JSON value
	case "ARRAY":
		prop = map[string]interface{}{"type": "array"}
	case "uuid":
		prop = map[string]interface{}{"type": "string", "format": "uuid"}
	case "date":
		prop = map[string]interface{}{"type": "string", "format": "date"}
	case "timestamp with time zone", "timestamp without time zone":
		prop = map[string]interface{}{"type": "string", "format": "date-time"}
	default:
		prop = map[string]interface{}{"type": "string"}
	}
	if c.Nullable {
		prop["type"] = []interface{}{prop["type"], "null"}
	}
	return prop
}

// JSONSchema describes the payloads accepted for the writable columns of s.
// On create, the not null columns without default are required.
func JSONSchema(s Schema, create bool) map[string]interface{} {
	props := make(map[string]interface{}, len(s.Columns))
	required := make([]interface{}, 0)
	for _, c := range s.Columns {
		if c.AutoGenerated {
			continue
		}
		props[c.Name] = jsonType(c)
		if create && !c.Nullable && !c.Default.Valid {
			required = append(required, c.Name)
		}
	}
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// validateRow checks row against the JSON schema of s, one field error per failing column.
func validateRow(s Schema, row Row, create bool) error {
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(JSONSchema(s, create)), gojsonschema.NewGoLoader(map[string]interface{}(row)))
	if err != nil {
		return errors.Wrap(err, "validating row")
	}
	if res.Valid() {
		return nil
	}

	fldErrs := make([]core.FieldError, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		field := e.Field()
		if field == "(root)" {
			if p, ok := e.Details()["property"].(string); ok {
				field = p
			}
		}
		field = strings.SplitN(field, ".", 2)[0]
		fldErrs = append(fldErrs, core.FieldError{Field: field, Error: e.Description()})
	}
	sort.SliceStable(fldErrs, func(i, j int) bool { return fldErrs[i].Field < fldErrs[j].Field })
	return core.NewValidationError(nil, fldErrs...)
}
