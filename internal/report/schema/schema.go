// Package schema is the registry of trade report field definitions. The
// schema is loaded once at startup and shared read-only by every shard
// worker, so no locking is needed after Load returns.
package schema

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"

	domerrors "repval/pkg/domain-errors"
)

// FieldCount is the number of active field definitions a valid schema
// version must carry.
const FieldCount = 203

// DataType is the closed set of value types a field can hold.
type DataType string

const (
	TypeString    DataType = "string"
	TypeDate      DataType = "date"
	TypeTimestamp DataType = "timestamp"
	TypeDecimal   DataType = "decimal"
	TypeBoolean   DataType = "boolean"
)

// CategoryIdentifier is the category whose missing mandatory fields are
// escalated to CRITICAL by the completeness validator.
const CategoryIdentifier = "identifier"

// FieldDefinition describes one schema field.
type FieldDefinition struct {
	Name         string
	Mandatory    bool
	DataType     DataType
	Category     string
	FormatRuleID string // empty when no format rule applies
}

// Schema is an ordered, immutable set of field definitions.
type Schema struct {
	Version string
	fields  []FieldDefinition
	byName  map[string]int
}

//go:embed fields.csv
var schemaFS embed.FS

// versionFiles maps published schema versions to their embedded tables.
var versionFiles = map[string]string{
	"emir-refit-1": "fields.csv",
}

// Load parses and verifies a schema version. It fails when the version is
// unknown, the field count is not exactly FieldCount, or a name repeats.
func Load(version string) (*Schema, error) {
	file, ok := versionFiles[version]
	if !ok {
		return nil, fmt.Errorf("%w: unknown schema version %q", domerrors.ErrSchemaLoad, version)
	}
	f, err := schemaFS.Open(file)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domerrors.ErrSchemaLoad, file, err)
	}
	defer f.Close()
	return parse(version, f)
}

func parse(version string, r io.Reader) (*Schema, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", domerrors.ErrSchemaLoad, err)
	}
	if header[0] != "name" {
		return nil, fmt.Errorf("%w: unexpected header %v", domerrors.ErrSchemaLoad, header)
	}

	s := &Schema{
		Version: version,
		byName:  make(map[string]int, FieldCount),
	}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %v", domerrors.ErrSchemaLoad, err)
		}
		def := FieldDefinition{
			Name:         row[0],
			Mandatory:    row[1] == "true",
			DataType:     DataType(row[2]),
			Category:     row[3],
			FormatRuleID: row[4],
		}
		switch def.DataType {
		case TypeString, TypeDate, TypeTimestamp, TypeDecimal, TypeBoolean:
		default:
			return nil, fmt.Errorf("%w: field %s has unknown data type %q", domerrors.ErrSchemaLoad, def.Name, def.DataType)
		}
		if _, dup := s.byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field name %s", domerrors.ErrSchemaLoad, def.Name)
		}
		s.byName[def.Name] = len(s.fields)
		s.fields = append(s.fields, def)
	}

	if len(s.fields) != FieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", domerrors.ErrSchemaLoad, FieldCount, len(s.fields))
	}
	return s, nil
}

// Fields returns the ordered definitions. Callers must not modify the
// returned slice.
func (s *Schema) Fields() []FieldDefinition { return s.fields }

// Field looks a definition up by name.
func (s *Schema) Field(name string) (FieldDefinition, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldDefinition{}, false
	}
	return s.fields[i], true
}

// FieldNames returns the schema's field names in declaration order. Used
// to verify record source headers.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Categories returns the distinct categories in first-seen order together
// with the number of fields each holds.
func (s *Schema) Categories() map[string]int {
	out := make(map[string]int)
	for _, f := range s.fields {
		out[f.Category]++
	}
	return out
}
