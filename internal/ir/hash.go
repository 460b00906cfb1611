package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSchema is the hash domain of schema specs. The version suffix
// allows a future change of the encoding.
const DomainSchema = "rdo/schema/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data). The separator keeps
// the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SchemaHash returns the content hash of spec. Equal specs hash equally
// regardless of map order; model, column, relation and validator order is
// significant.
func SchemaHash(spec *SchemaSpec) (string, error) {
	canonical, err := MarshalCanonical(spec.ToIR())
	if err != nil {
		return "", fmt.Errorf("SchemaHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

// ToIR returns the canonical value form of the spec.
func (s *SchemaSpec) ToIR() IRObject {
	models := make(IRArray, len(s.Models))
	for i := range s.Models {
		models[i] = s.Models[i].ToIR()
	}
	return IRObject{
		"version": IRString(SchemaVersion),
		"name":    IRString(s.Name),
		"models":  models,
	}
}

// ToIR returns the canonical value form of the model spec.
func (m *ModelSpec) ToIR() IRObject {
	cols := make(IRArray, len(m.Columns))
	for i, c := range m.Columns {
		obj := IRObject{
			"name":     IRString(c.Name),
			"type":     IRString(c.Type),
			"db_name":  IRString(c.DbName),
			"not_null": IRBool(c.NotNull),
			"system":   IRBool(c.System),
			"default":  IRString(c.Default),
			"computed": IRString(c.Computed),
		}
		if c.Identity != nil {
			obj["identity"] = IRObject{"seed": IRInt(c.Identity.Seed), "increment": IRInt(c.Identity.Increment)}
		}
		cols[i] = obj
	}
	uniques := make(IRArray, len(m.Unique))
	for i, u := range m.Unique {
		uniques[i] = IRObject{"name": IRString(u.Name), "columns": stringArray(u.Columns)}
	}
	relations := make(IRArray, len(m.Relations))
	for i, r := range m.Relations {
		relations[i] = IRObject{"child": IRString(r.Child), "parent": IRString(r.Parent)}
	}
	validators := make(IRArray, len(m.Validators))
	for i, v := range m.Validators {
		validators[i] = IRObject{
			"check":    IRString(v.Check),
			"warn":     IRString(v.Warn),
			"required": IRString(v.Required),
			"message":  IRString(v.Message),
		}
	}
	children := make(IRArray, len(m.Children))
	for i := range m.Children {
		children[i] = m.Children[i].ToIR()
	}
	return IRObject{
		"name":             IRString(m.Name),
		"table":            IRString(m.Table),
		"columns":          cols,
		"primary_key":      stringArray(m.PrimaryKey),
		"unique":           uniques,
		"relations":        relations,
		"validators":       validators,
		"allow_key_update": IRBool(m.AllowKeyUpdate),
		"children":         children,
	}
}
