package data

import "database/sql"

// Severity ranks a validation message.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// ValidationMessage is one failed validator for one row.
type ValidationMessage struct {
	Severity Severity
	Message  string
	Source   Validator
}

// Validator evaluates a per-row condition.
//
// IsValid returns null when the condition cannot be decided; a null result
// counts as valid. The source models that invalidate the result are derived
// from Expr when the schema is frozen.
type Validator interface {
	IsValid(r *DataRow) sql.Null[bool]
	Message(r *DataRow) string
	Expr() AnyExpr
}

// severityer is implemented by validators that are not plain errors.
type severityer interface {
	Severity() Severity
}

type check struct {
	cond     Expr[bool]
	message  string
	severity Severity
}

// Check returns a validator that fails where cond evaluates to false.
func Check(cond Expr[bool], message string) Validator {
	return &check{cond: cond, message: message}
}

// Warn is like Check but reports warnings.
func Warn(cond Expr[bool], message string) Validator {
	return &check{cond: cond, message: message, severity: SeverityWarning}
}

// Required fails where c is null.
func Required(c AnyColumn) Validator {
	return Check(IsNotNull(c), c.Name()+" is required")
}

func (c *check) IsValid(r *DataRow) sql.Null[bool] { return c.cond.Eval(r) }
func (c *check) Message(*DataRow) string           { return c.message }
func (c *check) Expr() AnyExpr                     { return c.cond }
func (c *check) Severity() Severity                { return c.severity }

func evaluate(r *DataRow) []ValidationMessage {
	var out []ValidationMessage
	for _, v := range r.model.validators {
		res := v.IsValid(r)
		if !res.Valid || res.V {
			continue
		}
		sev := SeverityError
		if s, ok := v.(severityer); ok {
			sev = s.Severity()
		}
		out = append(out, ValidationMessage{Severity: sev, Message: v.Message(r), Source: v})
	}
	return out
}
