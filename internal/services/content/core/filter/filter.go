// Package filter parses AIP-160 filter expressions over the event log and
// evaluates them either as SQL (storage/sqlite) or in memory (storage/memory).
package filter

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// ErrInvalidFilter indicates an expression that does not parse or uses an
// unsupported construct.
var ErrInvalidFilter = apperrors.New(apperrors.CodeInvalidFilter, "invalid event filter")

// Filterable field names.
const (
	FieldStream      = "stream"
	FieldType        = "type"
	FieldCommandType = "command_type"
	FieldSeq         = "seq"
	FieldTimestamp   = "ts"
)

// EventDeclarations returns the field declarations for event filtering.
func EventDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent(FieldStream, filtering.TypeString),
		filtering.DeclareIdent(FieldType, filtering.TypeString),
		filtering.DeclareIdent(FieldCommandType, filtering.TypeString),
		filtering.DeclareIdent(FieldSeq, filtering.TypeInt),
		filtering.DeclareIdent(FieldTimestamp, filtering.TypeTimestamp),
	)
}

// fieldMapping maps filter field names to SQL column names.
var fieldMapping = map[string]string{
	FieldStream:      "stream",
	FieldType:        "type",
	FieldCommandType: "command_type",
	FieldSeq:         "seq",
	FieldTimestamp:   "timestamp",
}

// Fields are the values of one event that a filter can see.
type Fields struct {
	Stream      string
	Type        string
	CommandType string
	Seq         int64
	Timestamp   time.Time
}

// FieldsOf extracts the filterable fields of a stored event.
func FieldsOf(evt event.Event) Fields {
	return Fields{
		Stream:      evt.Stream,
		Type:        string(evt.Type),
		CommandType: evt.Metadata.CommandType,
		Seq:         evt.Seq,
		Timestamp:   evt.Timestamp,
	}
}

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE clause (e.g., "type = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// Filter is a parsed expression. The zero value matches every event.
type Filter struct {
	root node
}

type node interface {
	sql() SQLCondition
	match(Fields) bool
}

// Parse parses an AIP-160 expression. An empty string yields the match-all
// filter.
func Parse(filterStr string) (Filter, error) {
	if strings.TrimSpace(filterStr) == "" {
		return Filter{}, nil
	}
	decls, err := EventDeclarations()
	if err != nil {
		return Filter{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return Filter{}, apperrors.Wrap(apperrors.CodeInvalidFilter, fmt.Sprintf("parse filter: %v", err), ErrInvalidFilter)
	}
	root, err := translateExpr(parsed.CheckedExpr.GetExpr())
	if err != nil {
		return Filter{}, apperrors.Wrap(apperrors.CodeInvalidFilter, err.Error(), ErrInvalidFilter)
	}
	return Filter{root: root}, nil
}

// IsEmpty reports whether the filter matches everything.
func (f Filter) IsEmpty() bool { return f.root == nil }

// SQL returns the WHERE fragment for the filter; empty for match-all.
func (f Filter) SQL() SQLCondition {
	if f.root == nil {
		return SQLCondition{}
	}
	return f.root.sql()
}

// Match evaluates the filter against one event's fields.
func (f Filter) Match(fields Fields) bool {
	if f.root == nil {
		return true
	}
	return f.root.match(fields)
}

type logical struct {
	op          string
	left, right node
}

func (l logical) sql() SQLCondition {
	left, right := l.left.sql(), l.right.sql()
	return SQLCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, l.op, right.Clause),
		Params: append(append([]any(nil), left.Params...), right.Params...),
	}
}

func (l logical) match(f Fields) bool {
	if l.op == "AND" {
		return l.left.match(f) && l.right.match(f)
	}
	return l.left.match(f) || l.right.match(f)
}

type negation struct {
	inner node
}

func (n negation) sql() SQLCondition {
	inner := n.inner.sql()
	return SQLCondition{Clause: fmt.Sprintf("(NOT %s)", inner.Clause), Params: inner.Params}
}

func (n negation) match(f Fields) bool { return !n.inner.match(f) }

type comparison struct {
	field string
	op    string
	value any
}

func (c comparison) sql() SQLCondition {
	value := c.value
	if ts, ok := value.(time.Time); ok {
		value = ts.UTC().UnixMilli()
	}
	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", fieldMapping[c.field], c.op),
		Params: []any{value},
	}
}

func (c comparison) match(f Fields) bool {
	var cmp int
	switch c.field {
	case FieldStream:
		cmp = strings.Compare(f.Stream, c.value.(string))
	case FieldType:
		cmp = strings.Compare(f.Type, c.value.(string))
	case FieldCommandType:
		cmp = strings.Compare(f.CommandType, c.value.(string))
	case FieldSeq:
		cmp = compareInt(f.Seq, c.value.(int64))
	case FieldTimestamp:
		cmp = compareInt(f.Timestamp.UTC().UnixMilli(), c.value.(time.Time).UTC().UnixMilli())
	default:
		return false
	}
	switch c.op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// translateExpr translates a checked expression into a filter node.
func translateExpr(e *expr.Expr) (node, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (node, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateLogical("AND", call.Args)
	case "_||_", "OR":
		return translateLogical("OR", call.Args)
	case "!_", "NOT":
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := translateExpr(call.Args[0])
		if err != nil {
			return nil, err
		}
		return negation{inner: inner}, nil
	case "_==_", "=":
		return translateComparison(call.Args, "=")
	case "_!=_", "!=":
		return translateComparison(call.Args, "!=")
	case "_<_", "<":
		return translateComparison(call.Args, "<")
	case "_<=_", "<=":
		return translateComparison(call.Args, "<=")
	case "_>_", ">":
		return translateComparison(call.Args, ">")
	case "_>=_", ">=":
		return translateComparison(call.Args, ">=")
	default:
		return nil, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translateLogical(op string, args []*expr.Expr) (node, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s requires 2 arguments", op)
	}
	left, err := translateExpr(args[0])
	if err != nil {
		return nil, err
	}
	for _, arg := range args[1:] {
		right, err := translateExpr(arg)
		if err != nil {
			return nil, err
		}
		left = logical{op: op, left: left, right: right}
	}
	return left, nil
}

func translateComparison(args []*expr.Expr, op string) (node, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}
	if _, ok := fieldMapping[field]; !ok {
		return nil, fmt.Errorf("unknown field: %s", field)
	}
	value, err := extractValue(args[1])
	if err != nil {
		return nil, err
	}

	switch field {
	case FieldSeq:
		if _, ok := value.(int64); !ok {
			return nil, fmt.Errorf("%s must be compared with an integer", field)
		}
	case FieldTimestamp:
		if _, ok := value.(time.Time); !ok {
			return nil, fmt.Errorf("%s must be compared with timestamp(\"...\")", field)
		}
	default:
		if _, ok := value.(string); !ok {
			return nil, fmt.Errorf("%s must be compared with a string", field)
		}
	}
	return comparison{field: field, op: op, value: value}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractTimestampValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}
	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

func extractTimestampValue(e *expr.Expr) (time.Time, error) {
	constExpr, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a constant string")
	}
	strVal, ok := constExpr.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339, strVal.StringValue)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, strVal.StringValue)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", strVal.StringValue)
	}
	return t.UTC(), nil
}
