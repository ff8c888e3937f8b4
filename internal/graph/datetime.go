package graph

import (
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// DateTime is the timestamp scalar.
//
// Output is always RFC 3339 in UTC with nanosecond precision, so parsing a
// serialized value gives back the same instant. Input accepts an RFC 3339
// string, or an integer literal/variable holding Unix milliseconds (what a
// JavaScript client gets from Date.now()).
var DateTime = graphql.NewScalar(graphql.ScalarConfig{
	Name:         "DateTime",
	Description:  "A valid date time value, RFC 3339 on output.",
	Serialize:    serializeDateTime,
	ParseValue:   parseDateTimeValue,
	ParseLiteral: parseDateTimeLiteral,
})

func serializeDateTime(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(time.RFC3339Nano)
	}
	return nil
}

func parseDateTimeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return parseDateTimeString(v)
	case int:
		return time.UnixMilli(int64(v)).UTC()
	case int64:
		return time.UnixMilli(v).UTC()
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	}
	return nil
}

func parseDateTimeLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return parseDateTimeString(v.Value)
	case *ast.IntValue:
		ms, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil
		}
		return time.UnixMilli(ms).UTC()
	}
	return nil
}

// parseDateTimeString returns nil (not a zero time) for bad input so the
// executor reports an invalid value instead of silently using year 1.
func parseDateTimeString(s string) interface{} {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return t.UTC()
}
