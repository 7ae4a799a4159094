package simplimath

import (
	"errors"
	"math"
	"strings"
)

// Arithmetic failures. They surface wrapped in an "Invalid arithmetic or
// string expression" SyntaxError, reachable through errors.Is.
var (
	ErrTypeMismatch    = errors.New("unsupported operand types")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrStringTooLong   = errors.New("string result too long")
	ErrIntegerOverflow = errors.New("integer overflow")
)

// maxStringLength bounds string repetition results.
const maxStringLength = 16 << 20

// Eval parses and evaluates src against vars.
func Eval(src string, vars Variables) (Value, error) {
	tree, err := ParseExpression(src)
	if err != nil {
		return Value{}, invalidExpression(src, err)
	}
	return Evaluate(tree, src, vars)
}

// Evaluate walks a parsed tree. src is only used in error messages.
func Evaluate(node Expr, src string, vars Variables) (Value, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Value, nil

	case *Variable:
		if v, ok := vars.Get(n.Name); ok {
			return v, nil
		}
		return Value{}, NewSyntaxError("Undefined variable: %s", n.Name)

	case *BinaryOp:
		left, err := Evaluate(n.Left, src, vars)
		if err != nil {
			return Value{}, err
		}
		right, err := Evaluate(n.Right, src, vars)
		if err != nil {
			return Value{}, err
		}
		result, err := applyOperator(n.Op, left, right)
		if err != nil {
			return Value{}, invalidExpression(src, err)
		}
		return result, nil

	case *Unsupported:
		return Value{}, NewSyntaxError("Unsupported expression: %s", n.Construct)
	}
	return Value{}, NewSyntaxError("Unsupported expression: %T", node)
}

const invalidExpressionPrefix = "Invalid arithmetic or string expression: "

func invalidExpression(src string, cause error) *Error {
	return NewSyntaxError("%s%s", invalidExpressionPrefix, src).WithCause(cause)
}

// asInvalidExpression wraps err unless it already is an invalid-expression error.
func asInvalidExpression(src string, err error) error {
	var se *Error
	if errors.As(err, &se) && strings.HasPrefix(se.Message, invalidExpressionPrefix) {
		return err
	}
	return invalidExpression(src, err)
}

// applyOperator implements + - * / with numeric promotion: Int op Int stays
// Int except for /, any Float operand yields Float.
func applyOperator(op byte, left, right Value) (Value, error) {
	if left.IsNumeric() && right.IsNumeric() {
		return applyNumeric(op, left, right)
	}
	switch op {
	case '+':
		if left.Kind == KindString && right.Kind == KindString {
			if len(left.Str)+len(right.Str) > maxStringLength {
				return Value{}, ErrStringTooLong
			}
			return StringValue(left.Str + right.Str), nil
		}
	case '*':
		if left.Kind == KindString && right.Kind == KindInt {
			return repeatString(left.Str, right.Int)
		}
		if left.Kind == KindInt && right.Kind == KindString {
			return repeatString(right.Str, left.Int)
		}
	}
	return Value{}, ErrTypeMismatch
}

func applyNumeric(op byte, left, right Value) (Value, error) {
	if op == '/' {
		divisor := right.AsFloat()
		if divisor == 0 {
			return Value{}, ErrDivisionByZero
		}
		return FloatValue(left.AsFloat() / divisor), nil
	}
	if left.Kind == KindInt && right.Kind == KindInt {
		return applyInt(op, left.Int, right.Int)
	}
	a, b := left.AsFloat(), right.AsFloat()
	switch op {
	case '+':
		return FloatValue(a + b), nil
	case '-':
		return FloatValue(a - b), nil
	case '*':
		return FloatValue(a * b), nil
	}
	return Value{}, ErrTypeMismatch
}

// applyInt is int64 arithmetic that fails instead of wrapping around.
func applyInt(op byte, a, b int64) (Value, error) {
	switch op {
	case '+':
		sum := a + b
		if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
			return Value{}, ErrIntegerOverflow
		}
		return IntValue(sum), nil
	case '-':
		diff := a - b
		if (a >= 0 && b < 0 && diff < 0) || (a < 0 && b > 0 && diff >= 0) {
			return Value{}, ErrIntegerOverflow
		}
		return IntValue(diff), nil
	case '*':
		if a == 0 || b == 0 {
			return IntValue(0), nil
		}
		product := a * b
		if product/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return Value{}, ErrIntegerOverflow
		}
		return IntValue(product), nil
	}
	return Value{}, ErrTypeMismatch
}

func repeatString(s string, count int64) (Value, error) {
	if count <= 0 || s == "" {
		return StringValue(""), nil
	}
	if count > int64(maxStringLength/len(s)) {
		return Value{}, ErrStringTooLong
	}
	return StringValue(strings.Repeat(s, int(count))), nil
}

// evaluateExpression evaluates src against the interpreter's store.
func (in *Interpreter) evaluateExpression(src string) (Value, error) {
	return Eval(src, in.variables)
}
