package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BuiltInFunctions is the closed set of aggregate functions formulas may
// call. Anything else evaluates to #NAME?.
type BuiltInFunctions struct{}

var builtins = &BuiltInFunctions{}

// FunctionNames lists the supported function names
func FunctionNames() []string {
	return []string{"SUM", "AVERAGE", "MIN", "MAX", "COUNT"}
}

// Call invokes a built-in function by name with the given arguments
func (bf *BuiltInFunctions) Call(name string, args ...any) (Primitive, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(args...)
	case "AVERAGE":
		return bf.AVERAGE(args...)
	case "COUNT":
		return bf.COUNT(args...)
	case "MAX":
		return bf.MAX(args...)
	case "MIN":
		return bf.MIN(args...)
	default:
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
}

// eachNumber walks direct arguments and range values, calling fn for every
// numeric value. errors in either propagate. range cells holding text
// are skipped, direct text arguments are a #VALUE! error.
func eachNumber(args []any, fn func(float64)) error {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return err
				}
				if value == nil {
					continue
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					fn(num)
				}
			}
			continue
		}

		num, ok := toNumber(arg)
		if !ok {
			return NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("expected a number, got %q", toString(arg)))
		}
		fn(num)
	}
	return nil
}

func (bf *BuiltInFunctions) SUM(args ...any) (Primitive, error) {
	sum := 0.0
	if err := eachNumber(args, func(n float64) { sum += n }); err != nil {
		return nil, err
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return rounded, nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...any) (Primitive, error) {
	sum := 0.0
	count := 0
	err := eachNumber(args, func(n float64) {
		sum += n
		count++
	})
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}

	return sum / float64(count), nil
}

// COUNT counts numeric values. errors inside ranges are skipped rather
// than propagated.
func (bf *BuiltInFunctions) COUNT(args ...any) (Primitive, error) {
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if _, isNum := value.(float64); isNum {
					count++
				}
			}
			continue
		}
		if _, ok := toNumber(arg); ok {
			count++
		}
	}

	return float64(count), nil
}

func (bf *BuiltInFunctions) MAX(args ...any) (Primitive, error) {
	max := math.Inf(-1)
	hasValues := false
	err := eachNumber(args, func(n float64) {
		if n > max {
			max = n
		}
		hasValues = true
	})
	if err != nil {
		return nil, err
	}

	if hasValues {
		return max, nil
	}
	return 0.0, nil
}

func (bf *BuiltInFunctions) MIN(args ...any) (Primitive, error) {
	min := math.Inf(1)
	hasValues := false
	err := eachNumber(args, func(n float64) {
		if n < min {
			min = n
		}
		hasValues = true
	})
	if err != nil {
		return nil, err
	}

	if hasValues {
		return min, nil
	}
	return 0.0, nil
}
