package web

import (
	"fmt"
	"net/http"
	"strconv"
)

// ParamValidator is a function type that validates a parameter.
type ParamValidator func(valueToTest int64) bool

func newComparisonValidator(valueInClosure int64, compareFn func(argValue, closedValue int64) bool) ParamValidator {
	return func(argValue int64) bool {
		return compareFn(argValue, valueInClosure)
	}
}

// Gte returns a ParamValidator that checks if the argument is greater than or equal to the value captured in the closure.
func Gte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue >= closedValue
	})
}

// Lte returns a ParamValidator that checks if the argument is less than or equal to the value captured in the closure.
func Lte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue <= closedValue
	})
}

// ParseQueryInt reads an optional integer query parameter. A missing parameter yields def;
// a present one must parse and satisfy every validator.
func ParseQueryInt(r *http.Request, key string, def int, validators ...ParamValidator) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s number: %s", key, value)
	}
	for _, v := range validators {
		if !v(intValue) {
			return 0, fmt.Errorf("invalid %s number: %s", key, value)
		}
	}
	return int(intValue), nil
}
