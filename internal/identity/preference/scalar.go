package preference

import (
	"errors"
	"reflect"
	"strconv"
)

var (
	// ErrNonScalarValue rejects values that cannot be stored as a single text value.
	ErrNonScalarValue = errors.New("preference value must be a scalar")
	ErrNoUser         = errors.New("preference cache has no user")
)

// encodeScalar renders a string, bool, integer or float as stored text.
func encodeScalar(value any) (string, error) {
	if value == nil {
		return "", ErrNonScalarValue
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	default:
		return "", ErrNonScalarValue
	}
}
