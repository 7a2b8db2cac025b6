package daemon

import (
	"fmt"
	"math"
)

// arguments wraps the decoded args object of a request. JSON numbers arrive
// as float64; the helpers narrow them and report a typed complaint for
// anything that does not fit.
type arguments map[string]interface{}

func (a arguments) str(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

func (a arguments) float(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	return f, nil
}

func (a arguments) integer(key string) (int, error) {
	f, err := a.float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, f)
	}
	return int(f), nil
}

func (a arguments) boolean(key string) (bool, error) {
	v, ok := a[key]
	if !ok {
		return false, fmt.Errorf("missing %s", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

// seekTarget reads a position in seconds plus the optional relative flag.
func (a arguments) seekTarget(key string) (secs float64, relative bool, err error) {
	secs, err = a.float(key)
	if err != nil {
		return 0, false, err
	}
	if v, ok := a["relative"]; ok {
		relative, ok = v.(bool)
		if !ok {
			return 0, false, fmt.Errorf("relative must be a boolean, got %T", v)
		}
	}
	return secs, relative, nil
}
