package values

import (
	"fmt"
	"strconv"
	"strings"
)

// Render turns a value into the string a task command sees, typically via an
// environment variable. Bags and tuples join their rendered elements with
// single spaces in positional order, which is what reproduces a stable argv
// for commands consuming a collection.
func Render(v Value) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case *FileRef:
		return val.Path, nil
	case *Bag:
		return renderJoined(val.Elements())
	case []Value:
		return renderJoined(val)
	default:
		return "", fmt.Errorf("unrenderable value of type %T", v)
	}
}

func renderJoined(elems []Value) (string, error) {
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		s, err := Render(e)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), nil
}
