package billing

import "encoding/json"

func jsonValid(b []byte) bool {
	return len(b) > 0 && json.Valid(b)
}
