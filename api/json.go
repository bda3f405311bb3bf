package api

import (
	"encoding/json"
	"math"
)

// wireFloat64 carries a metric value or summary statistic across the wire.
// encoding/json's default float handling errors on NaN/±Inf ("json:
// unsupported value"), but §3/§7 require the server to preserve and return
// non-finite metric values without ever raising on them. Non-finite values
// are encoded as the strings "NaN", "Inf", "-Inf"; finite values encode as
// plain JSON numbers.
type wireFloat64 float64

func (f wireFloat64) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return json.Marshal("NaN")
	case math.IsInf(v, 1):
		return json.Marshal("Inf")
	case math.IsInf(v, -1):
		return json.Marshal("-Inf")
	default:
		return json.Marshal(v)
	}
}
