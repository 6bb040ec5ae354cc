package shared

import (
	"github.com/bytedance/sonic"
)

var JSON = sonic.Config{
	UseNumber:            true,
	EscapeHTML:           false,
	SortMapKeys:          false,
	CompactMarshaler:     true,
	NoQuoteTextMarshaler: true,
	NoNullSliceOrMap:     true,
}.Froze()

func MustMarshal(v interface{}) []byte {
	b, _ := JSON.Marshal(v)
	return b
}
