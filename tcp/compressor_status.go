package tcp

import "fmt"

// go:generate go run github.com/dmarkham/enumer@latest -type=Compressor -json
//
//go:generate enumer -type CompressorType -json
type CompressorType int8

const (
	None CompressorType = iota

	// ZSTD zstd
	ZSTD
)

var compressorTypeName = map[CompressorType]string{
	None: "None",
	ZSTD: "ZSTD",
}

// String はCompressorTypeの文字列表現を返す
func (c CompressorType) String() string {
	if name, ok := compressorTypeName[c]; ok {
		return name
	}
	return fmt.Sprintf("CompressorType(%d)", int8(c))
}

// IsACompressorType は有効なCompressorTypeかどうかを返す
func (c CompressorType) IsACompressorType() bool {
	_, ok := compressorTypeName[c]
	return ok
}

// CompressorTypeString は文字列からCompressorTypeを引く
func CompressorTypeString(s string) (CompressorType, error) {
	for c, name := range compressorTypeName {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%q is not a valid CompressorType", s)
}
