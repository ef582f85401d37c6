package udp

import "fmt"

//go:generate enumer -type Compressor -json
type Compressor int8

const (
	Compressor_NONE Compressor = iota

	Compressor_ZSTD
)

var compressorName = map[Compressor]string{
	Compressor_NONE: "NONE",
	Compressor_ZSTD: "ZSTD",
}

// String はCompressorの文字列表現を返す
func (c Compressor) String() string {
	if name, ok := compressorName[c]; ok {
		return name
	}
	return fmt.Sprintf("Compressor(%d)", int8(c))
}

// IsACompressor は有効なCompressorかどうかを返す
func (c Compressor) IsACompressor() bool {
	_, ok := compressorName[c]
	return ok
}

// CompressorString は文字列からCompressorを引く
func CompressorString(s string) (Compressor, error) {
	for c, name := range compressorName {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%q is not a valid Compressor", s)
}
