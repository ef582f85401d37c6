package tcp

import "fmt"

//go:generate enumer -type ParserType -json
type ParserType int8

const (
	JSON ParserType = iota

	PROTOBUF
)

var parserTypeName = map[ParserType]string{
	JSON:     "JSON",
	PROTOBUF: "PROTOBUF",
}

// String はParserTypeの文字列表現を返す
func (p ParserType) String() string {
	if name, ok := parserTypeName[p]; ok {
		return name
	}
	return fmt.Sprintf("ParserType(%d)", int8(p))
}

// IsAParserType は有効なParserTypeかどうかを返す
func (p ParserType) IsAParserType() bool {
	_, ok := parserTypeName[p]
	return ok
}

// ParserTypeString は文字列からParserTypeを引く
func ParserTypeString(s string) (ParserType, error) {
	for p, name := range parserTypeName {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%q is not a valid ParserType", s)
}
