package udp

import "fmt"

//go:generate enumer -type Parser -json
type Parser int8

const (
	Parser_NONE Parser = iota

	Parser_JSON

	Parser_PROTOBUF
)

var parserName = map[Parser]string{
	Parser_NONE:     "NONE",
	Parser_JSON:     "JSON",
	Parser_PROTOBUF: "PROTOBUF",
}

// String はParserの文字列表現を返す
func (p Parser) String() string {
	if name, ok := parserName[p]; ok {
		return name
	}
	return fmt.Sprintf("Parser(%d)", int8(p))
}

// IsAParser は有効なParserかどうかを返す
func (p Parser) IsAParser() bool {
	_, ok := parserName[p]
	return ok
}

// ParserString は文字列からParserを引く
func ParserString(s string) (Parser, error) {
	for p, name := range parserName {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%q is not a valid Parser", s)
}
