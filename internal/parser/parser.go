package parser

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

type Parser struct{}

func New() *Parser { return &Parser{} }

// Decode converts body to UTF-8 using the declared or sniffed charset.
func (p *Parser) Decode(body []byte, contentType string) ([]byte, error) {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	utf8data, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		// fallback: if already utf-8, continue
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("parser: decode: %w", err)
		}
		utf8data = body
	}
	return utf8data, nil
}
