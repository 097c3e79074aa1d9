package pgq

import (
	"strings"

	"github.com/mitranim/sqlp"
)

/*
Wraps `sqlp.Tokenizer`, additionally treating Postgres dollar-quoted strings,
such as "$$text$$" or "$tag$text$tag$", as opaque text. Parameter-like text
inside them is not a parameter. Appending every node reproduces the source.

Panics with `ErrUnparseable` on an unterminated dollar-quoted string.
*/
type tokenizer struct {
	src  string
	tok  sqlp.Tokenizer
	base int
	pos  int
	next sqlp.Node
}

func newTokenizer(src string) *tokenizer {
	return &tokenizer{src: src, tok: sqlp.Tokenizer{Source: src}}
}

func (self *tokenizer) Next() sqlp.Node {
	if self.next != nil {
		node := self.next
		self.next = nil
		return node
	}

	node := self.tok.Next()
	if node == nil {
		return nil
	}

	text, ok := node.(sqlp.NodeText)
	if !ok {
		self.pos += len(node.String())
		return node
	}

	start := self.base + self.pos
	index, tag := dollarQuoteStart(string(text), self.byteBefore(start))
	if index < 0 {
		self.pos += len(text)
		return node
	}

	open := start + index
	end := strings.Index(self.src[open+len(tag):], tag)
	if end < 0 {
		panic(ErrUnparseable.while(`tokenizing SQL`).becausef(
			`unterminated dollar-quoted string starting at byte %v`, open,
		))
	}
	end += open + len(tag)*2

	self.base = end
	self.pos = 0
	self.tok = sqlp.Tokenizer{Source: self.src[end:]}

	quoted := sqlp.NodeText(self.src[open:end])
	if index == 0 {
		return quoted
	}
	self.next = quoted
	return text[:index]
}

func (self *tokenizer) byteBefore(index int) byte {
	if index > 0 && index <= len(self.src) {
		return self.src[index-1]
	}
	return 0
}

/*
Finds the opening delimiter of a dollar-quoted string in a text node, such as
"$$" or "$tag$". Returns -1 when there is none. `prev` is the byte preceding
the text. A "$" continuing an identifier, such as "a$b$", doesn't open a
string.
*/
func dollarQuoteStart(text string, prev byte) (int, string) {
	for i := 0; i < len(text); i++ {
		if text[i] != '$' {
			continue
		}

		before := prev
		if i > 0 {
			before = text[i-1]
		}
		if isNameByte(before) || before == '$' {
			continue
		}

		j := i + 1
		if j < len(text) && isNameStartByte(text[j]) {
			for j < len(text) && isNameByte(text[j]) {
				j++
			}
		}
		if j < len(text) && text[j] == '$' {
			return i, text[i : j+1]
		}
	}
	return -1, ``
}

func isNameStartByte(char byte) bool {
	return char == '_' || (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z')
}

func isNameByte(char byte) bool {
	return isNameStartByte(char) || (char >= '0' && char <= '9')
}
