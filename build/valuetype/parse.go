// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package valuetype

import (
	"strconv"
	"strings"
	"unicode"
)

type specParser struct {
	src string
	pos int
	ok  bool
}

func (p *specParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *specParser) eat(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *specParser) expect(c byte) {
	if !p.eat(c) {
		p.ok = false
	}
}

func isIdent(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	case !first && '0' <= c && c <= '9':
		return true
	}
	return false
}

func (p *specParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isIdent(p.src[p.pos], p.pos == start) {
		p.pos++
	}
	if start == p.pos {
		p.ok = false
	}
	return p.src[start:p.pos]
}

func (p *specParser) number() int {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && '0' <= p.src[p.pos] && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		p.ok = false
	}
	return n
}

func (p *specParser) dimension() Dimension {
	name := p.ident()
	if p.eat('{') {
		p.expect('}')
		return Mapped(name)
	}
	p.expect('[')
	size := p.number()
	p.expect(']')
	if size == 0 {
		p.ok = false
	}
	return Indexed(name, size)
}

func (p *specParser) tensor() Type {
	cell := Double
	if p.eat('<') {
		var found bool
		if cell, found = CellTypeFromString(p.ident()); !found {
			p.ok = false
		}
		p.expect('>')
	}
	p.expect('(')
	var dims []Dimension
	if !p.eat(')') {
		for p.ok {
			dims = append(dims, p.dimension())
			if p.eat(')') {
				break
			}
			p.expect(',')
		}
	}
	if !p.ok {
		return Error()
	}
	return Make(cell, dims...)
}

// Parse returns the type given its type spec, for example
// "tensor<float>(x[3],y{})". An invalid spec returns the error type.
func Parse(spec string) Type {
	p := &specParser{src: spec, ok: true}
	var t Type
	switch p.ident() {
	case "error":
		t = Error()
	case "double":
		t = Scalar()
	case "tensor":
		t = p.tensor()
	default:
		return Error()
	}
	p.skipSpace()
	if !p.ok || p.pos != len(p.src) {
		return Error()
	}
	return t
}

// MustParse returns the type given its spec and panics if the spec is invalid.
func MustParse(spec string) Type {
	t := Parse(spec)
	if t.IsError() && strings.TrimSpace(spec) != "error" {
		panic("invalid type spec: " + spec)
	}
	return t
}
