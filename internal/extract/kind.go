package extract

import (
	"errors"
	"fmt"
)

// ErrInvalidSymbolKind is returned by ParseSymbolKind for unknown names.
var ErrInvalidSymbolKind = errors.New("invalid symbol kind")

// SymbolKind classifies an extracted symbol.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindEnum      SymbolKind = "enum"
	KindType      SymbolKind = "type"
	KindConstant  SymbolKind = "constant"
	KindVariable  SymbolKind = "variable"
	KindModule    SymbolKind = "module"
	KindField     SymbolKind = "field"
	KindTrait     SymbolKind = "trait"
	KindMacro     SymbolKind = "macro"
)

// AllKinds lists every SymbolKind in canonical order.
var AllKinds = []SymbolKind{
	KindFunction, KindMethod, KindClass, KindStruct, KindInterface, KindEnum,
	KindType, KindConstant, KindVariable, KindModule, KindField, KindTrait, KindMacro,
}

// ParseSymbolKind maps a canonical, case-sensitive kind name to a SymbolKind.
func ParseSymbolKind(name string) (SymbolKind, error) {
	for _, k := range AllKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidSymbolKind, name)
}

func (k SymbolKind) String() string { return string(k) }
