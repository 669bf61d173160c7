package extract

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

// rule is one tree-sitter pattern. Each pattern captures the declaring node
// as @def and its identifier as @name. refine, when set, may reclassify a
// match from its surrounding syntax.
type rule struct {
	pattern string
	kind    SymbolKind
	refine  func(def, body *sitter.Node) SymbolKind
}

var languageRules = map[string][]rule{
	"go": {
		{pattern: `(function_declaration name: (identifier) @name) @def`, kind: KindFunction},
		{pattern: `(method_declaration name: (field_identifier) @name) @def`, kind: KindMethod},
		{pattern: `(type_spec name: (type_identifier) @name type: (_) @body) @def`, kind: KindType, refine: refineGoType},
		{pattern: `(type_alias name: (type_identifier) @name) @def`, kind: KindType},
		{pattern: `(field_declaration name: (field_identifier) @name) @def`, kind: KindField},
		{pattern: `(source_file (const_declaration (const_spec name: (identifier) @name) @def))`, kind: KindConstant},
		{pattern: `(source_file (var_declaration (var_spec name: (identifier) @name) @def))`, kind: KindVariable},
	},
	"python": {
		{pattern: `(class_definition name: (identifier) @name) @def`, kind: KindClass},
		{pattern: `(function_definition name: (identifier) @name) @def`, kind: KindFunction, refine: refinePythonFunction},
		{pattern: `(module (expression_statement (assignment left: (identifier) @name) @def))`, kind: KindVariable},
	},
	"javascript": {
		{pattern: `(function_declaration name: (identifier) @name) @def`, kind: KindFunction},
		{pattern: `(class_declaration name: (identifier) @name) @def`, kind: KindClass},
		{pattern: `(method_definition name: (property_identifier) @name) @def`, kind: KindMethod},
		{pattern: `(program (lexical_declaration (variable_declarator name: (identifier) @name) @def))`, kind: KindVariable},
		{pattern: `(program (variable_declaration (variable_declarator name: (identifier) @name) @def))`, kind: KindVariable},
	},
	"typescript": {
		{pattern: `(function_declaration name: (identifier) @name) @def`, kind: KindFunction},
		{pattern: `(class_declaration name: (type_identifier) @name) @def`, kind: KindClass},
		{pattern: `(abstract_class_declaration name: (type_identifier) @name) @def`, kind: KindClass},
		{pattern: `(method_definition name: (property_identifier) @name) @def`, kind: KindMethod},
		{pattern: `(interface_declaration name: (type_identifier) @name) @def`, kind: KindInterface},
		{pattern: `(type_alias_declaration name: (type_identifier) @name) @def`, kind: KindType},
		{pattern: `(enum_declaration name: (identifier) @name) @def`, kind: KindEnum},
		{pattern: `(module name: (_) @name) @def`, kind: KindModule},
		{pattern: `(program (lexical_declaration (variable_declarator name: (identifier) @name) @def))`, kind: KindVariable},
	},
	"rust": {
		{pattern: `(function_item name: (identifier) @name) @def`, kind: KindFunction, refine: refineRustFunction},
		{pattern: `(struct_item name: (type_identifier) @name) @def`, kind: KindStruct},
		{pattern: `(enum_item name: (type_identifier) @name) @def`, kind: KindEnum},
		{pattern: `(trait_item name: (type_identifier) @name) @def`, kind: KindTrait},
		{pattern: `(type_item name: (type_identifier) @name) @def`, kind: KindType},
		{pattern: `(const_item name: (identifier) @name) @def`, kind: KindConstant},
		{pattern: `(static_item name: (identifier) @name) @def`, kind: KindVariable},
		{pattern: `(mod_item name: (identifier) @name) @def`, kind: KindModule},
		{pattern: `(macro_definition name: (identifier) @name) @def`, kind: KindMacro},
		{pattern: `(field_declaration name: (field_identifier) @name) @def`, kind: KindField},
	},
	"c": {
		{pattern: `(function_definition declarator: (function_declarator declarator: (identifier) @name)) @def`, kind: KindFunction},
		{pattern: `(struct_specifier name: (type_identifier) @name body: (field_declaration_list)) @def`, kind: KindStruct},
		{pattern: `(enum_specifier name: (type_identifier) @name body: (enumerator_list)) @def`, kind: KindEnum},
		{pattern: `(type_definition declarator: (type_identifier) @name) @def`, kind: KindType},
		{pattern: `(preproc_def name: (identifier) @name) @def`, kind: KindMacro},
		{pattern: `(preproc_function_def name: (identifier) @name) @def`, kind: KindMacro},
	},
	"java": {
		{pattern: `(class_declaration name: (identifier) @name) @def`, kind: KindClass},
		{pattern: `(interface_declaration name: (identifier) @name) @def`, kind: KindInterface},
		{pattern: `(enum_declaration name: (identifier) @name) @def`, kind: KindEnum},
		{pattern: `(method_declaration name: (identifier) @name) @def`, kind: KindMethod},
		{pattern: `(constructor_declaration name: (identifier) @name) @def`, kind: KindMethod},
		{pattern: `(field_declaration declarator: (variable_declarator name: (identifier) @name)) @def`, kind: KindField},
	},
}

func refineGoType(_, body *sitter.Node) SymbolKind {
	if body == nil {
		return KindType
	}
	switch body.Type() {
	case "struct_type":
		return KindStruct
	case "interface_type":
		return KindInterface
	}
	return KindType
}

// refinePythonFunction reports functions defined directly in a class body
// as methods.
func refinePythonFunction(def, _ *sitter.Node) SymbolKind {
	for p := def.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "block", "decorated_definition":
			continue
		case "class_definition":
			return KindMethod
		}
		break
	}
	return KindFunction
}

func refineRustFunction(def, _ *sitter.Node) SymbolKind {
	for p := def.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "declaration_list":
			continue
		case "impl_item", "trait_item":
			return KindMethod
		}
		break
	}
	return KindFunction
}

// isConstantName reports SCREAMING_CASE identifiers.
func isConstantName(name string) bool {
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter && strings.TrimLeft(name, "_") != ""
}
