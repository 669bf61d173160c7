package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/onoma"
)

func isNil(obj object.Object) bool {
	if obj == nil {
		return true
	}
	_, ok := obj.(*object.NilType)
	return ok
}

// stringList converts a Risor list of strings.
func stringList(obj object.Object) ([]string, error) {
	list, ok := obj.(*object.List)
	if !ok {
		return nil, fmt.Errorf("must be a list, got %s", obj.Type())
	}
	items := list.Value()
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(*object.String)
		if !ok {
			return nil, fmt.Errorf("item %d must be a string, got %s", i, item.Type())
		}
		out = append(out, s.Value())
	}
	return out, nil
}

// optionalString converts a Risor string or nil.
func optionalString(obj object.Object) (*string, error) {
	if isNil(obj) {
		return nil, nil
	}
	s, ok := obj.(*object.String)
	if !ok {
		return nil, fmt.Errorf("must be a string or nil, got %s", obj.Type())
	}
	v := s.Value()
	return &v, nil
}

func stringsToList(values []string) *object.List {
	items := make([]object.Object, len(values))
	for i, v := range values {
		items[i] = object.NewString(v)
	}
	return object.NewList(items)
}

// symbolObject converts a resolved symbol, or end of stream, to a Risor
// value.
func symbolObject(sym *onoma.ResolvedSymbol) object.Object {
	if sym == nil {
		return object.Nil
	}
	return object.NewMap(map[string]object.Object{
		"id":           object.NewInt(sym.ID),
		"kind":         object.NewString(sym.Kind),
		"name":         object.NewString(sym.Name),
		"path":         object.NewString(sym.Path),
		"score":        object.NewInt(int64(sym.Score)),
		"start_line":   object.NewInt(int64(sym.StartLine)),
		"start_column": object.NewInt(int64(sym.StartColumn)),
		"end_line":     object.NewInt(int64(sym.EndLine)),
		"end_column":   object.NewInt(int64(sym.EndColumn)),
	})
}
