package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync"
	"weak"

	"github.com/risor-io/risor/object"

	"github.com/jward/onoma"
)

// futureHandle is the type-erased state behind a future object. Once the
// underlying future is ready its converted value is kept, so every later
// poll returns the same object.
type futureHandle struct {
	mu    sync.Mutex
	poll  func() (object.Object, bool, error)
	done  bool
	value object.Object
	err   error
}

func (h *futureHandle) result() (object.Object, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return h.value, true, h.err
	}
	v, ready, err := h.poll()
	if !ready {
		return nil, false, nil
	}
	h.done, h.value, h.err = true, v, err
	h.poll = nil
	return v, true, err
}

// registry maps future objects back to their handles so await can drive
// them. Entries go away when the script drops the object.
type registry struct {
	mu      sync.Mutex
	futures map[weak.Pointer[object.Module]]*futureHandle
}

func newRegistry() *registry {
	return &registry{futures: make(map[weak.Pointer[object.Module]]*futureHandle)}
}

func (r *registry) add(mod *object.Module, h *futureHandle) {
	key := weak.Make(mod)
	r.mu.Lock()
	r.futures[key] = h
	r.mu.Unlock()
	goruntime.AddCleanup(mod, func(key weak.Pointer[object.Module]) {
		r.mu.Lock()
		delete(r.futures, key)
		r.mu.Unlock()
	}, key)
}

func (r *registry) lookup(obj object.Object) (*futureHandle, bool) {
	mod, ok := obj.(*object.Module)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.futures[weak.Make(mod)]
	return h, ok
}

// newFuture wraps f as a future object:
//
//	future.poll()  → {"ready": bool, "value": any}, raising the error
//	future.ready() → bool
func newFuture[T any](reg *registry, f *onoma.Future[T], convert func(T) object.Object) *object.Module {
	h := &futureHandle{poll: func() (object.Object, bool, error) {
		v, ready, err := f.Poll()
		if !ready {
			return nil, false, nil
		}
		if err != nil {
			return object.Nil, true, err
		}
		return convert(v), true, nil
	}}

	mod := object.NewBuiltinsModule("future", map[string]object.Object{
		"poll": object.NewBuiltin("poll", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 0 {
				return object.NewArgsError("poll", 0, len(args))
			}
			v, ready, err := h.result()
			if !ready {
				return object.NewMap(map[string]object.Object{
					"ready": object.NewBool(false),
					"value": object.Nil,
				})
			}
			if err != nil {
				return object.Errorf("%v", err)
			}
			return object.NewMap(map[string]object.Object{
				"ready": object.NewBool(true),
				"value": v,
			})
		}),
		"ready": object.NewBuiltin("ready", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 0 {
				return object.NewArgsError("ready", 0, len(args))
			}
			_, ready, _ := h.result()
			return object.NewBool(ready)
		}),
	})
	reg.add(mod, h)
	return mod
}

// newWatcherObject exposes a watcher:
//
//	watcher.start()         → future(nil)
//	watcher.stop_blocking() → nil
//	watcher.running()       → bool
//	watcher.roots()         → list
func newWatcherObject(reg *registry, w *onoma.Watcher) *object.Module {
	return object.NewBuiltinsModule("watcher", map[string]object.Object{
		"start": object.NewBuiltin("start", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 0 {
				return object.NewArgsError("start", 0, len(args))
			}
			return newFuture(reg, w.Start(), func(struct{}) object.Object { return object.Nil })
		}),
		"stop_blocking": object.NewBuiltin("stop_blocking", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 0 {
				return object.NewArgsError("stop_blocking", 0, len(args))
			}
			if err := w.StopBlocking(); err != nil {
				return object.Errorf("stop_blocking: %v", err)
			}
			return object.Nil
		}),
		"running": object.NewBuiltin("running", func(ctx context.Context, args ...object.Object) object.Object {
			return object.NewBool(w.Running())
		}),
		"roots": object.NewBuiltin("roots", func(ctx context.Context, args ...object.Object) object.Object {
			return stringsToList(w.Roots())
		}),
	})
}

// newResolverObject exposes a resolver:
//
//	resolver.query(text, context) → future(stream)
//	resolver.roots()              → list
//
// A nil context means no current file and every kind.
func newResolverObject(reg *registry, r *onoma.Resolver) *object.Module {
	return object.NewBuiltinsModule("resolver", map[string]object.Object{
		"query": object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 2 {
				return object.NewArgsError("query", 2, len(args))
			}
			text, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("query: text must be a string, got %s", args[0].Type())
			}
			var qc onoma.Context
			if !isNil(args[1]) {
				c, err := contextOf(args[1])
				if err != nil {
					return object.Errorf("query: %v", err)
				}
				qc = c
			}
			return newFuture(reg, r.Query(text.Value(), qc), func(s *onoma.Stream) object.Object {
				return newStreamObject(reg, s)
			})
		}),
		"roots": object.NewBuiltin("roots", func(ctx context.Context, args ...object.Object) object.Object {
			return stringsToList(r.Roots())
		}),
	})
}

// newStreamObject exposes a result stream:
//
//	stream.next()  → future(symbol map or nil)
//	stream.close() → nil
func newStreamObject(reg *registry, s *onoma.Stream) *object.Module {
	return object.NewBuiltinsModule("stream", map[string]object.Object{
		"next": object.NewBuiltin("next", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 0 {
				return object.NewArgsError("next", 0, len(args))
			}
			return newFuture(reg, s.Next(), symbolObject)
		}),
		"close": object.NewBuiltin("close", func(ctx context.Context, args ...object.Object) object.Object {
			s.Close()
			return object.Nil
		}),
	})
}

// contextObject is the proxied Go value behind a context handle.
type contextObject struct {
	ctx onoma.Context
}

// CurrentFile returns the current file, or "" when unset.
func (c *contextObject) CurrentFile() string {
	file, _ := c.ctx.CurrentFile()
	return file
}

func contextOf(obj object.Object) (onoma.Context, error) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return onoma.Context{}, fmt.Errorf("context must come from create_context, got %s", obj.Type())
	}
	c, ok := proxy.Interface().(*contextObject)
	if !ok {
		return onoma.Context{}, fmt.Errorf("context must come from create_context, got %T", proxy.Interface())
	}
	return c.ctx, nil
}
