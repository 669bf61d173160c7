package runtime

import (
	"context"
	"time"

	"github.com/risor-io/risor/object"
	"github.com/rs/zerolog"

	"github.com/jward/onoma"
)

// awaitBackoff is how long await sleeps between unsuccessful polls.
const awaitBackoff = time.Millisecond

// NewModule builds the onoma module table for env:
//
//	get_watcher(roots)            → future(watcher)
//	get_resolver(roots)           → resolver
//	create_context(file, kinds)   → context
//	log(level, msg)               → nil
//	pending()                     → future(nil), ready on its second poll
//	await(future)                 → value, polling until ready
//	database_path                 → string
func NewModule(env *onoma.Env) *object.Module {
	env.Sink().Init()
	reg := newRegistry()
	return object.NewBuiltinsModule("onoma", map[string]object.Object{
		"get_watcher":    makeGetWatcherFn(env, reg),
		"get_resolver":   makeGetResolverFn(env, reg),
		"create_context": makeCreateContextFn(env),
		"log":            makeLogFn(env),
		"pending":        makePendingFn(env, reg),
		"await":          makeAwaitFn(env, reg),
		"database_path":  object.NewString(env.DatabasePath()),
	})
}

// get_watcher(roots) → future(watcher)
func makeGetWatcherFn(env *onoma.Env, reg *registry) *object.Builtin {
	return object.NewBuiltin("get_watcher", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("get_watcher", 1, len(args))
		}
		roots, err := stringList(args[0])
		if err != nil {
			return object.Errorf("get_watcher: roots %v", err)
		}
		return newFuture(reg, env.GetWatcher(roots), func(w *onoma.Watcher) object.Object {
			return newWatcherObject(reg, w)
		})
	})
}

// get_resolver(roots) → resolver
func makeGetResolverFn(env *onoma.Env, reg *registry) *object.Builtin {
	return object.NewBuiltin("get_resolver", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("get_resolver", 1, len(args))
		}
		roots, err := stringList(args[0])
		if err != nil {
			return object.Errorf("get_resolver: roots %v", err)
		}
		r, err := env.GetResolver(roots)
		if err != nil {
			return object.Errorf("get_resolver: %v", err)
		}
		return newResolverObject(reg, r)
	})
}

// create_context(file, kinds) → context
//
// Either argument may be nil.
func makeCreateContextFn(env *onoma.Env) *object.Builtin {
	return object.NewBuiltin("create_context", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("create_context", 2, len(args))
		}
		file, err := optionalString(args[0])
		if err != nil {
			return object.Errorf("create_context: file %v", err)
		}
		var kinds []string
		if !isNil(args[1]) {
			if kinds, err = stringList(args[1]); err != nil {
				return object.Errorf("create_context: kinds %v", err)
			}
		}
		qc, err := env.CreateContext(file, kinds)
		if err != nil {
			return object.Errorf("create_context: %v", err)
		}
		return mustProxy(&contextObject{ctx: qc})
	})
}

// log(level, msg) → nil
func makeLogFn(env *onoma.Env) *object.Builtin {
	return object.NewBuiltin("log", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("log", 2, len(args))
		}
		level, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("log: level must be a string, got %s", args[0].Type())
		}
		msg, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("log: message must be a string, got %s", args[1].Type())
		}
		if err := env.Log(level.Value(), msg.Value()); err != nil {
			return object.Errorf("log: %v", err)
		}
		return object.Nil
	})
}

// pending() → future(nil)
func makePendingFn(env *onoma.Env, reg *registry) *object.Builtin {
	return object.NewBuiltin("pending", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("pending", 0, len(args))
		}
		return newFuture(reg, env.Pending(), func(struct{}) object.Object { return object.Nil })
	})
}

// await(future) → value
//
// Polls the future, yielding one pending step between polls, until it is
// ready. The future's error is raised in the script.
func makeAwaitFn(env *onoma.Env, reg *registry) *object.Builtin {
	return object.NewBuiltin("await", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("await", 1, len(args))
		}
		h, ok := reg.lookup(args[0])
		if !ok {
			return object.Errorf("await: expected a future, got %s", args[0].Type())
		}
		for {
			v, ready, err := h.result()
			if ready {
				if err != nil {
					return object.Errorf("%v", err)
				}
				return v
			}
			step := env.Pending()
			for {
				if _, done, _ := step.Poll(); done {
					break
				}
			}
			select {
			case <-ctx.Done():
				return object.Errorf("await: %v", ctx.Err())
			case <-time.After(awaitBackoff):
			}
		}
	})
}

// logObject provides log.Info/Warn/Error/Debug methods for Risor scripts.
type logObject struct {
	log zerolog.Logger
}

func (l *logObject) Debug(msg string) {
	l.log.Debug().Msg(msg)
}

func (l *logObject) Info(msg string) {
	l.log.Info().Msg(msg)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn().Msg(msg)
}

func (l *logObject) Error(msg string) {
	l.log.Error().Msg(msg)
}
