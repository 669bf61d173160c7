// Package onoma bridges a background symbol indexer into a single-threaded,
// cooperatively scheduled host such as an embedded scripting VM.
//
// The host never blocks on native work. Every operation that can take time
// returns a [Future] whose Poll reports either "not yet" or the final
// result; the host keeps polling, yielding between polls with
// [Env.Pending], until the future is ready.
//
// # Environment
//
// An [Env] is built once when the host loads the module and closed once at
// teardown. It owns the diagnostics sink (a per-session log file) and two
// worker runtimes, one for watching and indexing and one for queries. Each
// runtime is built on first use.
//
//	env, err := onoma.NewEnv(cfg)
//	if err != nil { ... }
//	defer env.Close(context.Background())
//
// # Watching
//
// [Env.GetWatcher] opens the index for a set of root directories.
// [Watcher.Start] starts the file-system watch loop and runs a full index
// at the same time; it resolves only when both have succeeded.
// [Watcher.StopBlocking] is the one blocking call and belongs at teardown.
//
// # Querying
//
// [Env.GetResolver] returns a [Resolver] over the same roots.
// [Env.CreateContext] narrows a query by current file and symbol kinds.
// [Resolver.Query] yields a [Stream] whose [Stream.Next] produces one
// [ResolvedSymbol] at a time, best match first, and nil at the end.
//
//	qc, _ := env.CreateContext(nil, []string{"function"})
//	stream := await(resolver.Query("parseInput", qc))
//	for sym := await(stream.Next()); sym != nil; sym = await(stream.Next()) {
//		...
//	}
//
// # Host module
//
// Package internal/runtime exposes the same operations to Risor scripts as
// the onoma module.
package onoma
