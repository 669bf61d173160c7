package onoma

import (
	"github.com/jward/onoma/internal/async"
	"github.com/jward/onoma/internal/config"
	"github.com/jward/onoma/internal/extract"
	"github.com/jward/onoma/internal/logging"
)

// Public aliases for internal types that appear in the Env API. These are
// Go type aliases (=), so no conversion is needed in either direction.

type Config = config.Config
type Level = logging.Level
type SymbolKind = extract.SymbolKind

// Future is the poll-based result of an asynchronous operation. Poll never
// blocks; a host keeps polling (and yielding with Env.Pending) until it
// reports ready.
type Future[T any] = async.Future[T]
