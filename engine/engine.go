package engine

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"breachline/engine/enginerr"
	"breachline/internal/annotation"
	"breachline/internal/batchstore"
	"breachline/internal/column"
	"breachline/internal/config"
	"breachline/internal/fuzzy"
	"breachline/internal/rowindex"
	"breachline/internal/sortengine"
	"breachline/internal/store"
	"breachline/internal/typeinfer"
)

// Engine is the C11 facade: it owns the single active dataset and
// dispatches the request set of §6 against it.
type Engine struct {
	mu  sync.RWMutex
	log zerolog.Logger

	capability store.Capability
	prefsStore *config.Store
	prefs      config.Preferences
	opts       Options
	initDone   bool

	ds      *dataset
	loadGen uint64 // bumped on every LoadFile call; guards against a stale ingestion mutating state after a reload
}

// dataset holds everything tied to the one currently loaded file, per
// §4.11.
type dataset struct {
	key         string
	fingerprint Fingerprint
	fileSize    int64

	header      []string
	columnTypes map[string]column.Type
	columnInfer map[string]typeinfer.Resolution

	batchStore *batchstore.Store
	rowIndex   *rowindex.Index
	fuzzyIdx   *fuzzy.Index
	fuzzySnap  *fuzzy.Snapshot // reused snapshot, if cache-valid at load time
	annots     *annotation.Store

	filterState  *filterState
	sorts        []sortengine.Key
	sortedRowIDs []uint32
	pendingSort  *sortengine.Pending

	totalRows   uint32
	bytesParsed int64
	eof         bool

	mu sync.Mutex // guards the mutable query-state fields above (filterState, sorts, sortedRowIDs, pendingSort, totalRows, bytesParsed, eof)
}

// filterState is defined in query.go alongside the query handlers
// that populate it.

// New constructs an Engine backed by capability for batch/row-index/
// fuzzy/annotation spill, persisting preferences at prefsPath.
func New(capability store.Capability, prefsPath string) *Engine {
	return &Engine{
		capability: capability,
		prefsStore: config.NewStore(prefsPath),
		prefs:      config.Default(),
		log:        zerolog.New(os.Stderr).With().Timestamp().Str("component", "engine").Logger(),
	}
}

// Init applies opts and loads persisted preferences, per §6's
// init(options). Idempotent: repeat calls simply re-apply the given
// options atop the persisted preferences.
func (e *Engine) Init(opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prefs, err := e.prefsStore.Load()
	if err != nil {
		e.log.Warn().Err(err).Msg("loading preferences failed, using defaults")
		prefs = config.Default()
	}
	e.prefs = prefs
	e.opts = opts
	e.initDone = true

	level := zerolog.InfoLevel
	if opts.DebugLogging {
		level = zerolog.DebugLevel
	}
	e.log = e.log.Level(level)
	return nil
}

// requireDataset returns the active dataset or a NotReady error.
func (e *Engine) requireDataset() (*dataset, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ds == nil {
		return nil, enginerr.NotReadyf("no dataset loaded")
	}
	return e.ds, nil
}

// SavePreferences persists the engine's current effective preferences.
func (e *Engine) SavePreferences() error {
	e.mu.RLock()
	prefs := e.prefs
	e.mu.RUnlock()
	if err := e.prefsStore.Save(prefs); err != nil {
		return enginerr.IOErrorf(err, "saving preferences")
	}
	return nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }
