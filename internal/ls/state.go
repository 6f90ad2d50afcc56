package ls

import (
	"context"
	"sort"
	"strings"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/xojs/xo-language-server/internal/xo"
)

// document is the server's read-only mirror of an editor document.
type document struct {
	uri        protocol.DocumentUri
	path       string
	languageID string
	version    protocol.Integer
	text       string
	folder     string
}

// folderEntry caches everything resolved per workspace folder: the
// project-root marker location, the engine resolution, and the merged
// configuration. Entries are created lazily on first document access and
// garbage-collected when the folder's last document closes. The cached
// values are invalidated independently: a configuration change clears
// config only, a watched-files change clears root, config and engine.
type folderEntry struct {
	root          string
	rootKnown     bool
	engine        xo.Engine
	config        *Settings
	errorNotified bool
}

// State is the coordinator's explicit mutable state. A Server owns
// exactly one State; tests construct as many isolated instances as they
// need.
type State struct {
	mu sync.Mutex

	docs    map[protocol.DocumentUri]*document
	folders map[string]*folderEntry
	fixes   map[protocol.DocumentUri]map[string]fix

	// pending request cancellation, keyed by document; a newer change or
	// a close for a document supersedes its queued requests.
	pending    map[protocol.DocumentUri]map[uint64]context.CancelFunc
	pendingSeq uint64

	folderPaths []string
	settings    Settings
}

func newState() *State {
	return &State{
		docs:     make(map[protocol.DocumentUri]*document),
		folders:  make(map[string]*folderEntry),
		fixes:    make(map[protocol.DocumentUri]map[string]fix),
		pending:  make(map[protocol.DocumentUri]map[uint64]context.CancelFunc),
		settings: defaultSettings(),
	}
}

func (st *State) document(uri protocol.DocumentUri) (document, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	doc, ok := st.docs[uri]
	if !ok {
		return document{}, false
	}
	return *doc, true
}

// setWorkspaceFolders records folder paths, longest first so that nested
// folders win when a document belongs to more than one.
func (st *State) setWorkspaceFolders(paths []string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.folderPaths = append([]string(nil), paths...)
	sort.Slice(st.folderPaths, func(i, j int) bool {
		return len(st.folderPaths[i]) > len(st.folderPaths[j])
	})
}

// folderForLocked maps a document path to its owning workspace folder,
// falling back to the nearest project root when the document lies outside
// every workspace folder. Callers must hold st.mu.
func (st *State) folderForLocked(path string) string {
	for _, folder := range st.folderPaths {
		if strings.HasPrefix(path, folder) {
			return folder
		}
	}
	if root, ok := xo.FindRoot(dirOf(path)); ok {
		return root
	}
	return dirOf(path)
}

func (st *State) folderEntry(folder string) *folderEntry {
	st.mu.Lock()
	defer st.mu.Unlock()
	entry, ok := st.folders[folder]
	if !ok {
		entry = &folderEntry{}
		st.folders[folder] = entry
	}
	return entry
}

// collectGarbage drops the folder's cached entries once no open document
// remains under it, together with the closed document's fix map.
func (st *State) collectGarbage(uri protocol.DocumentUri, folder string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.fixes, uri)
	for _, doc := range st.docs {
		if doc.folder == folder {
			return
		}
	}
	delete(st.folders, folder)
}

func (st *State) openURIs() []protocol.DocumentUri {
	st.mu.Lock()
	defer st.mu.Unlock()
	uris := make([]protocol.DocumentUri, 0, len(st.docs))
	for uri := range st.docs {
		uris = append(uris, uri)
	}
	return uris
}

// register derives a cancellation context for a queued request touching
// uri. The returned release func must be called once the request settles.
func (st *State) register(uri protocol.DocumentUri) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	st.mu.Lock()
	st.pendingSeq++
	id := st.pendingSeq
	if st.pending[uri] == nil {
		st.pending[uri] = make(map[uint64]context.CancelFunc)
	}
	st.pending[uri][id] = cancel
	st.mu.Unlock()

	release := func() {
		cancel()
		st.mu.Lock()
		delete(st.pending[uri], id)
		if len(st.pending[uri]) == 0 {
			delete(st.pending, uri)
		}
		st.mu.Unlock()
	}
	return ctx, release
}

// cancelPending supersedes every queued request for uri.
func (st *State) cancelPending(uri protocol.DocumentUri) {
	st.mu.Lock()
	cancels := st.pending[uri]
	delete(st.pending, uri)
	st.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
