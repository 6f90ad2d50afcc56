package ls

import (
	contextpkg "context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Settings is the xo section of the client configuration.
type Settings struct {
	// Enable toggles linting entirely.
	Enable bool
	// Debounce is the change-event collapse window, clamped to
	// [0, maxDebounce].
	Debounce time.Duration
	// FormatEnable gates the textDocument/formatting fix pipeline.
	FormatEnable bool
	// Path overrides engine resolution with an explicit executable.
	Path string
	// Options are extra CLI arguments passed to every engine run.
	Options []string
}

func defaultSettings() Settings {
	return Settings{Enable: true}
}

func clampDebounce(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxDebounce {
		return maxDebounce
	}
	return d
}

// settingsFromJSON reads a settings object (the value of the "xo"
// section) on top of the defaults.
func settingsFromJSON(value gjson.Result) Settings {
	s := defaultSettings()
	if v := value.Get("enable"); v.Exists() {
		s.Enable = v.Bool()
	}
	if v := value.Get("debounce"); v.Exists() {
		s.Debounce = clampDebounce(time.Duration(v.Int()) * time.Millisecond)
	}
	if v := value.Get("format.enable"); v.Exists() {
		s.FormatEnable = v.Bool()
	}
	if v := value.Get("path"); v.Exists() {
		s.Path = v.String()
	}
	for _, opt := range value.Get("options").Array() {
		s.Options = append(s.Options, opt.String())
	}
	return s
}

// parseSettings extracts the xo section from a didChangeConfiguration
// payload. The second return is false when the payload has no xo section.
func parseSettings(settings any) (Settings, bool) {
	data, err := json.Marshal(settings)
	if err != nil {
		return defaultSettings(), false
	}
	section := gjson.GetBytes(data, "xo")
	if !section.Exists() {
		return defaultSettings(), false
	}
	return settingsFromJSON(section), true
}

func (s *Server) didChangeConfiguration(context *glsp.Context, params *protocol.DidChangeConfigurationParams) error {
	settings, ok := parseSettings(params.Settings)

	s.state.mu.Lock()
	previous := s.state.settings.Debounce
	if ok {
		s.state.settings = settings
	}
	debounce := s.state.settings.Debounce
	// Force re-derivation of every folder's configuration on next
	// access. Engine resolutions stay: module location does not depend
	// on option values.
	for _, entry := range s.state.folders {
		entry.config = nil
	}
	s.state.mu.Unlock()

	if debounce != previous {
		slog.Debug("debounce window changed", "from", previous, "to", debounce)
		s.debounce.Reconfigure(debounce)
	}
	s.relintAll(context)
	return nil
}

func (s *Server) didChangeWatchedFiles(context *glsp.Context, params *protocol.DidChangeWatchedFilesParams) error {
	slog.Debug("didChangeWatchedFiles", "changes", len(params.Changes))

	// A project config file or dependency changed on disk, so cached
	// root, engine and configuration resolutions may be stale. Dropping
	// them here also re-arms the once-per-folder resolution-error notice.
	s.state.mu.Lock()
	for _, entry := range s.state.folders {
		entry.root = ""
		entry.rootKnown = false
		entry.config = nil
		entry.engine = nil
		entry.errorNotified = false
	}
	s.state.mu.Unlock()

	s.relintAll(context)
	return nil
}

// relintAll submits a lint task for every open document.
func (s *Server) relintAll(context *glsp.Context) {
	for _, uri := range s.state.openURIs() {
		s.queue.Submit(s.baseCtx, func(ctx contextpkg.Context) {
			_ = s.lintDocument(ctx, context, uri)
		})
	}
}

// configurationParams mirrors the workspace/configuration request
// payload; declared locally to keep the wire shape explicit.
type configurationParams struct {
	Items []configurationItem `json:"items"`
}

type configurationItem struct {
	ScopeURI string `json:"scopeUri,omitempty"`
	Section  string `json:"section,omitempty"`
}

const methodWorkspaceConfiguration = "workspace/configuration"

// configFor returns the folder's configuration, fetching the
// client-scoped "xo" section on a cache miss and falling back to the
// last global settings when the client does not answer.
func (s *Server) configFor(context *glsp.Context, folder string, uri protocol.DocumentUri) Settings {
	entry := s.state.folderEntry(folder)

	s.state.mu.Lock()
	if entry.config != nil {
		cfg := *entry.config
		s.state.mu.Unlock()
		return cfg
	}
	cfg := s.state.settings
	s.state.mu.Unlock()

	if context != nil && context.Call != nil {
		var result []json.RawMessage
		context.Call(methodWorkspaceConfiguration, configurationParams{
			Items: []configurationItem{{ScopeURI: string(uri), Section: "xo"}},
		}, &result)
		if len(result) > 0 && len(result[0]) > 0 && string(result[0]) != "null" {
			cfg = settingsFromJSON(gjson.ParseBytes(result[0]))
		}
	}

	s.state.mu.Lock()
	entry.config = &cfg
	s.state.mu.Unlock()
	return cfg
}
