// Package ls implements the xo language server: a single-worker request
// pipeline that mirrors editor documents, brokers them to the xo lint
// engine, and answers with diagnostics, formatting edits, and quick
// fixes.
package ls

import (
	contextpkg "context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/xojs/xo-language-server/internal/xo"
)

var (
	ServerName = "xo-language-server"
	Version    = "0.1.0"
)

var diagnosticSource = "XO"

type Server struct {
	handler  protocol.Handler
	state    *State
	queue    *requestQueue
	debounce *debouncer
	baseCtx  contextpkg.Context

	// newResolver builds an engine resolver from folder settings;
	// swapped out by tests.
	newResolver func(Settings) xo.Resolver
}

func New() *Server {
	s := &Server{
		state:   newState(),
		queue:   newRequestQueue(),
		baseCtx: contextpkg.Background(),
		newResolver: func(cfg Settings) xo.Resolver {
			return &xo.CLIResolver{Path: cfg.Path, Args: cfg.Options}
		},
	}
	s.debounce = newDebouncer(defaultDebounce, maxDebounce)
	s.handler = protocol.Handler{
		Initialize:                      s.initialize,
		Shutdown:                        s.shutdown,
		SetTrace:                        s.setTrace,
		WorkspaceDidChangeConfiguration: s.didChangeConfiguration,
		WorkspaceDidChangeWatchedFiles:  s.didChangeWatchedFiles,
		TextDocumentDidOpen:             s.didOpen,
		TextDocumentDidChange:           s.didChange,
		TextDocumentDidClose:            s.didClose,
		TextDocumentFormatting:          s.formatting,
		TextDocumentCodeAction:          s.codeAction,
	}
	return s
}

// Handle dispatches the custom allFixes request and the cancel
// notification, delegating everything else to the standard handler.
func (s *Server) Handle(context *glsp.Context) (any, bool, bool, error) {
	switch context.Method {
	case methodAllFixes:
		var params allFixesParams
		if err := json.Unmarshal(context.Params, &params); err != nil {
			return nil, true, false, err
		}
		result, err := s.allFixes(context, &params)
		if result == nil {
			return nil, true, true, err
		}
		return result, true, true, err
	case "$/cancelRequest":
		// Cooperative cancellation is keyed per document (a newer change
		// or close supersedes queued requests), so the protocol-level
		// cancel is acknowledged without further bookkeeping.
		slog.Debug("cancelRequest received")
		return nil, true, true, nil
	}
	return s.handler.Handle(context)
}

func (s *Server) RunStdio() error {
	slog.Debug("starting LSP server", "name", ServerName, "version", Version)
	srv := server.NewServer(s, ServerName, false)
	return srv.RunStdio()
}

// SetDebounce installs an initial change-collapse window before the
// server starts; later configuration changes may replace it.
func (s *Server) SetDebounce(window time.Duration) {
	window = clampDebounce(window)
	s.state.mu.Lock()
	s.state.settings.Debounce = window
	s.state.mu.Unlock()
	s.debounce.Reconfigure(window)
}

func (s *Server) initialize(_ *glsp.Context, params *protocol.InitializeParams) (any, error) {
	slog.Debug("initialize request received")
	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}
	capabilities.DocumentFormattingProvider = true
	capabilities.CodeActionProvider = true
	capabilities.Workspace = &protocol.ServerCapabilitiesWorkspace{
		WorkspaceFolders: &protocol.WorkspaceFoldersServerCapabilities{
			Supported: &protocol.True,
		},
	}

	var folders []string
	for _, folder := range params.WorkspaceFolders {
		if path := uriToPath(protocol.DocumentUri(folder.URI)); path != "" {
			folders = append(folders, path)
		}
	}
	if len(folders) == 0 && params.RootURI != nil {
		if path := uriToPath(*params.RootURI); path != "" {
			folders = append(folders, path)
		}
	}
	s.state.setWorkspaceFolders(folders)
	slog.Debug("initialize configuration", "folders", folders)

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    ServerName,
			Version: &Version,
		},
	}, nil
}

func (s *Server) shutdown(_ *glsp.Context) error {
	slog.Debug("shutdown request received")
	protocol.SetTraceValue(protocol.TraceValueOff)
	s.debounce.Stop()
	s.queue.Close()
	return nil
}

func (s *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	slog.Debug("setTrace request received", "value", params.Value)
	protocol.SetTraceValue(params.Value)
	return nil
}
