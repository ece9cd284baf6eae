package gopls

import (
	"context"
	"path/filepath"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/langserver"
)

// Service exposes typed language operations over a running gopls server
type Service struct {
	server *langserver.Server
}

// NewService wraps a started gopls server
func NewService(server *langserver.Server) *Service {
	return &Service{server: server}
}

// Definition returns the definition locations for the symbol at a position
func (s *Service) Definition(ctx context.Context, path string, line, character uint32) ([]protocol.Location, error) {
	params := protocol.DefinitionParams{
		TextDocumentPositionParams: s.position(path, line, character),
	}

	var locations []protocol.Location
	if err := s.server.SendRequest(ctx, "textDocument/definition", params, &locations); err != nil {
		return nil, errors.Wrapf(err, "definition at %s:%d:%d", path, line, character)
	}
	return locations, nil
}

// References returns every reference to the symbol at a position
func (s *Service) References(ctx context.Context, path string, line, character uint32, includeDeclaration bool) ([]protocol.Location, error) {
	params := protocol.ReferenceParams{
		TextDocumentPositionParams: s.position(path, line, character),
		Context: protocol.ReferenceContext{
			IncludeDeclaration: includeDeclaration,
		},
	}

	var locations []protocol.Location
	if err := s.server.SendRequest(ctx, "textDocument/references", params, &locations); err != nil {
		return nil, errors.Wrapf(err, "references at %s:%d:%d", path, line, character)
	}
	return locations, nil
}

// Hover returns hover documentation for the symbol at a position
func (s *Service) Hover(ctx context.Context, path string, line, character uint32) (*protocol.Hover, error) {
	params := protocol.HoverParams{
		TextDocumentPositionParams: s.position(path, line, character),
	}

	var hover protocol.Hover
	if err := s.server.SendRequest(ctx, "textDocument/hover", params, &hover); err != nil {
		return nil, errors.Wrapf(err, "hover at %s:%d:%d", path, line, character)
	}
	return &hover, nil
}

// DocumentSymbols lists the symbols declared in one file
func (s *Service) DocumentSymbols(ctx context.Context, path string) ([]protocol.SymbolInformation, error) {
	params := protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: PathToURI(s.server.Root(), path)},
	}

	var symbols []protocol.SymbolInformation
	if err := s.server.SendRequest(ctx, "textDocument/documentSymbol", params, &symbols); err != nil {
		return nil, errors.Wrapf(err, "document symbols for %s", path)
	}
	return symbols, nil
}

// WorkspaceSymbols searches symbols across the whole workspace
func (s *Service) WorkspaceSymbols(ctx context.Context, query string) ([]protocol.SymbolInformation, error) {
	params := protocol.WorkspaceSymbolParams{Query: query}

	var symbols []protocol.SymbolInformation
	if err := s.server.SendRequest(ctx, "workspace/symbol", params, &symbols); err != nil {
		return nil, errors.Wrapf(err, "workspace symbols for %q", query)
	}
	return symbols, nil
}

// DidOpen announces a document's content to the server. gopls answers
// position queries against the announced text, not the on-disk state.
func (s *Service) DidOpen(path, content string) error {
	return s.server.Notify("textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        PathToURI(s.server.Root(), path),
			LanguageID: "go",
			Version:    1,
			Text:       content,
		},
	})
}

func (s *Service) position(path string, line, character uint32) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: PathToURI(s.server.Root(), path)},
		Position: protocol.Position{
			Line:      protocol.UInteger(line),
			Character: protocol.UInteger(character),
		},
	}
}

// PathToURI converts a workspace-relative or absolute path to a file URI
func PathToURI(root, path string) protocol.DocumentUri {
	switch {
	case path == "":
		return protocol.DocumentUri("file://" + filepath.ToSlash(root))
	case filepath.IsAbs(path):
		return protocol.DocumentUri("file://" + filepath.ToSlash(path))
	default:
		return protocol.DocumentUri("file://" + filepath.ToSlash(filepath.Join(root, path)))
	}
}

// URIToPath strips the file scheme from a URI
func URIToPath(uri protocol.DocumentUri) string {
	return strings.TrimPrefix(string(uri), "file://")
}
