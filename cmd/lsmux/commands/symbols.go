package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/lsmux/lsmux/config"
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/langserver"
	"github.com/lsmux/lsmux/logger"
)

// languageIDs maps backend identifiers to LSP languageId values for didOpen
var languageIDs = map[string]string{
	"gopls":         "go",
	"rust-analyzer": "rust",
}

// SymbolsCmd starts a backend, waits for readiness and lists the symbols of
// one source file
var SymbolsCmd = &cobra.Command{
	Use:   "symbols <language> <file>",
	Short: "List the symbols declared in a source file",
	Long: `Start the backend for a language, wait until its initial indexing is
complete, and print the symbols declared in the given file.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		language, file := args[0], args[1]
		readyTimeout, _ := cmd.Flags().GetDuration("ready-timeout")

		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		absFile, err := filepath.Abs(file)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %s", file)
		}
		content, err := os.ReadFile(absFile)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", file)
		}
		root := filepath.Dir(absFile)

		srv, err := langserver.Create(language, cfg, root, langserver.Options{Logger: logger.Logger})
		if err != nil {
			return errors.Wrapf(err, "failed to create backend %s", language)
		}
		if err := srv.Start(); err != nil {
			return errors.Wrapf(err, "failed to start backend %s", language)
		}
		defer srv.Stop()

		ctx := cmd.Context()
		if _, err := srv.Initialize(ctx); err != nil {
			return err
		}

		uri := protocol.DocumentUri("file://" + filepath.ToSlash(absFile))
		languageID := languageIDs[language]
		if languageID == "" {
			languageID = language
		}
		if err := srv.Notify("textDocument/didOpen", protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        uri,
				LanguageID: languageID,
				Version:    1,
				Text:       string(content),
			},
		}); err != nil {
			return errors.Wrapf(err, "failed to announce %s", file)
		}

		select {
		case <-srv.Ready():
		case <-srv.Exited():
			return errors.Wrap(errors.ErrServerTerminated, "server exited before becoming ready")
		case <-time.After(readyTimeout):
			return errors.Newf("backend %s not ready after %s", language, readyTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}

		symbols, err := fetchSymbols(ctx, srv, uri)
		if err != nil {
			return err
		}

		if len(symbols) == 0 {
			pterm.Info.Printf("No symbols found in %s\n", file)
			return nil
		}
		for _, sym := range symbols {
			fmt.Printf("%-12s %s:%d  %s\n",
				symbolKindName(sym.Kind),
				file,
				sym.Location.Range.Start.Line+1,
				sym.Name,
			)
		}
		return nil
	},
}

func fetchSymbols(ctx context.Context, srv *langserver.Server, uri protocol.DocumentUri) ([]protocol.SymbolInformation, error) {
	params := protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}

	var symbols []protocol.SymbolInformation
	if err := srv.SendRequest(ctx, "textDocument/documentSymbol", params, &symbols); err != nil {
		return nil, errors.Wrap(err, "document symbol request failed")
	}
	return symbols, nil
}

var symbolKindNames = map[protocol.SymbolKind]string{
	protocol.SymbolKindFile:          "file",
	protocol.SymbolKindModule:        "module",
	protocol.SymbolKindNamespace:     "namespace",
	protocol.SymbolKindPackage:       "package",
	protocol.SymbolKindClass:         "class",
	protocol.SymbolKindMethod:        "method",
	protocol.SymbolKindProperty:      "property",
	protocol.SymbolKindField:         "field",
	protocol.SymbolKindConstructor:   "constructor",
	protocol.SymbolKindEnum:          "enum",
	protocol.SymbolKindInterface:     "interface",
	protocol.SymbolKindFunction:      "function",
	protocol.SymbolKindVariable:      "variable",
	protocol.SymbolKindConstant:      "constant",
	protocol.SymbolKindString:        "string",
	protocol.SymbolKindNumber:        "number",
	protocol.SymbolKindBoolean:       "boolean",
	protocol.SymbolKindArray:         "array",
	protocol.SymbolKindObject:        "object",
	protocol.SymbolKindKey:           "key",
	protocol.SymbolKindNull:          "null",
	protocol.SymbolKindEnumMember:    "enummember",
	protocol.SymbolKindStruct:        "struct",
	protocol.SymbolKindEvent:         "event",
	protocol.SymbolKindOperator:      "operator",
	protocol.SymbolKindTypeParameter: "typeparameter",
}

func symbolKindName(kind protocol.SymbolKind) string {
	if name, ok := symbolKindNames[kind]; ok {
		return name
	}
	return "symbol"
}

func init() {
	SymbolsCmd.Flags().Duration("ready-timeout", 60*time.Second, "How long to wait for the backend's initial indexing")
}
