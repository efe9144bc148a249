// Package lsp implements the persistent editor bridge: a Language Server
// Protocol server over stdin/stdout that republishes type errors streamed by
// the Peregrine analyzer daemon.
//
// The server claims no code-intelligence capabilities. It tracks document
// open/close, keeps a workspace-wide diagnostic store, and owns the lifetime
// of the background task that talks to the daemon.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/peregrine-check/peregrine/internal/analyzer"
	"github.com/peregrine-check/peregrine/internal/task"
)

// Process exit codes for a persistent session. Exiting without a prior
// shutdown request is a protocol error per LSP, hence ExitFailure.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Options configures a persistent session.
type Options struct {
	// Version is reported to the editor in serverInfo.
	Version string
	// Binary locates the analyzer executable used to spawn a daemon.
	Binary string
	// ServerIdentifier names the daemon instance in editor-facing messages.
	ServerIdentifier string
	// Arguments is the daemon configuration written to its argument file.
	Arguments analyzer.Arguments
}

// noRetryData tells the editor plugin not to retry a failed pre-initialize
// request.
var noRetryData = json.RawMessage(`{"retry":false}`)

type initializeOutcome int

const (
	initializeRetry initializeOutcome = iota
	initializeSuccess
	initializeExit
)

// RunPersistent drives one complete client session over stream: the
// initialize handshake, the active request loop, and the shutdown/exit state
// machine. It returns the process exit code. The returned error carries
// detail when the session ends abnormally (editor channel breakdown); the
// exit code is valid either way.
func RunPersistent(ctx context.Context, stream jsonrpc2.Stream, options Options, logger *zap.Logger) (int, error) {
	client := newClientChannel(stream)
	for {
		outcome, capabilities, err := tryInitialize(ctx, stream, client, options.Version, logger)
		if err != nil {
			return ExitFailure, err
		}
		switch outcome {
		case initializeExit:
			logger.Info("received exit request before initialization")
			return ExitSuccess, nil
		case initializeSuccess:
			logger.Info("initialization successful")
			state := NewServerState()
			server := &Server{
				stream:             stream,
				client:             client,
				state:              state,
				clientCapabilities: capabilities,
				manager:            task.NewManager(newBridge(options, client, state, logger), logger),
				logger:             logger,
			}
			return server.Run(ctx)
		default:
			// Initialization failed; loop until success or exit.
		}
	}
}

// tryInitialize reads one inbound message and attempts the handshake. A
// well-formed initialize request is answered with the server capabilities;
// an exit notification short-circuits the session; everything else is
// answered with an error response (when an id is known) and retried by the
// caller.
func tryInitialize(ctx context.Context, stream jsonrpc2.Stream, client *clientChannel, version string, logger *zap.Logger) (initializeOutcome, *protocol.ClientCapabilities, error) {
	message, _, err := stream.Read(ctx)
	if err != nil {
		if isTerminalReadError(err) {
			return initializeRetry, nil, err
		}
		logger.Warn("malformed pre-initialization message", zap.Error(err))
		respErr := &jsonrpc2.Error{Code: jsonrpc2.ParseError, Message: err.Error(), Data: &noRetryData}
		if err := client.respond(ctx, jsonrpc2.ID{}, nil, respErr); err != nil {
			return initializeRetry, nil, err
		}
		return initializeRetry, nil, nil
	}

	switch message := message.(type) {
	case *jsonrpc2.Notification:
		if message.Method() == protocol.MethodExit {
			return initializeExit, nil, nil
		}
		logger.Info("ignoring notification before initialization", zap.String("method", message.Method()))
		return initializeRetry, nil, nil

	case *jsonrpc2.Call:
		if message.Method() != protocol.MethodInitialize {
			respErr := &jsonrpc2.Error{
				Code:    jsonrpc2.ServerNotInitialized,
				Message: "an initialize request is needed",
				Data:    &noRetryData,
			}
			if err := client.respond(ctx, message.ID(), nil, respErr); err != nil {
				return initializeRetry, nil, err
			}
			return initializeRetry, nil, nil
		}

		var params protocol.InitializeParams
		if raw := message.Params(); len(raw) == 0 || string(raw) == "null" {
			respErr := &jsonrpc2.Error{
				Code:    jsonrpc2.ServerNotInitialized,
				Message: "missing parameters for initialize request",
				Data:    &noRetryData,
			}
			if err := client.respond(ctx, message.ID(), nil, respErr); err != nil {
				return initializeRetry, nil, err
			}
			return initializeRetry, nil, nil
		}
		if err := json.Unmarshal(message.Params(), &params); err != nil {
			respErr := &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: err.Error(), Data: &noRetryData}
			if err := client.respond(ctx, message.ID(), nil, respErr); err != nil {
				return initializeRetry, nil, err
			}
			return initializeRetry, nil, nil
		}

		var clientName string
		if params.ClientInfo != nil {
			clientName = params.ClientInfo.Name
		}
		logger.Info("received initialization request",
			zap.String("client", clientName),
			zap.Int32("pid", params.ProcessID),
		)
		if err := client.respond(ctx, message.ID(), initializeResult(version), nil); err != nil {
			return initializeRetry, nil, err
		}
		return initializeSuccess, &params.Capabilities, nil

	default:
		// A stray response; nothing to answer.
		return initializeRetry, nil, nil
	}
}

func initializeResult(version string) *protocol.InitializeResult {
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindNone,
				Save: &protocol.SaveOptions{
					IncludeText: false,
				},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    "peregrine",
			Version: version,
		},
	}
}

// Server is an initialized persistent session.
type Server struct {
	stream jsonrpc2.Stream
	client *clientChannel

	clientCapabilities *protocol.ClientCapabilities

	state   *ServerState
	manager *task.Manager

	logger *zap.Logger
}

// Run starts the bridge task, serves the active request loop, and stops the
// bridge on every exit path.
func (s *Server) Run(ctx context.Context) (int, error) {
	s.manager.EnsureRunning(ctx)
	defer s.manager.EnsureStopped()
	return s.serve(ctx)
}

func (s *Server) serve(ctx context.Context) (int, error) {
	for {
		message, _, err := s.stream.Read(ctx)
		if err != nil {
			if isTerminalReadError(err) {
				return ExitFailure, err
			}
			s.logger.Warn("malformed message", zap.Error(err))
			respErr := &jsonrpc2.Error{Code: jsonrpc2.ParseError, Message: err.Error()}
			if err := s.client.respond(ctx, jsonrpc2.ID{}, nil, respErr); err != nil {
				return ExitFailure, err
			}
			continue
		}

		switch message := message.(type) {
		case *jsonrpc2.Notification:
			switch message.Method() {
			case protocol.MethodExit:
				s.logger.Warn("exit received without a prior shutdown request")
				return ExitFailure, nil
			case protocol.MethodTextDocumentDidOpen:
				s.handleDidOpen(ctx, message.Params())
			case protocol.MethodTextDocumentDidClose:
				s.handleDidClose(ctx, message.Params())
			default:
				s.logger.Debug("ignoring notification", zap.String("method", message.Method()))
			}

		case *jsonrpc2.Call:
			switch message.Method() {
			case protocol.MethodShutdown:
				if err := s.client.respond(ctx, message.ID(), nil, nil); err != nil {
					return ExitFailure, err
				}
				return s.waitForExit(ctx)
			default:
				respErr := jsonrpc2.NewError(protocol.CodeRequestCancelled, "request not supported")
				if err := s.client.respond(ctx, message.ID(), nil, respErr); err != nil {
					return ExitFailure, err
				}
			}
		}
	}
}

// waitForExit is the post-shutdown state: exit ends the session, every
// request is answered as invalid, and other notifications are ignored.
func (s *Server) waitForExit(ctx context.Context) (int, error) {
	for {
		message, _, err := s.stream.Read(ctx)
		if err != nil {
			if isTerminalReadError(err) {
				return ExitFailure, err
			}
			s.logger.Warn("malformed post-shutdown message", zap.Error(err))
			continue
		}

		switch message := message.(type) {
		case *jsonrpc2.Notification:
			if message.Method() == protocol.MethodExit {
				return ExitSuccess, nil
			}
			s.logger.Debug("ignoring post-shutdown notification", zap.String("method", message.Method()))
		case *jsonrpc2.Call:
			respErr := jsonrpc2.NewError(jsonrpc2.InvalidRequest, "LSP server has been shut down")
			if err := s.client.respond(ctx, message.ID(), nil, respErr); err != nil {
				return ExitFailure, err
			}
		}
	}
}

func (s *Server) handleDidOpen(ctx context.Context, raw json.RawMessage) {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		s.logger.Warn("malformed didOpen parameters", zap.Error(err))
		return
	}
	path, ok := documentPath(params.TextDocument.URI)
	if !ok {
		s.logger.Warn("document URI is not a file", zap.String("uri", string(params.TextDocument.URI)))
		return
	}

	s.state.OpenDocument(path)
	s.logger.Info("file opened", zap.String("path", path))

	diagnostics, _ := s.state.DiagnosticsFor(path)
	if err := s.client.publishDiagnostics(ctx, path, diagnostics); err != nil {
		s.logger.Error("cannot publish diagnostics", zap.String("path", path), zap.Error(err))
	}
}

func (s *Server) handleDidClose(ctx context.Context, raw json.RawMessage) {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		s.logger.Warn("malformed didClose parameters", zap.Error(err))
		return
	}
	path, ok := documentPath(params.TextDocument.URI)
	if !ok {
		s.logger.Warn("document URI is not a file", zap.String("uri", string(params.TextDocument.URI)))
		return
	}

	if !s.state.CloseDocument(path) {
		s.logger.Warn("trying to close an un-opened file", zap.String("path", path))
		return
	}
	s.logger.Info("file closed", zap.String("path", path))

	// Clear whatever markers the editor still shows for the file.
	if err := s.client.publishDiagnostics(ctx, path, nil); err != nil {
		s.logger.Error("cannot clear diagnostics", zap.String("path", path), zap.Error(err))
	}
}

// documentPath resolves a document URI to an absolute filesystem path.
func documentPath(documentURI protocol.DocumentURI) (string, bool) {
	if !strings.HasPrefix(string(documentURI), uri.FileScheme+"://") {
		return "", false
	}
	return uri.URI(documentURI).Filename(), true
}

// isTerminalReadError reports whether a stream read failure means the editor
// channel is gone, as opposed to a malformed message the loop can answer and
// survive.
func isTerminalReadError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, context.Canceled)
}
