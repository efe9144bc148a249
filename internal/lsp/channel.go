package lsp

import (
	"context"
	"os"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// stdrwc adapts the process stdin/stdout to io.ReadWriteCloser for jsonrpc2.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// Stdio returns a Content-Length framed JSON-RPC stream over the process's
// stdin/stdout.
func Stdio() jsonrpc2.Stream {
	return jsonrpc2.NewStream(stdrwc{})
}

// clientChannel serializes editor-bound writes. The server loop and the
// bridge task both write to it concurrently.
type clientChannel struct {
	mu     sync.Mutex
	stream jsonrpc2.Stream
}

func newClientChannel(stream jsonrpc2.Stream) *clientChannel {
	return &clientChannel{stream: stream}
}

func (c *clientChannel) write(ctx context.Context, message jsonrpc2.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.stream.Write(ctx, message)
	return err
}

func (c *clientChannel) respond(ctx context.Context, id jsonrpc2.ID, result interface{}, respErr error) error {
	response, err := jsonrpc2.NewResponse(id, result, respErr)
	if err != nil {
		return err
	}
	return c.write(ctx, response)
}

func (c *clientChannel) notify(ctx context.Context, method string, params interface{}) error {
	notification, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.write(ctx, notification)
}

// publishDiagnostics replaces the editor's full diagnostic list for path.
// A nil list clears the editor's markers for the file.
func (c *clientChannel) publishDiagnostics(ctx context.Context, path string, diagnostics []protocol.Diagnostic) error {
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	return c.notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri.File(path),
		Diagnostics: diagnostics,
	})
}

func (c *clientChannel) showMessage(ctx context.Context, level protocol.MessageType, message string) error {
	return c.notify(ctx, protocol.MethodWindowShowMessage, &protocol.ShowMessageParams{
		Type:    level,
		Message: message,
	})
}
