package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/peregrine-check/peregrine/internal/analyzer"
)

// bridge is the supervised background task connecting the session to the
// analyzer daemon. It subscribes to the daemon's incremental type-error
// stream and republishes diagnostics for the documents the editor has open.
type bridge struct {
	binary           string
	serverIdentifier string
	arguments        analyzer.Arguments

	client *clientChannel
	state  *ServerState
	logger *zap.Logger
}

func newBridge(options Options, client *clientChannel, state *ServerState, logger *zap.Logger) *bridge {
	return &bridge{
		binary:           options.Binary,
		serverIdentifier: options.ServerIdentifier,
		arguments:        options.Arguments,
		client:           client,
		state:            state,
		logger:           logger,
	}
}

// Run implements task.Task. It connects to an existing daemon when one is
// listening, otherwise spawns a new one and waits for readiness before
// connecting. A spawn failure is reported to the editor and ends the task
// without retrying; the editor session itself continues.
func (b *bridge) Run(ctx context.Context) error {
	socketPath := analyzer.SocketPath(b.arguments.LogPath)

	conn, err := net.Dial("unix", socketPath)
	if err == nil {
		defer conn.Close()
		b.logAndShowMessage(ctx, protocol.MessageTypeInfo,
			fmt.Sprintf("Established connection with existing analyzer server at `%s`.", b.serverIdentifier))
		return b.subscribe(ctx, conn)
	}

	b.logAndShowMessage(ctx, protocol.MessageTypeInfo,
		fmt.Sprintf("Starting a new analyzer server at `%s` in the background...", b.serverIdentifier))

	if err := analyzer.StartServer(b.binary, b.arguments); err != nil {
		b.logger.Error("analyzer server start failed", zap.Error(err))
		b.showMessage(ctx, protocol.MessageTypeError,
			fmt.Sprintf("Cannot start a new analyzer server at `%s`.", b.serverIdentifier))
		return nil
	}

	b.logAndShowMessage(ctx, protocol.MessageTypeInfo,
		fmt.Sprintf("Analyzer server at `%s` has been initialized.", b.serverIdentifier))

	// The daemon reported readiness, so this connect only fails on a race
	// with an external teardown.
	conn, err = net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to analyzer server after start: %w", err)
	}
	defer conn.Close()
	return b.subscribe(ctx, conn)
}

// subscribe issues the subscription command and pumps updates until the
// socket closes or the task is cancelled.
func (b *bridge) subscribe(ctx context.Context, conn net.Conn) error {
	// Reads on the socket have no deadline; closing the connection is how
	// cancellation unblocks them.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	subscriptionName := fmt.Sprintf("persistent_%d", os.Getpid())
	command, err := analyzer.SubscribeCommand(subscriptionName)
	if err != nil {
		return err
	}
	if _, err := conn.Write(command); err != nil {
		return fmt.Errorf("cannot subscribe to type errors: %w", err)
	}

	reader := bufio.NewReader(conn)

	// The first line is the full error snapshot.
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return b.readError(ctx, err)
	}
	if typeErrors, err := analyzer.ParseTypeErrors(line); err != nil {
		b.logger.Error("analyzer server returned invalid response", zap.Error(err))
	} else {
		b.updateTypeErrors(ctx, typeErrors)
	}

	// Every further line is a subscription update. Updates for other
	// subscriptions (racing or stale) are ignored by name.
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return b.readError(ctx, err)
		}
		response, err := analyzer.ParseSubscriptionResponse(line)
		if err != nil {
			b.logger.Error("analyzer server returned invalid response", zap.Error(err))
			continue
		}
		if response.Name != subscriptionName {
			continue
		}
		b.updateTypeErrors(ctx, response.Body)
	}
}

// readError maps a socket read failure: cancellation and EOF end the task
// cleanly, anything else is a task error.
func (b *bridge) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		b.logger.Info("analyzer server closed the subscription")
		return nil
	}
	return fmt.Errorf("reading from analyzer server: %w", err)
}

func (b *bridge) updateTypeErrors(ctx context.Context, typeErrors []analyzer.Error) {
	b.logger.Info("refreshing type errors received from analyzer server",
		zap.Int("count", len(typeErrors)))
	b.state.SetDiagnostics(groupDiagnostics(typeErrors))
	b.publishToOpenedDocuments(ctx)
}

// publishToOpenedDocuments clears and then republishes diagnostics for every
// opened document. Unopened paths are never published.
func (b *bridge) publishToOpenedDocuments(ctx context.Context) {
	for _, path := range b.state.OpenedDocuments() {
		if err := b.client.publishDiagnostics(ctx, path, nil); err != nil {
			b.logger.Error("cannot clear diagnostics", zap.String("path", path), zap.Error(err))
			continue
		}
		if diagnostics, ok := b.state.DiagnosticsFor(path); ok {
			if err := b.client.publishDiagnostics(ctx, path, diagnostics); err != nil {
				b.logger.Error("cannot publish diagnostics", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

func (b *bridge) showMessage(ctx context.Context, level protocol.MessageType, message string) {
	if err := b.client.showMessage(ctx, level, message); err != nil {
		b.logger.Error("cannot notify client", zap.Error(err))
	}
}

func (b *bridge) logAndShowMessage(ctx context.Context, level protocol.MessageType, message string) {
	switch level {
	case protocol.MessageTypeError:
		b.logger.Error(message)
	case protocol.MessageTypeWarning:
		b.logger.Warn(message)
	case protocol.MessageTypeInfo:
		b.logger.Info(message)
	default:
		b.logger.Debug(message)
	}
	b.showMessage(ctx, level, message)
}
