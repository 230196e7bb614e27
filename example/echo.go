package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/Zereker/hub"
)

// echoHandler answers "Echo" with its argument and streams "Count" up to its argument.
func echoHandler(conn *hub.Conn, msg hub.Message) error {
	if completion := hub.BindingFailureCompletion(msg); completion != nil {
		return conn.Write(completion)
	}

	switch m := msg.(type) {
	case *hub.InvocationMessage:
		if !m.Arguments.Bound() || m.InvocationID == "" {
			return nil
		}
		return conn.Write(hub.NewResultCompletion(m.InvocationID, m.Arguments.Values()[0]))
	case *hub.StreamInvocationMessage:
		if !m.Arguments.Bound() {
			return nil
		}
		n := m.Arguments.Values()[0].(int)
		for i := 0; i < n; i++ {
			item := &hub.StreamItemMessage{InvocationID: m.InvocationID, Item: i}
			if err := conn.WriteTimeout(item, time.Second); err != nil {
				return err
			}
		}
		return conn.WriteTimeout(hub.NewVoidCompletion(m.InvocationID), time.Second)
	case *hub.CancelInvocationMessage:
		slog.Info("invocation canceled", "invocation_id", m.InvocationID)
	}
	return nil
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	binder := hub.NewTypeRegistry()
	binder.RegisterTarget("Echo", reflect.TypeOf(""))
	binder.RegisterTarget("Count", reflect.TypeOf(0))

	server, err := hub.New(addr, hub.ServerConnOptions(
		hub.BinderOption(binder),
		hub.OnMessageOption(echoHandler),
		hub.OnErrorOption(func(err error) hub.ErrorAction {
			slog.Error("connection error", "error", err)
			return hub.Disconnect
		}),
	))
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	slog.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx); err != nil && err != context.Canceled {
		slog.Error("server error", "error", err)
	}
}
