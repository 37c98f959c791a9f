package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/redcon"
)

var address = flag.String("address", "0.0.0.0:6380", "The ip:port to listen on for the RESP protocol.")

// respCommand represents a parsed wire command with its arguments.
type respCommand struct {
	command string
	args    [][]byte // Only the args sent over, without the command itself.
}

// respOutput conforms to a RESP reply on every supported command.
type respOutput struct {
	closeConnection bool    // Closes the connection if true.
	err             *string // Error to return if set.
	writeInt        *int64  // Writes an integer value if set.
	writeString     string  // Writes a simple string otherwise.
}

func writeRespInt(i int64) respOutput {
	return respOutput{writeInt: &i}
}

func writeRespString(str string) respOutput {
	return respOutput{writeString: str}
}

func writeRespError(err error) respOutput {
	msg := "ERR " + err.Error()
	return respOutput{err: &msg}
}

func closeRespConnection(msg string) respOutput {
	return respOutput{writeString: msg, closeConnection: true}
}

// Handler dispatches wire commands onto a Backend.
type Handler struct {
	backend *Backend
}

// NewHandler creates a command handler over the given backend.
func NewHandler(backend *Backend) (*Handler, error) {
	if backend == nil {
		return nil, errors.New("expected a non-nil backend")
	}
	return &Handler{backend: backend}, nil
}

// handle executes one command. The supported surface is deliberately small:
//
//	START seconds [message...]  -> integer timer id
//	STOP id                     -> 1 if the timer was still pending, 0 otherwise
//	PENDING                     -> number of timers waiting to fire
//	FIRED                       -> number of timers fired so far
//	PING / QUIT
func (h *Handler) handle(cmd respCommand) respOutput {
	switch cmd.command {
	case "PING":
		return writeRespString("PONG")

	case "QUIT":
		return closeRespConnection("OK")

	case "START":
		if len(cmd.args) == 0 {
			return writeRespError(errors.New("START requires a delay in seconds"))
		}
		seconds, err := strconv.ParseUint(string(cmd.args[0]), 10, 64)
		if err != nil || seconds == 0 {
			return writeRespError(fmt.Errorf("invalid delay %q: expected a positive number of seconds", cmd.args[0]))
		}
		var parts []string
		for _, arg := range cmd.args[1:] {
			parts = append(parts, string(arg))
		}
		id, err := h.backend.StartTimer(seconds, strings.Join(parts, " "))
		if err != nil {
			return writeRespError(err)
		}
		return writeRespInt(int64(id))

	case "STOP":
		if len(cmd.args) != 1 {
			return writeRespError(errors.New("STOP requires exactly one timer id"))
		}
		id, err := strconv.ParseUint(string(cmd.args[0]), 10, 64)
		if err != nil {
			return writeRespError(fmt.Errorf("invalid timer id %q", cmd.args[0]))
		}
		if h.backend.StopTimer(id) {
			return writeRespInt(1)
		}
		return writeRespInt(0)

	case "PENDING":
		return writeRespInt(int64(h.backend.Pending()))

	case "FIRED":
		return writeRespInt(int64(h.backend.Fired()))

	default:
		return writeRespError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// RunServer starts a RESP server that schedules timers on the provided backend. It blocks until
// the context is cancelled or the server fails.
func RunServer(ctx context.Context, backend *Backend) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	handler, err := NewHandler(backend)
	if err != nil {
		return fmt.Errorf("failed to create a command handler: %w", err)
	}

	server := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			slog.Debug("Handling command.", "cmd", string(cmd.Raw))

			output := handler.handle(respCommand{
				command: strings.ToUpper(string(cmd.Args[0])), // Allows case-insensitive commands.
				args:    cmd.Args[1:],                         // Exclude the command itself.
			})
			if output.closeConnection {
				conn.WriteString(output.writeString)
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "error", err)
				}
				return
			}
			if output.err != nil {
				conn.WriteError(*output.err)
				return
			}
			if output.writeInt != nil {
				conn.WriteInt64(*output.writeInt)
				return
			}
			conn.WriteString(output.writeString)
		},
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Info("Accepting connection.", "addr", conn.NetConn().RemoteAddr().String())
			return true // Accept all connections.
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Debug("Connection closed.", "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		slog.Info("Starting the timer server.", "address", *address)
		if err := server.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server context cancelled.", "err", ctx.Err())
		if err := server.Close(); err != nil {
			return fmt.Errorf("failed to close the server: %w", err)
		}
	case err := <-serverErrSignal:
		return fmt.Errorf("timer server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
