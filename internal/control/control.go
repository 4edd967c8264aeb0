// Package control serves the paired controller. Four endpoints (list size,
// bulk transfer, settings, commands) are carried by one or more transports;
// the same service drives all of them.
package control

import (
	"context"
	"errors"
	"fmt"
)

// Endpoint identifies one logical channel of the control service.
type Endpoint uint8

const (
	ListSize Endpoint = iota // "networks:stations:ble:alarm", notify + read
	Bulk                     // export protocol, write + notify
	Settings                 // pipe-delimited settings, read + write
	Commands                 // restart, clear_data, save_data
)

// Endpoints lists every endpoint.
var Endpoints = []Endpoint{ListSize, Bulk, Settings, Commands}

func (e Endpoint) String() string {
	switch e {
	case ListSize:
		return "listsize"
	case Bulk:
		return "bulk"
	case Settings:
		return "settings"
	case Commands:
		return "commands"
	}
	return fmt.Sprintf("endpoint(%d)", uint8(e))
}

// Command is a controller command.
type Command string

const (
	CmdRestart   Command = "restart"
	CmdClearData Command = "clear_data"
	CmdSaveData  Command = "save_data"
)

// ErrUnknownCommand is returned by ParseCommand.
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand validates a command string.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CmdRestart, CmdClearData, CmdSaveData:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Handler receives what the controller sends. Implementations must not block.
type Handler interface {
	HandleWrite(ep Endpoint, payload []byte)
	HandleDisconnect()
}

// Transport carries the endpoints to the controller.
type Transport interface {
	Name() string
	// Start registers h and begins serving. It returns once the transport
	// is ready or has failed.
	Start(ctx context.Context, h Handler) error
	// Notify pushes payload to the controller on ep.
	Notify(ep Endpoint, payload []byte) error
	// SetValue updates the value the controller reads from ep.
	SetValue(ep Endpoint, payload []byte) error
	Close() error
}
