package chat

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/momentics/wsrelay/server"
)

// QuitCommand ends a console session and closes the connections.
const QuitCommand = "/quit"

// Poster accepts commands for a running runtime; *server.Runtime
// implements it.
type Poster interface {
	Post(cmd server.Command) error
	Shutdown() error
}

// Console turns lines typed by an operator into broadcasts.
type Console struct {
	// Encode builds the payload for a line; the raw line when nil.
	Encode func(line string) []byte
	// QuitOnEOF shuts the runtime down when input ends.
	QuitOnEOF bool
	// Prompt, when non-nil, is called before each line is read.
	Prompt func()
}

// Run reads lines from in until QuitCommand, EOF or a stopped runtime.
// Empty lines are skipped.
func (c Console) Run(in io.Reader, rt Poster) error {
	sc := bufio.NewScanner(in)
	for {
		if c.Prompt != nil {
			c.Prompt()
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if line == QuitCommand {
			return ignoreStopped(rt.Shutdown())
		}
		if line == "" {
			continue
		}
		payload := []byte(line)
		if c.Encode != nil {
			payload = c.Encode(line)
		}
		if err := rt.Post(server.Command{Kind: server.CmdBroadcast, Payload: payload}); err != nil {
			return ignoreStopped(err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if c.QuitOnEOF {
		return ignoreStopped(rt.Shutdown())
	}
	return nil
}

func ignoreStopped(err error) error {
	if errors.Is(err, server.ErrStopped) {
		return nil
	}
	return err
}
