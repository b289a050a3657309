package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/perchbot/perch/internal/bus"
)

// CLIChannel is the local transport: it reads lines from stdin and
// prints replies to stdout. Used by the gateway for a local operator
// console.
type CLIChannel struct {
	*BaseChannel
	in  io.Reader
	out io.Writer
}

func NewCLIChannel(msgBus *bus.MessageBus) *CLIChannel {
	return &CLIChannel{
		BaseChannel: NewBaseChannel(bus.ChannelCLI, msgBus, nil),
		in:          os.Stdin,
		out:         os.Stdout,
	}
}

// Start launches the stdin reader goroutine.
func (c *CLIChannel) Start(ctx context.Context) error {
	c.SetRunning(true)

	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			c.HandleMessage("user", "direct", line, nil, nil)
		}
	}()

	return nil
}

func (c *CLIChannel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return nil
}

// Send prints the reply to stdout.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	_, err := fmt.Fprintf(c.out, "\n%s\n> ", msg.Content)
	return err
}
