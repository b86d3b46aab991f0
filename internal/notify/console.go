package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleSender writes alerts to a terminal.
type ConsoleSender struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsoleSender writes to stdout.
func NewConsoleSender() *ConsoleSender {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter writes to w.
func NewConsoleWriter(w io.Writer) *ConsoleSender {
	return &ConsoleSender{out: w, now: time.Now}
}

// Send prints "[hh:mm:ss] title" followed by the message.
func (c *ConsoleSender) Send(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[%s] %s\n%s\n", c.now().Format("15:04:05"), title, message)
	return err
}

// Name returns "console".
func (c *ConsoleSender) Name() string {
	return "console"
}
