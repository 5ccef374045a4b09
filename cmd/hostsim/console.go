package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"addonhost/internal/commands"
	"addonhost/internal/host/simhost"
)

// stdoutChat prints command output the way the host's chat window would.
type stdoutChat struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *stdoutChat) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.w
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// readCommands feeds stdin lines to the command registry on the host loop.
func readCommands(ctx context.Context, r io.Reader, h *simhost.Host, cmds *commands.Registry, chat commands.Chat, log zerolog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			line = "/" + line
		}
		err := h.Do(ctx, func(*simhost.Host) {
			if !cmds.Dispatch(line) {
				chat.Printf("Unknown command: %s (try %s)", line, strings.Join(cmds.Names(), " "))
			}
		})
		if err != nil {
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("stdin")
	}
}
