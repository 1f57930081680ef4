/*
Package main is a terminal client for the relay chat server.

It joins the room under the name given by -name (a random one by default), prints room
activity with colors, and sends each typed line. "/mp <name> <text>" sends a private
message, "/leave" returns to the name prompt, and "/quit" or end of input exits.
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gookit/color"
	"github.com/rs/zerolog"

	"relaychat/internal/app/client"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

const (
	leaveCommand = "/leave"
	quitCommand  = "/quit"
)

// terminal renders chat lines on stdout.
type terminal struct {
	info    color.Style
	self    color.Style
	private color.Style
}

func newTerminal() *terminal {
	return &terminal{
		info:    color.New(color.FgGray),
		self:    color.New(color.FgGreen),
		private: color.New(color.FgMagenta, color.OpBold),
	}
}

func (t *terminal) Render(line string) {
	switch {
	case strings.HasPrefix(line, "You -> "), strings.Contains(line, " -> You: "):
		fmt.Println(t.private.Render(line))
	case strings.HasPrefix(line, "You"):
		fmt.Println(t.self.Render(line))
	case strings.HasSuffix(line, " the chat."):
		fmt.Println(t.info.Render(line))
	default:
		fmt.Println(line)
	}
}

func (t *terminal) notice(err error) {
	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		color.Warn.Println(customErr.Message)
		return
	}
	color.Error.Println(err.Error())
}

func main() {
	addr := flag.String("addr", "localhost:5000", "relay server address")
	name := flag.String("name", "", "display name (random when empty)")
	verbose := flag.Bool("v", false, "log protocol traffic to stderr")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logx.SetOutput(os.Stderr, level)

	if err := run(*addr, *name); err != nil {
		color.Error.Println(err.Error())
		os.Exit(1)
	}
}

func run(addr, name string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := newTerminal()
	c, err := client.Dial(ctx, addr, term)
	if err != nil {
		return err
	}
	defer c.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		if err := join(ctx, c, name, lines, term); err != nil {
			return err
		}
		name = ""

		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()

		left, err := chat(ctx, c, lines, done, term)
		if err != nil || !left {
			return err
		}
	}
}

// join prompts for names until one is accepted. An empty name picks a random nickname.
func join(ctx context.Context, c *client.Client, name string, lines <-chan string, term *terminal) error {
	for {
		if name == "" {
			fmt.Print("Display name (empty for random): ")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok := <-lines:
				if !ok {
					return io.EOF
				}
				name = strings.TrimSpace(line)
			}
		}

		if name == "" {
			generated, err := randx.Nickname()
			if err != nil {
				return err
			}
			name = generated
		}

		err := c.Join(name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.NewError(errs.ErrNameTaken)) {
			return err
		}

		term.notice(err)
		name = ""
	}
}

// chat forwards typed lines until the user leaves (true) or quits (false).
func chat(ctx context.Context, c *client.Client, lines <-chan string, done <-chan error, term *terminal) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, nil

		case err := <-done:
			if err != nil {
				return false, fmt.Errorf("connection lost: %w", err)
			}
			return true, nil

		case line, ok := <-lines:
			switch {
			case !ok, line == quitCommand:
				return false, nil

			case line == leaveCommand:
				if err := c.Leave(); err != nil {
					term.notice(err)
				}

			default:
				if err := c.Submit(line); err != nil {
					term.notice(err)
				}
			}
		}
	}
}
