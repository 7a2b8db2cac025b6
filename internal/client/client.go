// Package client talks to the daemon over its named pipes: it writes one
// request line to the command pipe and scans the shared response pipe for the
// line whose ID matches. Events for subscribed clients arrive on the same
// pipe and are surfaced through Subscribe.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dgnsrekt/atk/internal/pipe"
	"github.com/dgnsrekt/atk/internal/protocol"
)

// ErrDaemonNotRunning means the command pipe has no reader.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ErrTimeout means no matching response arrived in time.
var ErrTimeout = errors.New("timed out waiting for daemon")

// DefaultTimeout bounds a single request round trip.
const DefaultTimeout = 5 * time.Second

// Client issues requests against one daemon instance.
type Client struct {
	cmdPath  string
	respPath string
	Timeout  time.Duration
}

// New creates a client for the daemon using runtimeDir.
func New(runtimeDir string) *Client {
	return &Client{
		cmdPath:  filepath.Join(runtimeDir, pipe.CmdPipeName),
		respPath: filepath.Join(runtimeDir, pipe.RespPipeName),
		Timeout:  DefaultTimeout,
	}
}

// Do sends the request and waits for its response.
func (c *Client) Do(req protocol.Request) (protocol.Response, error) {
	// Open the response pipe first so the answer cannot slip past us.
	resp, err := os.OpenFile(c.respPath, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %s", ErrDaemonNotRunning, c.respPath)
	}
	defer resp.Close()
	// Back to blocking reads now that open() cannot hang.
	if err := unix.SetNonblock(int(resp.Fd()), false); err != nil {
		return protocol.Response{}, fmt.Errorf("configure response pipe: %w", err)
	}

	if err := c.send(req); err != nil {
		return protocol.Response{}, err
	}
	return c.await(resp, req.ID)
}

// Command is a convenience wrapper building the request from cmd and args.
func (c *Client) Command(cmd string, args map[string]interface{}) (protocol.Response, error) {
	return c.Do(protocol.NewRequest(cmd, args))
}

// send writes one request line to the command pipe. A missing reader maps to
// ErrDaemonNotRunning.
func (c *Client) send(req protocol.Request) error {
	line, err := protocol.Encode(req)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(c.cmdPath, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) || os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrDaemonNotRunning, c.cmdPath)
		}
		return fmt.Errorf("open command pipe: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write command pipe: %w", err)
	}
	return nil
}

// await scans the response pipe until the matching ID shows up. Responses for
// other clients are skipped; events are ignored here.
func (c *Client) await(resp *os.File, id string) (protocol.Response, error) {
	type result struct {
		resp protocol.Response
		err  error
	}
	found := make(chan result, 1)

	go func() {
		scanner := bufio.NewScanner(resp)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			msg, err := protocol.Parse(scanner.Bytes())
			if err != nil {
				continue
			}
			if msg.Response != nil && msg.Response.ID == id {
				found <- result{resp: *msg.Response}
				return
			}
		}
		found <- result{err: fmt.Errorf("response pipe closed: %w", ErrDaemonNotRunning)}
	}()

	select {
	case r := <-found:
		return r.resp, r.err
	case <-time.After(c.Timeout):
		// Closing the file ends the scanner goroutine.
		resp.Close()
		return protocol.Response{}, ErrTimeout
	}
}

// Subscribe registers for events and invokes fn for each one until ctx ends.
// Responses passing by on the shared pipe are ignored.
func (c *Client) Subscribe(ctx context.Context, fn func(protocol.Event)) error {
	resp, err := os.OpenFile(c.respPath, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDaemonNotRunning, c.respPath)
	}
	defer resp.Close()
	if err := unix.SetNonblock(int(resp.Fd()), false); err != nil {
		return fmt.Errorf("configure response pipe: %w", err)
	}

	req := protocol.NewRequest("subscribe", nil)
	if err := c.send(req); err != nil {
		return err
	}
	// Tell the daemon we are gone so it stops publishing to nobody. Best
	// effort: the daemon may already be down by then.
	defer func() { _ = c.send(protocol.NewRequest("unsubscribe", nil)) }()

	stop := context.AfterFunc(ctx, func() { resp.Close() })
	defer stop()

	scanner := bufio.NewScanner(resp)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		msg, err := protocol.Parse(scanner.Bytes())
		if err != nil {
			continue
		}
		if msg.Event != nil {
			fn(*msg.Event)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("response pipe closed: %w", ErrDaemonNotRunning)
}
