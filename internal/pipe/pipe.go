// Package pipe is the daemon side of the named-pipe transport. A single
// command FIFO carries line-framed JSON requests from any number of clients;
// one response FIFO carries the answers and, for subscribed clients, pushed
// events. Clients match responses to requests by ID.
package pipe

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/dgnsrekt/atk/internal/protocol"
)

// Pipe file names inside the runtime directory.
const (
	CmdPipeName  = "atk.cmd"
	RespPipeName = "atk.resp"
)

// Handler turns one request into one response. It must not block on audio.
type Handler func(protocol.Request) protocol.Response

// Server owns the FIFO pair and the read/write loops.
type Server struct {
	cmdPath  string
	respPath string
	handler  Handler
	log      *log.Logger

	outgoing    chan []byte
	done        chan struct{}
	wg          sync.WaitGroup
	subscribers atomic.Int32
}

// NewServer creates a server for the pipe pair under runtimeDir.
func NewServer(runtimeDir string, handler Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cmdPath:  filepath.Join(runtimeDir, CmdPipeName),
		respPath: filepath.Join(runtimeDir, RespPipeName),
		handler:  handler,
		log:      logger,
		outgoing: make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// CmdPath returns the command pipe location.
func (s *Server) CmdPath() string { return s.cmdPath }

// RespPath returns the response pipe location.
func (s *Server) RespPath() string { return s.respPath }

// Start creates the FIFOs, replacing stale ones, and launches the loops.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cmdPath), 0o700); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}
	for _, path := range []string{s.cmdPath, s.respPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale pipe: %w", err)
		}
		if err := unix.Mkfifo(path, 0o600); err != nil {
			return fmt.Errorf("mkfifo %s: %w", path, err)
		}
	}

	// O_RDWR keeps the FIFO open without blocking on the peer, so the writer
	// survives readers coming and going.
	respFile, err := os.OpenFile(s.respPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open response pipe: %w", err)
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop(respFile)
	return nil
}

// Stop shuts the loops down and removes the pipes.
func (s *Server) Stop() {
	close(s.done)

	// Unblock a reader stuck in open() by connecting to the command pipe.
	if f, err := os.OpenFile(s.cmdPath, os.O_WRONLY|unix.O_NONBLOCK, 0); err == nil {
		f.Close()
	}
	s.wg.Wait()

	os.Remove(s.cmdPath)
	os.Remove(s.respPath)
}

// AddSubscriber marks one more client as listening for events.
func (s *Server) AddSubscriber() { s.subscribers.Add(1) }

// RemoveSubscriber drops one listener. The count never goes below zero, so a
// stray unsubscribe cannot mute events for remaining clients.
func (s *Server) RemoveSubscriber() {
	for {
		n := s.subscribers.Load()
		if n <= 0 {
			return
		}
		if s.subscribers.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// HasSubscribers reports whether any client asked for events.
func (s *Server) HasSubscribers() bool { return s.subscribers.Load() > 0 }

// Publish pushes an event line to the response pipe when anyone listens.
// Best effort: if the transport is backed up the event is dropped.
func (s *Server) Publish(ev protocol.Event) {
	if !s.HasSubscribers() {
		return
	}
	line, err := protocol.Encode(ev)
	if err != nil {
		s.log.Error("encode event", "err", err)
		return
	}
	select {
	case s.outgoing <- line:
	default:
		s.log.Warn("event dropped, response pipe backed up", "event", ev.Event)
	}
}

// readLoop opens the command pipe, drains it line by line, and reopens it
// when the last writer disconnects.
func (s *Server) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// Blocks until a writer connects.
		f, err := os.OpenFile(s.cmdPath, os.O_RDONLY, 0)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.Error("open command pipe", "err", err)
				return
			}
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			s.handleLine(append([]byte(nil), line...))
		}
		f.Close()
	}
}

func (s *Server) handleLine(line []byte) {
	msg, err := protocol.Parse(line)
	if err != nil {
		s.respond(protocol.Failure("unknown", protocol.CodeInvalidMessage, "protocol", err.Error()))
		return
	}
	if msg.Request == nil {
		// Responses and events have no business on the command pipe.
		return
	}
	s.respond(s.handler(*msg.Request))
}

func (s *Server) respond(resp protocol.Response) {
	line, err := protocol.Encode(resp)
	if err != nil {
		s.log.Error("encode response", "err", err)
		return
	}
	select {
	case s.outgoing <- line:
	case <-s.done:
	}
}

// writeLoop serializes all writes to the response pipe.
func (s *Server) writeLoop(f *os.File) {
	defer s.wg.Done()
	defer f.Close()

	for {
		select {
		case line := <-s.outgoing:
			if _, err := f.Write(append(line, '\n')); err != nil {
				s.log.Error("write response pipe", "err", err)
			}
		case <-s.done:
			return
		}
	}
}
