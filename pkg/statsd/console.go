package statsd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/atlassian/netstatsd"
)

const consolePrompt = "console> "

var errClientQuit = errors.New("client quit")

// ConsoleServer is an object that listens for telnet connection on a TCP address Addr
// and provides a console interface to a Management.
type ConsoleServer struct {
	Addr        string
	Management  *Management
	Timeout     time.Duration // Bounds writing the response to a single command
	IdleTimeout time.Duration // Bounds waiting for the next command, 0 waits forever
}

// Run listens on Addr and serves consoles until the context is done.
func (s *ConsoleServer) Run(ctx context.Context) {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		logrus.WithError(err).WithField("addr", s.Addr).Error("Unable to start management console")
		return
	}
	if err := s.Serve(ctx, l); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("Management console stopped")
	}
}

// Serve accepts incoming connections on the listener and serves them a console interface
// until the context is done. The listener is closed on return.
func (s *ConsoleServer) Serve(ctx context.Context, l net.Listener) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	conns := map[net.Conn]struct{}{}

	go func() {
		<-ctx.Done()
		l.Close()
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
	}()
	defer wg.Wait()

	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		mu.Lock()
		conns[c] = struct{}{}
		mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, c)
				mu.Unlock()
			}()
			console := consoleConn{conn: c, server: s}
			console.serve()
		}()
	}
}

// consoleConn represents a single ConsoleServer connection.
type consoleConn struct {
	conn   net.Conn
	server *ConsoleServer
}

type consoleCmd func(args []string) (string, error)

func (c *consoleConn) commands() map[string]consoleCmd {
	m := c.server.Management
	return map[string]consoleCmd{
		"help": func(args []string) (string, error) {
			return "Commands: stats, counters, timers, gauges, sets, delete, delcounters, deltimers, delgauges, delsets, quit\n\n", nil
		},
		"stats": func(args []string) (string, error) {
			return formatStats(m.Stats()), nil
		},
		"counters": func(args []string) (string, error) {
			return dump(m.Counters())
		},
		"timers": func(args []string) (string, error) {
			return dump(m.Timers())
		},
		"gauges": func(args []string) (string, error) {
			return dump(m.Gauges())
		},
		"sets": func(args []string) (string, error) {
			return dump(m.Sets())
		},
		"delete": func(args []string) (string, error) {
			return c.delete(args)
		},
		"delcounters": func(args []string) (string, error) {
			return c.delete(args, netstatsd.COUNTER)
		},
		"deltimers": func(args []string) (string, error) {
			return c.delete(args, netstatsd.TIMER)
		},
		"delgauges": func(args []string) (string, error) {
			return c.delete(args, netstatsd.GAUGE)
		},
		"delsets": func(args []string) (string, error) {
			return c.delete(args, netstatsd.SET)
		},
		"quit": func(args []string) (string, error) {
			return "goodbye\n", errClientQuit
		},
	}
}

// serve reads from the consoleConn and responds to incoming requests.
func (c *consoleConn) serve() {
	defer c.conn.Close()
	commands := c.commands()
	scanner := bufio.NewScanner(c.conn)

	if !c.write(consolePrompt) {
		return
	}
	for c.awaitCommand() && scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			if !c.write(consolePrompt) {
				return
			}
			continue
		}
		command, ok := commands[fields[0]]
		if !ok {
			if !c.write("ERROR: unknown command " + fields[0] + "\n" + consolePrompt) {
				return
			}
			continue
		}
		out, err := command(fields[1:])
		if errors.Is(err, errClientQuit) {
			c.write(out)
			return
		}
		if err != nil {
			out = "ERROR: " + err.Error() + "\n"
		}
		if !c.write(out + consolePrompt) {
			return
		}
	}
}

// awaitCommand sets the deadline for reading the next command line.
func (c *consoleConn) awaitCommand() bool {
	if c.server.IdleTimeout <= 0 {
		return true
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.server.IdleTimeout)) == nil
}

func (c *consoleConn) write(s string) bool {
	if c.server.Timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.Timeout)); err != nil {
			return false
		}
	}
	_, err := c.conn.Write([]byte(s))
	return err == nil
}

func (c *consoleConn) delete(keys []string, types ...netstatsd.MetricType) (string, error) {
	if len(keys) == 0 {
		return "", errors.New("no keys given")
	}
	var sb strings.Builder
	for _, key := range keys {
		deleted := c.server.Management.Delete(key, types...)
		if len(deleted) == 0 {
			fmt.Fprintf(&sb, "metric %s not found\n", key)
			continue
		}
		names := make([]string, 0, len(deleted))
		for _, t := range deleted {
			names = append(names, t.String())
		}
		fmt.Fprintf(&sb, "deleted: %s (%s)\n", key, strings.Join(names, ", "))
	}
	sb.WriteString("END\n\n")
	return sb.String(), nil
}

func dump(v interface{}) (string, error) {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\nEND\n\n", nil
}

func formatStats(r StatsReport) string {
	lines := map[string]string{
		"uptime":                  fmt.Sprintf("%d", int64(r.Uptime/time.Second)),
		"messages.last_msg_seen":  formatSince(r.LastMessageSeen, r.Uptime),
		"messages.bad_lines_seen": fmt.Sprintf("%d", r.BadLinesSeen),
		"messages.packets":        fmt.Sprintf("%d", r.PacketsReceived),
		"samples.recorded":        fmt.Sprintf("%d", r.SamplesRecorded),
		"samples.rejected":        fmt.Sprintf("%d", r.SamplesRejected),
		"flush.count":             fmt.Sprintf("%d", r.Flushes),
		"flush.skipped":           fmt.Sprintf("%d", r.FlushesSkipped),
		"flush.last_flush":        formatUnix(r.LastFlush),
		"flush.last_exception":    formatUnix(r.LastFlushError),
	}
	for _, b := range r.Backends {
		lines[b.Name+".last_flush"] = formatUnix(b.LastFlush)
		lines[b.Name+".last_exception"] = formatUnix(b.LastFlushError)
		lines[b.Name+".failures"] = fmt.Sprintf("%d", b.Failures)
	}
	keys := make([]string, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, lines[k])
	}
	sb.WriteString("END\n\n")
	return sb.String()
}

func formatUnix(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return fmt.Sprintf("%d", t.Unix())
}

// formatSince renders the seconds since t, or since start when nothing has been seen.
func formatSince(t time.Time, uptime time.Duration) string {
	if t.IsZero() {
		return fmt.Sprintf("%d", int64(uptime/time.Second))
	}
	return fmt.Sprintf("%d", int64(time.Since(t)/time.Second))
}
