package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Expand resolves each argument to a sorted, de-duplicated list of files.
// Directories are walked recursively; globs may use ** (e.g. logs/**/*.log).
func Expand(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(paths ...string) {
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			matches, err := expandGlob(filepath.Join(arg, "**", "*"))
			if err != nil {
				return nil, fmt.Errorf("walk %s: %w", arg, err)
			}
			add(matches...)
		case err == nil:
			add(arg)
		default:
			matches, gerr := expandGlob(arg)
			if gerr != nil {
				return nil, fmt.Errorf("glob %s: %w", arg, gerr)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("%s: no such file or matching path", arg)
			}
			add(matches...)
		}
	}

	sort.Strings(files)
	return files, nil
}

func expandGlob(pattern string) ([]string, error) {
	return doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
}

// Result summarises one send.
type Result struct {
	Files   int
	Bytes   int64
	Elapsed time.Duration
}

// Sender streams files to a logferry server over a single TCP connection.
type Sender struct {
	Addr        string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Send writes every file in order, then half-closes the connection so the
// server sees end of stream. A newline is inserted between files that do not
// end with one, so lines never join across files.
func (s *Sender) Send(ctx context.Context, files []string) (Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := s.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	start := time.Now()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return Result{}, fmt.Errorf("dial %s: %w", s.Addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w := &tailWriter{w: conn}
	var res Result
	for _, path := range files {
		n, err := w.sendFile(path)
		res.Bytes += n
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("send %s: %w", path, err)
		}
		res.Files++
		logger.Debug("file sent", "path", path, "bytes", n)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return res, err
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// tailWriter remembers the last byte written.
type tailWriter struct {
	w    io.Writer
	last byte
}

func (t *tailWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.last = p[n-1]
	}
	return n, err
}

func (t *tailWriter) sendFile(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(t, f)
	if err != nil {
		return n, err
	}
	if n > 0 && t.last != '\n' {
		m, err := t.Write([]byte{'\n'})
		return n + int64(m), err
	}
	return n, nil
}
