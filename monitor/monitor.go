// Package monitor rebroadcasts a file to every WebSocket client whenever it
// changes, and serves a small page showing the file to plain HTTP requests.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/protocol"
	"github.com/momentics/wsrelay/server"
)

// Poster accepts commands for the runtime; *server.Runtime implements it.
type Poster interface {
	Post(cmd server.Command) error
}

// Config tunes a Monitor.
type Config struct {
	Logger *log.Logger
	// Debounce coalesces bursts of change events into one reload.
	Debounce time.Duration
}

// Monitor owns the watched file's current content.
type Monitor struct {
	path     string
	logger   *log.Logger
	debounce time.Duration

	mu      sync.RWMutex
	content []byte
}

// New loads path once and returns a monitor for it.
func New(path string, cfg Config) (*Monitor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	m := &Monitor{path: abs, logger: cfg.Logger, debounce: cfg.Debounce}
	if _, err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the absolute path being watched.
func (m *Monitor) Path() string { return m.path }

// Load rereads the file and returns its content.
func (m *Monitor) Load() ([]byte, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", m.path, err)
	}
	m.mu.Lock()
	m.content = data
	m.mu.Unlock()
	return data, nil
}

// Content returns the last loaded content.
func (m *Monitor) Content() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content
}

// Watch posts a CmdReload to rt each time the file is written, created or
// replaced, until ctx is done. Watching the parent directory keeps the
// watch alive across editors that save by renaming.
func (m *Monitor) Watch(ctx context.Context, rt Poster) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(m.path), err)
	}
	m.logger.Printf("watching %s", m.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != m.path || !ev.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if m.debounce <= 0 {
				if err := m.postReload(rt); err != nil {
					return err
				}
				continue
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				timer.Reset(m.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := m.postReload(rt); err != nil {
				return err
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Printf("watcher: %v", err)
		}
	}
}

func (m *Monitor) postReload(rt Poster) error {
	err := rt.Post(server.Command{Kind: server.CmdReload, Load: m.Load})
	if errors.Is(err, server.ErrStopped) {
		return nil
	}
	return err
}

var page = template.Must(template.New("page").Parse(`<html>
<head>
  <meta charset="UTF-8">
  <title>File Monitor</title>
  <style>
    body { margin: 0; padding: 0; display: flex; align-items: center; justify-content: center; height: 100vh; background-color: #f7f7f7; font-family: Arial, sans-serif; }
    .container { width: 80%; max-width: 800px; text-align: center; }
    pre { background: #eee; padding: 20px; border: 1px solid #ccc; overflow: auto; text-align: left; }
  </style>
</head>
<body>
  <div class="container">
    <h1>File Monitor</h1>
    <pre id="content">{{.}}</pre>
  </div>
  <script>
    const ws = new WebSocket('ws://' + location.host);
    ws.onmessage = e => document.getElementById('content').textContent = e.data;
  </script>
</body>
</html>
`))

// RenderPage returns the full HTTP response for a plain request.
func (m *Monitor) RenderPage() ([]byte, error) {
	var body bytes.Buffer
	if err := page.Execute(&body, string(m.Content())); err != nil {
		return nil, err
	}
	var resp bytes.Buffer
	resp.WriteString("HTTP/1.1 200 OK\r\n")
	resp.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	resp.WriteString("Content-Length: " + strconv.Itoa(body.Len()) + "\r\n")
	resp.WriteString("Connection: close\r\n\r\n")
	resp.Write(body.Bytes())
	return resp.Bytes(), nil
}

// ServePage answers a request that is not a WebSocket upgrade; use it as
// protocol.AcceptOptions.PlainRequest.
func (m *Monitor) ServePage(tr api.Conn, up *protocol.Upgrade) {
	resp, err := m.RenderPage()
	if err != nil {
		m.logger.Printf("render page: %v", err)
		return
	}
	if _, err := tr.Write(resp); err != nil {
		m.logger.Printf("page to %s: %v", tr.RemoteAddr(), err)
		return
	}
	if up != nil {
		m.logger.Printf("served page %s to %s", up.Path, tr.RemoteAddr())
	}
}
