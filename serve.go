package chtl

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsUpgrader upgrades reload connections from the injected client snippet.
var wsUpgrader = websocket.Upgrader{}

// reloadSnippet is injected into served pages; it reconnects to the reload
// socket and refreshes the page when the server announces a rebuild.
const reloadSnippet = `<script>(function(){
var proto = location.protocol === "https:" ? "wss://" : "ws://";
var ws = new WebSocket(proto + location.host + "/.chtl/reload");
ws.onmessage = function() { location.reload(); };
})();</script>`

// DevServer serves the compiled output of one source file over HTTP,
// recompiling whenever a .chtl or .go file in the source directory is
// written, created or renamed, and pushing reload events over a websocket.
type DevServer struct {
	Compiler *Compiler
	Source   string // path of the .chtl entry file
	Logger   *zap.Logger

	mu      sync.RWMutex
	current *Result
	lastErr error

	reloadMu sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

// NewDevServer builds a server around a compiler and an entry file.
func NewDevServer(c *Compiler, source string, log *zap.Logger) *DevServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &DevServer{
		Compiler: c,
		Source:   source,
		Logger:   log.Named("serve"),
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Run compiles once, starts the file watcher and serves until ctx is done.
func (s *DevServer) Run(ctx context.Context, addr string) error {
	s.recompile(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(s.Source)); err != nil {
		return err
	}

	go s.watchLoop(ctx, watcher)

	mux := http.NewServeMux()
	mux.HandleFunc("/.chtl/reload", s.handleReload)
	mux.HandleFunc("/", s.handlePage)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	s.Logger.Info("dev server listening", zap.String("addr", addr), zap.String("source", s.Source))
	err = srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *DevServer) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".chtl") && !strings.HasSuffix(ev.Name, ".go") {
				continue
			}
			s.Logger.Debug("source changed", zap.String("file", ev.Name))
			s.recompile(ctx)
			s.broadcastReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.Logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *DevServer) recompile(ctx context.Context) {
	res, err := s.Compiler.CompileFile(ctx, s.Source)
	s.mu.Lock()
	s.current, s.lastErr = res, err
	s.mu.Unlock()
	if err != nil {
		s.Logger.Warn("recompile failed", zap.Error(err))
	}
}

func (s *DevServer) handlePage(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	res, err := s.current, s.lastErr
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil || res == nil {
		w.WriteHeader(http.StatusInternalServerError)
		msg := "compilation failed"
		if err != nil {
			msg = err.Error()
		}
		_, _ = w.Write([]byte("<pre>" + msg + "</pre>" + reloadSnippet))
		return
	}
	doc := res.Document
	// Weave the reload snippet in before </body> when a shell exists.
	if i := strings.LastIndex(doc, "</body>"); i >= 0 {
		doc = doc[:i] + reloadSnippet + doc[i:]
	} else {
		doc += reloadSnippet
	}
	_, _ = w.Write([]byte(doc))
}

func (s *DevServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket required", http.StatusBadRequest)
		return
	}
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.reloadMu.Lock()
	s.clients[ws] = struct{}{}
	s.reloadMu.Unlock()

	// Drain client messages until the connection closes.
	go func() {
		defer func() {
			s.reloadMu.Lock()
			delete(s.clients, ws)
			s.reloadMu.Unlock()
			_ = ws.Close()
		}()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					return
				}
				return
			}
		}
	}()
}

func (s *DevServer) broadcastReload() {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	for ws := range s.clients {
		if err := ws.WriteMessage(websocket.TextMessage, []byte("reload")); err != nil {
			delete(s.clients, ws)
			_ = ws.Close()
		}
	}
}
