package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/config"
	setnet "github.com/peterkuimelis/setx/internal/net"
)

//go:embed static
var staticFiles embed.FS

// connectMessage is the first frame a browser sends on /ws.
type connectMessage struct {
	Type string `json:"type"`
	Addr string `json:"addr"`
	Name string `json:"name"`
}

// Server is the setx web UI server.
type Server struct {
	cfg      config.Config
	gameAddr string
	log      *logrus.Entry
	mux      *http.ServeMux
}

// NewServer creates a web server for tables shaped like cfg. gameAddr is the
// default TCP game server offered to browsers.
func NewServer(cfg config.Config, gameAddr string, plog *logrus.Entry) *Server {
	s := &Server{
		cfg:      cfg,
		gameAddr: gameAddr,
		log:      plog,
		mux:      http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	staticFS, _ := fs.Sub(staticFiles, "static")

	s.mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		f, err := staticFS.Open("index.html")
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer f.Close()
		io.Copy(w, f.(io.Reader))
	})

	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.HandleFunc("GET /api/config.yaml", s.handleConfigYAML)

	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler exposes the routes, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newTableInfo(s.cfg, s.gameAddr))
}

func (s *Server) handleConfigYAML(w http.ResponseWriter, r *http.Request) {
	data, err := tableYAML(s.cfg)
	if err != nil {
		s.log.WithError(err).Error("render table config")
		http.Error(w, "could not render config", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="table.yaml"`)
	w.Write(data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // any origin
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept")
		return
	}
	defer wsConn.CloseNow()

	ctx := r.Context()

	var connect connectMessage
	if err := wsjson.Read(ctx, wsConn, &connect); err != nil || connect.Type != "connect" {
		wsConn.Close(websocket.StatusPolicyViolation, "expected connect message")
		return
	}
	if connect.Addr == "" {
		connect.Addr = s.gameAddr
	}
	entry := s.log.WithFields(logrus.Fields{"addr": connect.Addr, "name": connect.Name})

	var d net.Dialer
	tcpConn, err := d.DialContext(ctx, "tcp", connect.Addr)
	if err != nil {
		wsjson.Write(ctx, wsConn, setnet.ServerMessage{
			Type:   setnet.MsgError,
			Result: fmt.Sprintf("Could not connect to game server at %s: %v", connect.Addr, err),
		})
		wsConn.Close(websocket.StatusNormalClosure, "connection failed")
		return
	}
	defer tcpConn.Close()
	entry.Info("proxying browser to game server")

	if err := json.NewEncoder(tcpConn).Encode(setnet.ClientMessage{Type: setnet.MsgJoin, Name: connect.Name}); err != nil {
		entry.WithError(err).Warn("tcp write join")
		return
	}

	done := make(chan struct{})

	// game server to browser
	go func() {
		defer close(done)
		dec := json.NewDecoder(tcpConn)
		for {
			var msg json.RawMessage
			if err := dec.Decode(&msg); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					entry.WithError(err).Warn("tcp read")
				}
				return
			}
			if err := wsConn.Write(ctx, websocket.MessageText, msg); err != nil {
				entry.WithError(err).Debug("websocket write")
				return
			}
		}
	}()

	// browser to game server
	go func() {
		defer tcpConn.Close()
		for {
			var msg setnet.ClientMessage
			if err := wsjson.Read(ctx, wsConn, &msg); err != nil {
				return
			}
			if err := json.NewEncoder(tcpConn).Encode(msg); err != nil {
				entry.WithError(err).Debug("tcp write")
				return
			}
		}
	}()

	<-done
	wsConn.Close(websocket.StatusNormalClosure, "game ended")
	entry.Info("browser session closed")
}

// ListenAndServe serves HTTP on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()
	s.log.WithField("addr", addr).Info("web ui listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
