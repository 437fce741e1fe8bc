// Package httpapi implements the HTTP control plane of §6: a gorilla/mux
// router, CORS-open and JWT-cookie-authenticated, whose handlers convert
// each call into a (Command, ReplyHandle) pair on the proxy's inbound
// channel and wait for the one Reply.
package httpapi

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/udisondev/mc-ondemand/internal/credentials"
	"github.com/udisondev/mc-ondemand/internal/mccommand"
)

//go:embed static/login.html static/home.html
var staticFS embed.FS

// requestTimeout bounds how long a handler waits for the proxy's Reply
// before answering 500 — the proxy is single-threaded and every request is
// served in enqueue order, but a wedged proxy must not hang the HTTP server
// forever.
const requestTimeout = 15 * time.Second

// Server serves the control-plane HTTP surface. It holds only the sender
// side of the inbound channel, never the proxy itself (§9 "cyclic
// ownership avoided").
type Server struct {
	creds   credentials.Credentials
	inbound chan<- mccommand.Request
	signer  *signer
	router  *mux.Router
}

// New builds a Server with a freshly generated JWT signing secret.
func New(creds credentials.Credentials, inbound chan<- mccommand.Request) (*Server, error) {
	sig, err := newSigner()
	if err != nil {
		return nil, err
	}

	s := &Server{creds: creds, inbound: inbound, signer: sig}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the root http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/home", s.handleHome).Methods(http.MethodGet)
	authed.HandleFunc("/ban", s.handleBan).Methods(http.MethodPost)
	authed.HandleFunc("/ban", s.handlePardon).Methods(http.MethodDelete)
	authed.HandleFunc("/kick", s.handleKick).Methods(http.MethodPost)
	authed.HandleFunc("/whitelist", s.handleWhitelistAdd).Methods(http.MethodPost)
	authed.HandleFunc("/whitelist", s.handleWhitelistRemove).Methods(http.MethodDelete)
	authed.HandleFunc("/op", s.handleOpAdd).Methods(http.MethodPost)
	authed.HandleFunc("/op", s.handleDeOp).Methods(http.MethodDelete)
	authed.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	authed.HandleFunc("/generate", s.handleCancelGenerate).Methods(http.MethodDelete)
	authed.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)

	return r
}

// corsMiddleware opens every origin (§6: "CORS *").
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies the jwt cookie before letting a request reach a
// protected handler.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrInvalidToken)
			return
		}
		if err := s.signer.verify(cookie.Value); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	serveStatic(w, "static/login.html")
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	serveStatic(w, "static/home.html")
}

func serveStatic(w http.ResponseWriter, name string) {
	data, err := fs.ReadFile(staticFS, name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("httpapi: parsing login form: %w", err))
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	if err := s.creds.Check(username, password); err != nil {
		slog.Warn("login rejected", "username", username)
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	token, err := s.signer.issue(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})

	slog.Info("login accepted", "username", username)
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

type banRequest struct {
	Nickname string  `json:"nickname"`
	Reason   *string `json:"reason"`
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.Ban{Nickname: req.Nickname, Reason: req.Reason})
}

func (s *Server) handlePardon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.Pardon{Nickname: req.Nickname})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.Kick{Nickname: req.Nickname, Reason: req.Reason})
}

func (s *Server) handleWhitelistAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.WhitelistAdd{Nickname: req.Nickname})
}

func (s *Server) handleWhitelistRemove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.WhitelistRemove{Nickname: req.Nickname})
}

func (s *Server) handleOpAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.OpAdd{Nickname: req.Nickname})
}

func (s *Server) handleDeOp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.DeOp{Nickname: req.Nickname})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Radius uint16 `json:"radius"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.dispatch(w, r, mccommand.GenerateWorld{Radius: req.Radius})
}

func (s *Server) handleCancelGenerate(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, mccommand.CancelGeneration{})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, mccommand.Ping{})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("httpapi: decoding request body: %w", err))
		return false
	}
	return true
}

// dispatch enqueues cmd on the inbound channel and waits for its Reply,
// converting the outcome into the success/error envelope of §6.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, cmd mccommand.Command) {
	replyCh := make(chan mccommand.Reply, 1)

	select {
	case s.inbound <- mccommand.Request{Command: cmd, Reply: replyCh}:
	case <-time.After(requestTimeout):
		writeError(w, http.StatusInternalServerError, fmt.Errorf("httpapi: proxy did not accept request in time"))
		return
	case <-r.Context().Done():
		return
	}

	select {
	case reply := <-replyCh:
		writeReply(w, reply)
	case <-time.After(requestTimeout):
		writeError(w, http.StatusInternalServerError, fmt.Errorf("httpapi: proxy did not reply in time"))
	case <-r.Context().Done():
	}
}

func writeReply(w http.ResponseWriter, reply mccommand.Reply) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"response": replyJSON(reply),
	})
}

// replyJSON renders a Reply as a tagged JSON object, e.g. {"NotReady":null}
// or {"Ok":{"response":"..."}} — the shape §8 Scenario S2 illustrates.
func replyJSON(reply mccommand.Reply) map[string]interface{} {
	switch v := reply.(type) {
	case mccommand.NotReady:
		return map[string]interface{}{"NotReady": nil}
	case mccommand.Ok:
		return map[string]interface{}{"Ok": map[string]string{"response": v.Response}}
	case mccommand.Err:
		return map[string]interface{}{"Err": map[string]string{"error": v.Error}}
	default:
		return map[string]interface{}{"Unknown": nil}
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}
