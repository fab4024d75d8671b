package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/supervisr/internal/auth"
	"github.com/loykin/supervisr/internal/env"
	"github.com/loykin/supervisr/internal/process"
	"github.com/loykin/supervisr/internal/registry"
)

// Supervisor is the part of the manager the HTTP API needs.
type Supervisor interface {
	AddProcess(name string, f process.Factory) error
	AddDependency(name, dependsOn string)
	StopProcess(name string) bool
	Status(name string) (process.Status, bool)
	Statuses() []process.Status
	Dependencies() map[string][]string
}

// Router provides embeddable HTTP handlers for inspecting and controlling
// supervised processes.
// Endpoints:
//
//	GET  {basePath}/processes     list of statuses
//	POST {basePath}/processes     body: ProcessRequest JSON, registers a command
//	GET  {basePath}/status        query: name=...
//	POST {basePath}/stop          query: name=...
//	GET  {basePath}/dependencies  process -> names it depends on
//
// basePath may be empty or start with '/'; no trailing slash.
//
// With auth configured, POST {basePath}/login issues bearer tokens, GET
// endpoints need the viewer role and POST endpoints the operator role.
type Router struct {
	sup      Supervisor
	basePath string
	auth     *auth.Service
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/abc" results in /abc/status, /abc/stop, ...
func NewRouter(sup Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// WithAuth protects the endpoints with a.
func (r *Router) WithAuth(a *auth.Service) *Router {
	r.auth = a
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register mounts the endpoints on an existing gin route group.
func (r *Router) Register(group *gin.RouterGroup) {
	read, write := group, group
	if r.auth != nil {
		group.POST("/login", r.auth.GinLogin)
		protected := group.Group("", r.auth.GinAuth())
		read = protected.Group("", auth.GinRequire(auth.RoleViewer))
		write = protected.Group("", auth.GinRequire(auth.RoleOperator))
	}
	read.GET("/processes", r.handleList)
	write.POST("/processes", r.handleAdd)
	read.GET("/status", r.handleStatus)
	write.POST("/stop", r.handleStop)
	read.GET("/dependencies", r.handleDependencies)
}

// NewServer listens on addr and serves the router in the background.
// Listen errors are returned; the caller owns Shutdown of the returned server.
func NewServer(addr, basePath string, sup Supervisor) (*http.Server, error) {
	return Serve(addr, NewRouter(sup, basePath).Handler(), nil)
}

// Serve listens on addr and serves h in the background, over TLS when tc is set.
func Serve(addr string, h http.Handler, tc *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc != nil {
		ln = tls.NewListener(ln, tc)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         tc,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// Shutdown stops srv, waiting at most timeout for open requests.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type stopResp struct {
	OK    bool          `json:"ok"`
	State process.State `json:"state"`
}

// ProcessRequest registers a shell command as a supervised process.
type ProcessRequest struct {
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	WorkDir   string   `json:"work_dir,omitempty"`
	Env       []string `json:"env,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Statuses())
}

func (r *Router) handleAdd(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := validateAdd(req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	cmd := process.Command{Name: req.Name, Script: req.Command, WorkDir: req.WorkDir}
	if len(req.Env) > 0 {
		cmd.Env = env.New().WithOS(true).Merge(req.Env)
	}
	if err := r.sup.AddProcess(req.Name, cmd); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, registry.ErrAlreadyRegistered) {
			code = http.StatusConflict
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	for _, d := range req.DependsOn {
		r.sup.AddDependency(req.Name, d)
	}
	st, _ := r.sup.Status(req.Name)
	writeJSON(c, http.StatusCreated, st)
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	st, ok := r.sup.Status(name)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown process: " + name})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	if !r.sup.StopProcess(name) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown process: " + name})
		return
	}
	st, _ := r.sup.Status(name)
	writeJSON(c, http.StatusOK, stopResp{OK: true, State: st.State})
}

func (r *Router) handleDependencies(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Dependencies())
}
