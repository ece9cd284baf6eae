package langserver

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	glspproto "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/lsmux/lsmux/config"
	"github.com/lsmux/lsmux/deps"
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/internal/glob"
	"github.com/lsmux/lsmux/platform"
)

// Options carries caller-supplied settings into a backend constructor
type Options struct {
	// Logger is required; every server logs through it
	Logger *zap.SugaredLogger

	// RequestTimeout overrides the configured default request timeout
	RequestTimeout time.Duration

	// ShutdownTimeout overrides the configured graceful shutdown window
	ShutdownTimeout time.Duration
}

func (o Options) requestTimeout(cfg *config.Config) time.Duration {
	if o.RequestTimeout > 0 {
		return o.RequestTimeout
	}
	if cfg != nil && cfg.Request.DefaultTimeoutSeconds > 0 {
		return time.Duration(cfg.Request.DefaultTimeoutSeconds) * time.Second
	}
	return config.DefaultRequestTimeoutSeconds * time.Second
}

func (o Options) shutdownTimeout(cfg *config.Config) time.Duration {
	if o.ShutdownTimeout > 0 {
		return o.ShutdownTimeout
	}
	if cfg != nil && cfg.Request.ShutdownTimeoutSeconds > 0 {
		return time.Duration(cfg.Request.ShutdownTimeoutSeconds) * time.Second
	}
	return config.DefaultShutdownTimeoutSeconds * time.Second
}

// Spec is everything an adapter supplies about its backend: how to launch
// it, how to obtain it, when it is ready, and which paths it will never
// produce useful answers for.
type Spec struct {
	Language              string
	Command               []string
	Env                   []string
	Dependencies          []deps.Dependency
	ReadinessPredicates   []ReadyPredicate
	IgnorePatterns        []string
	InitializationOptions any
}

// Server is one supervised backend instance bound to a workspace root. Each
// Server owns its own process, streams and pending-request state; instances
// share nothing.
type Server struct {
	language        string
	root            string
	ignore          []string
	initOptions     any
	handler         *Handler
	logger          *zap.SugaredLogger
	shutdownTimeout time.Duration
}

// NewServer builds a Server from an adapter's Spec. The process is not
// spawned until Start.
func NewServer(spec Spec, cfg *config.Config, root string, opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("langserver requires a logger")
	}
	if len(spec.Command) == 0 {
		return nil, errors.Newf("backend %s supplied an empty launch command", spec.Language)
	}

	cmd := newCommand(spec.Command, root, spec.Env)

	handler := NewHandler(opts.Logger, cmd,
		WithDefaultTimeout(opts.requestTimeout(cfg)),
		WithReadinessPredicates(spec.ReadinessPredicates...),
	)

	return &Server{
		language:        spec.Language,
		root:            root,
		ignore:          spec.IgnorePatterns,
		initOptions:     spec.InitializationOptions,
		handler:         handler,
		logger:          opts.Logger,
		shutdownTimeout: opts.shutdownTimeout(cfg),
	}, nil
}

// Language returns the logical language identifier
func (s *Server) Language() string { return s.language }

// Root returns the workspace root the server was created for
func (s *Server) Root() string { return s.root }

// Handler exposes the underlying process supervisor
func (s *Server) Handler() *Handler { return s.handler }

// Start spawns the backend process and begins dispatch
func (s *Server) Start() error {
	return s.handler.Start()
}

// Initialize performs the protocol handshake. This is the one exchange that
// must be allowed before readiness resolves; semantic requests should wait
// on Ready first.
func (s *Server) Initialize(ctx context.Context) (*glspproto.InitializeResult, error) {
	pid := glspproto.Integer(os.Getpid())
	rootURI := glspproto.DocumentUri("file://" + filepath.ToSlash(s.root))

	params := glspproto.InitializeParams{
		ProcessID:             &pid,
		RootURI:               &rootURI,
		Capabilities:          glspproto.ClientCapabilities{},
		InitializationOptions: s.initOptions,
	}

	var result glspproto.InitializeResult
	if err := s.handler.SendRequest(ctx, "initialize", params, &result); err != nil {
		return nil, errors.Wrapf(err, "initialize failed for %s in %s", s.language, s.root)
	}

	if err := s.handler.Notify("initialized", glspproto.InitializedParams{}); err != nil {
		return nil, errors.Wrapf(err, "initialized notification failed for %s", s.language)
	}

	return &result, nil
}

// SendRequest issues a request with the configured default timeout
func (s *Server) SendRequest(ctx context.Context, method string, params, result any) error {
	return s.handler.SendRequest(ctx, method, params, result)
}

// SendRequestTimeout issues a request with an explicit timeout
func (s *Server) SendRequestTimeout(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	return s.handler.SendRequestTimeout(ctx, method, params, result, timeout)
}

// Notify sends a fire-and-forget notification
func (s *Server) Notify(method string, params any) error {
	return s.handler.Notify(method, params)
}

// OnNotification registers a handler for server-initiated notifications
func (s *Server) OnNotification(method string, fn NotificationHandler) {
	s.handler.OnNotification(method, fn)
}

// OnRequest registers a handler for server-initiated requests
func (s *Server) OnRequest(method string, fn RequestHandler) {
	s.handler.OnRequest(method, fn)
}

// Ready returns a channel closed once the backend has finished indexing
func (s *Server) Ready() <-chan struct{} {
	return s.handler.Ready()
}

// Exited returns a channel closed when the backend process terminates
func (s *Server) Exited() <-chan struct{} {
	return s.handler.Exited()
}

// Stop tears the backend down using the configured shutdown timeout.
// Idempotent.
func (s *Server) Stop() error {
	return s.handler.Stop(s.shutdownTimeout)
}

// IsIgnoredPath reports whether a workspace-relative path matches the
// backend's ignore globs (generated directories, virtual environments and
// the like)
func (s *Server) IsIgnoredPath(relativePath string) bool {
	normalized := strings.TrimPrefix(filepath.ToSlash(relativePath), "./")
	return glob.MatchAny(s.ignore, normalized)
}

// EnsureBinary resolves the path of a backend's server binary, installing
// runtime dependencies when needed.
//
// Resolution order: an explicit per-backend binary_path override wins; an
// assume_present backend falls back to the bare command name unverified;
// otherwise the dependency's expected path is probed and, unless
// skip_install is set, the installer is invoked to produce it. The
// skip-install switch is honored here, at the adapter seam, keeping the
// installer itself policy-free.
func EnsureBinary(ctx context.Context, logger *zap.SugaredLogger, cfg *config.Config, language, depID string, dependencies []deps.Dependency) (string, error) {
	backend := cfg.Backend(language)

	if backend.BinaryPath != "" {
		logger.Debugw("Using configured binary override",
			"language", language,
			"binary", backend.BinaryPath,
		)
		return backend.BinaryPath, nil
	}

	runtimeDir := filepath.Join(cfg.Runtime.Root, language)

	installer := deps.NewInstaller(logger, dependencies)
	if path, ok := deps.BinaryPath(dependencies, depID, installerHost(), runtimeDir); ok {
		if backend.AssumePresent {
			return path, nil
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if cfg.Runtime.SkipInstall {
		return "", errors.Newf(
			"backend %s binary is not installed and automatic installation is disabled", language)
	}

	resolved, err := installer.Install(ctx, runtimeDir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to install dependencies for %s", language)
	}

	path, ok := resolved[depID]
	if !ok {
		return "", errors.Wrapf(errors.ErrDependencyInstallIncomplete,
			"backend %s: dependency %s unavailable on this platform", language, depID)
	}
	return path, nil
}

func installerHost() platform.ID {
	return platform.Current()
}

func newCommand(argv []string, dir string, env []string) *exec.Cmd {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd
}
