package handler

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/pkg/logger"
)

// NewPassThroughHandler returns the handler for requests the router does not
// rewrite: a proxy to the fallback origin, a static file tree, or 404.
func NewPassThroughHandler(cfg config.RouterConfig, logger *logger.Logger) (http.Handler, error) {
	switch {
	case cfg.FallbackURL != "":
		return NewFallbackProxy(cfg.FallbackURL, logger)
	case cfg.StaticDir != "":
		return NewStaticHandler(cfg.StaticDir, logger), nil
	default:
		return http.NotFoundHandler(), nil
	}
}

// NewFallbackProxy proxies requests unchanged to origin.
func NewFallbackProxy(origin string, logger *logger.Logger) (http.Handler, error) {
	originURL, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback url: %w", err)
	}

	log := logger.WithFields(map[string]interface{}{
		"component": "pass_through",
		"origin":    originURL.Redacted(),
	})

	proxy := httputil.NewSingleHostReverseProxy(originURL)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		if req.Header.Get("X-Forwarded-Host") == "" {
			req.Header.Set("X-Forwarded-Host", req.Host)
		}
		req.Host = originURL.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithError(err).WithField("path", r.URL.Path).Error("Fallback origin request failed")
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}

// StaticHandler serves files from a directory
type StaticHandler struct {
	logger      *logger.Logger
	root        http.FileSystem
	indexFile   string
	cacheMaxAge int
}

// NewStaticHandler creates a new static content handler
func NewStaticHandler(rootPath string, logger *logger.Logger) *StaticHandler {
	return &StaticHandler{
		logger:      logger,
		root:        http.Dir(rootPath),
		indexFile:   "index.html",
		cacheMaxAge: 3600,
	}
}

// ServeHTTP serves the requested file, or the directory's index file.
// Conditional and range requests are answered by http.ServeContent.
func (sh *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") || name == "/" {
		name = path.Join(name, sh.indexFile)
	}

	f, err := sh.root.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		sh.logger.WithError(err).WithField("path", name).Error("Failed to stat static file")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if stat.IsDir() {
		index, err := sh.root.Open(path.Join(name, sh.indexFile))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer index.Close()

		if stat, err = index.Stat(); err != nil || stat.IsDir() {
			http.NotFound(w, r)
			return
		}
		f = index
	}

	if sh.cacheMaxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", sh.cacheMaxAge))
	}
	w.Header().Set("ETag", fmt.Sprintf(`"%x-%x"`, stat.ModTime().Unix(), stat.Size()))

	http.ServeContent(w, r, stat.Name(), stat.ModTime(), f)
}
