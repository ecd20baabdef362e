// Package server implements the HTTP surface from spec.md §6: a chi router
// over the catalog, file service, and scan engine/state manager, plus a
// WebSocket endpoint streaming scan progress. Grounded on the teacher's
// internal/server/server.go handler shapes, re-routed through
// go-chi/chi/v5 the way tomtom215-cartographus's chi_router.go does, with
// the WebSocket broadcaster adapted from vincent99-velocipi's hub.go
// client/send-channel pattern.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/hysonger/LatteAlbum/internal/catalog"
	"github.com/hysonger/LatteAlbum/internal/config"
	"github.com/hysonger/LatteAlbum/internal/fileservice"
	"github.com/hysonger/LatteAlbum/internal/models"
	"github.com/hysonger/LatteAlbum/internal/scan"
)

// Server wires the catalog, file service, and scan engine to chi routes.
type Server struct {
	cfg     *config.Config
	db      *catalog.DB
	files   *fileservice.Service
	engine  *scan.Engine
	state   *scan.StateManager
	router  chi.Router
	started time.Time
}

func New(cfg *config.Config, db *catalog.DB, files *fileservice.Service, engine *scan.Engine, state *scan.StateManager) *Server {
	s := &Server{cfg: cfg, db: db, files: files, engine: engine, state: state, started: time.Now()}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	log.Printf("server: listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/files", func(r chi.Router) {
		r.Get("/", s.handleListFiles)
		r.Get("/dates", s.handleDates)
		r.Get("/{id}", s.handleGetFile)
		r.Get("/{id}/thumbnail", s.handleThumbnail)
		r.Get("/{id}/original", s.handleOriginal)
		r.Get("/{id}/neighbors", s.handleNeighbors)
	})

	r.Route("/api/directories", func(r chi.Router) {
		r.Get("/", s.handleDirectories)
	})

	r.Route("/api/system", func(r chi.Router) {
		r.Post("/rescan", s.handleRescan)
		r.Get("/scan/progress", s.handleScanProgress)
		r.Post("/scan/cancel", s.handleScanCancel)
		r.Get("/status", s.handleStatus)
	})

	r.Get("/ws/scan", s.handleScanWS)

	r.Get("/*", s.handleStatic)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleListFiles serves GET /api/files (spec.md §6).
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = 50
	}

	sortBy := catalog.SortExifTimestamp
	switch q.Get("sortBy") {
	case "createTime":
		sortBy = catalog.SortCreateTime
	case "modifyTime":
		sortBy = catalog.SortModifyTime
	}

	order := catalog.OrderDesc
	if q.Get("order") == "asc" {
		order = catalog.OrderAsc
	}

	fileType := q.Get("filterType")
	if fileType == "all" {
		fileType = ""
	}

	filter := catalog.ListFilter{
		Path:        q.Get("path"),
		FileType:    fileType,
		CameraModel: q.Get("cameraModel"),
		DatePrefix:  q.Get("date"),
		SortField:   sortBy,
		Order:       order,
		Page:        page,
		Size:        size,
	}

	items, err := s.db.FindAll(filter)
	if err != nil {
		jsonError(w, "failed to list files", http.StatusInternalServerError)
		return
	}
	total, err := s.db.Count(filter.Path, filter.FileType)
	if err != nil {
		jsonError(w, "failed to count files", http.StatusInternalServerError)
		return
	}

	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}

	jsonResponse(w, map[string]interface{}{
		"items":      nonNilRecords(items),
		"total":      total,
		"page":       page,
		"size":       size,
		"totalPages": totalPages,
	})
}

func nonNilRecords(records []*models.MediaRecord) []*models.MediaRecord {
	if records == nil {
		return []*models.MediaRecord{}
	}
	return records
}

// handleGetFile serves GET /api/files/{id}.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.db.FindByID(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, rec)
}

// handleThumbnail serves GET /api/files/{id}/thumbnail.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	size := models.SizeLabel(r.URL.Query().Get("size"))
	switch size {
	case models.SizeSmall, models.SizeMedium, models.SizeLarge, models.SizeFull:
	default:
		size = models.SizeMedium
	}

	thumb, err := s.files.GetThumbnail(r.Context(), id, size, false)
	if err != nil {
		if errors.Is(err, fileservice.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "thumbnail generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", thumb.Mime)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("ETag", fmt.Sprintf(`"%s-%s"`, id, size))
	w.Write(thumb.Data)
}

// handleOriginal serves GET /api/files/{id}/original with Range support.
func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	original, err := s.files.GetOriginal(id, r.Header.Get("Range"))
	if err != nil {
		if errors.Is(err, fileservice.ErrInvalidRange) {
			if rec, rerr := s.db.FindByID(id); rerr == nil {
				if info, serr := os.Stat(rec.FilePath); serr == nil {
					w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size()))
				}
			}
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if errors.Is(err, fileservice.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to open original", http.StatusInternalServerError)
		return
	}
	defer original.Reader.Close()

	w.Header().Set("Content-Type", original.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if original.Range != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", original.Range.Start, original.Range.End, original.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(original.Range.End-original.Range.Start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(original.Size, 10))
	}

	io.Copy(w, original.Reader)
}

// handleNeighbors serves GET /api/files/{id}/neighbors.
func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.db.FindByID(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	sortTime := rec.EffectiveSortTime(time.Now())
	var sortTimeStr *string
	if sortTime != nil {
		// sort_time is compared as text, so the reference must use the same
		// layout (and offset) the SQLite driver writes DATETIME values in.
		str := sortTime.Format("2006-01-02 15:04:05.999999999-07:00")
		sortTimeStr = &str
	}

	prev, err := s.db.FindNeighbors(id, sortTimeStr, true)
	if err != nil {
		jsonError(w, "neighbor lookup failed", http.StatusInternalServerError)
		return
	}
	next, err := s.db.FindNeighbors(id, sortTimeStr, false)
	if err != nil {
		jsonError(w, "neighbor lookup failed", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]interface{}{"previous": prev, "next": next})
}

// handleDates serves GET /api/files/dates.
func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fileType := q.Get("filterType")
	if fileType == "all" {
		fileType = ""
	}
	dates, err := s.db.FindDatesWithFiles(q.Get("path"), fileType)
	if err != nil {
		jsonError(w, "failed to fetch dates", http.StatusInternalServerError)
		return
	}
	if dates == nil {
		dates = []models.DateCount{}
	}
	jsonResponse(w, dates)
}

// handleDirectories serves GET /api/directories.
func (s *Server) handleDirectories(w http.ResponseWriter, r *http.Request) {
	dirs, err := s.db.ListDirectories()
	if err != nil {
		jsonError(w, "failed to list directories", http.StatusInternalServerError)
		return
	}
	if dirs == nil {
		dirs = []*models.Directory{}
	}
	jsonResponse(w, dirs)
}

// handleRescan serves POST /api/system/rescan.
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if s.engine.Scanning() {
		jsonResponse(w, map[string]interface{}{"success": false, "message": "scan already in progress"})
		return
	}
	go s.engine.Scan(r.Context())
	jsonResponse(w, map[string]interface{}{"success": true, "message": "scan started"})
}

// handleScanProgress serves GET /api/system/scan/progress.
func (s *Server) handleScanProgress(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.state.Snapshot())
}

// handleScanCancel serves POST /api/system/scan/cancel.
func (s *Server) handleScanCancel(w http.ResponseWriter, r *http.Request) {
	if s.engine.Cancel() {
		jsonResponse(w, map[string]interface{}{"success": true, "message": "cancellation requested"})
		return
	}
	jsonResponse(w, map[string]interface{}{"success": false, "message": "no scan in progress"})
}

// handleStatus serves GET /api/system/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, _ := s.db.Count("", "")
	images, _ := s.db.Count("", "image")
	videos, _ := s.db.Count("", "video")

	cacheMB, err := s.files.CacheSizeMB()
	if err != nil {
		log.Printf("status: cache size: %v", err)
	}

	var lastScanTime interface{}
	if t, err := s.db.MaxLastScanned(); err != nil {
		log.Printf("status: max last_scanned: %v", err)
	} else if t != nil {
		lastScanTime = t.UTC().Format(time.RFC3339)
	}

	status := "idle"
	if s.engine.Scanning() {
		status = "scanning"
	}

	jsonResponse(w, map[string]interface{}{
		"status":         status,
		"total_files":    total,
		"image_count":    images,
		"video_count":    videos,
		"cache_size_mb":  cacheMB,
		"last_scan_time": lastScanTime,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// handleStatic serves the frontend build, falling back to index.html for
// SPA client-side routing, per the teacher's handleFrontend.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	dir := s.cfg.Server.StaticDir
	if dir == "" {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(dir, r.URL.Path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		return
	}
	http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleScanWS serves WS /ws/scan: upgrades the connection, subscribes to
// the state manager's broadcasts, and relays each ScanProgressMessage as a
// JSON text frame until the client disconnects.
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.state.Subscribe()
	defer unsubscribe()

	initial := s.state.Snapshot()
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	// Drain client-initiated reads so a closed connection is detected
	// promptly; scan progress is one-directional so any inbound frame is
	// discarded.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
