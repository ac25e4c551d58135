package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/nfnt/resize"

	"github.com/mauipipe/visionresizer/cache"
	"github.com/mauipipe/visionresizer/sizer"
	"github.com/mauipipe/visionresizer/vision"
)

const maxVisionBody = 4 << 20

var errUpstreamNotFound = errors.New("image not found upstream")

type Server struct {
	config atomic.Pointer[Configuration]
	cache  *cache.Provider
	client *http.Client
	logger *log.Logger
}

func NewServer(config *Configuration, provider *cache.Provider, logger *log.Logger) *Server {
	s := &Server{
		cache:  provider,
		client: GetClient(config.RequestTimeout),
		logger: logger,
	}
	s.config.Store(config)
	return s
}

// SetConfig swaps the configuration used by subsequent requests.
func (s *Server) SetConfig(config *Configuration) {
	s.config.Store(config)
}

func (s *Server) Config() *Configuration {
	return s.config.Load()
}

func (s *Server) Router() *mux.Router {
	rtr := mux.NewRouter()
	rtr.Use(s.requestLogger)
	rtr.HandleFunc("/resize/{budget}/{path:.*}", s.resizing).Methods(http.MethodGet)
	rtr.HandleFunc("/fit/{size}/{path:.*}", s.fitting).Methods(http.MethodGet)
	rtr.HandleFunc("/dimensions", s.dimensions).Methods(http.MethodGet)
	rtr.HandleFunc("/vision", s.visionInfo).Methods(http.MethodPost)
	rtr.HandleFunc("/health-check", s.healthCheck).Methods(http.MethodGet)
	rtr.HandleFunc("/purge", s.purgeCache).Methods(http.MethodGet)
	rtr.HandleFunc("/warmup", s.warmUp).Methods(http.MethodGet)
	return rtr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(start).Round(time.Millisecond),
		)
	})
}

// loadOriginal returns the source image for path, from cache when possible.
func (s *Server) loadOriginal(ctx context.Context, imagePath string) (image.Image, string, error) {
	config := s.Config()
	imageUrl := fmt.Sprintf("%s%s", config.ImageHost, imagePath)

	validator := Validator{config}
	if err := validator.CheckHostInWhiteList(imageUrl); err != nil {
		return nil, "", err
	}

	format := GetExtension(imageUrl)
	originalKey := cache.Key("original", imageUrl)

	if s.cache.Contains(originalKey) {
		img, cachedFormat, err := s.cache.GetImage(originalKey)
		if err == nil {
			return img, cachedFormat, nil
		}
		s.logger.Warn("dropping unreadable cached original", "url", imageUrl, "err", err)
	}

	s.logger.Debug("downloading image", "url", imageUrl)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageUrl, nil)
	if err != nil {
		return nil, "", err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", imageUrl, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %s returned %d", errUpstreamNotFound, imageUrl, res.StatusCode)
	}

	img, decoded, err := image.Decode(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", imageUrl, err)
	}
	if decoded == "png" || decoded == "jpeg" {
		format = decoded
	}

	if err := s.cache.SetImage(originalKey, img, format); err != nil {
		s.logger.Warn("could not cache original", "url", imageUrl, "err", err)
	}

	return img, format, nil
}

// normalized loads imagePath and scales it to the size sizer.Normalize picks
// for the named budget.
func (s *Server) normalized(ctx context.Context, imagePath, budgetName string) (image.Image, string, error) {
	config := s.Config()
	budget, ok := config.Budget(budgetName)
	if !ok {
		return nil, "", fmt.Errorf("unknown budget %q", budgetName)
	}
	validator := Validator{config}
	if err := validator.CheckBudget(budget); err != nil {
		return nil, "", err
	}

	key := cache.Key("normalized", strconv.Itoa(budget.Factor), strconv.Itoa(budget.MinPixels),
		strconv.Itoa(budget.MaxPixels), config.ImageHost, imagePath)

	if config.CacheThumbnails && s.cache.Contains(key) {
		if img, cachedFormat, err := s.cache.GetImage(key); err == nil {
			s.logger.Debug("cache hit", "key", key)
			return img, cachedFormat, nil
		}
	}

	original, format, err := s.loadOriginal(ctx, imagePath)
	if err != nil {
		return nil, "", err
	}

	b := original.Bounds()
	size, err := sizer.Normalize(b.Dy(), b.Dx(), budget)
	if err != nil {
		return nil, "", err
	}

	resized := resize.Resize(uint(size.Width), uint(size.Height), original, resize.Lanczos3)
	s.logger.Debug("normalized image", "path", imagePath, "from", sizer.Size{Width: b.Dx(), Height: b.Dy()}, "to", size)

	if config.CacheThumbnails {
		if err := s.cache.SetImage(key, resized, format); err != nil {
			return nil, "", fmt.Errorf("cache normalized image: %w", err)
		}
	}

	return resized, format, nil
}

func errorStatus(err error) int {
	if errors.Is(err, errUpstreamNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func writeImage(w http.ResponseWriter, img image.Image, format string) error {
	if format != "png" {
		format = "jpeg"
	}
	b := img.Bounds()
	w.Header().Set("Content-Type", "image/"+format)
	w.Header().Set("X-Image-Width", strconv.Itoa(b.Dx()))
	w.Header().Set("X-Image-Height", strconv.Itoa(b.Dy()))
	return cache.Encode(w, img, format)
}

// Normalizing endpoint.
func (s *Server) resizing(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	img, format, err := s.normalized(r.Context(), params["path"], params["budget"])
	if err != nil {
		s.logger.Warn("resize failed", "path", params["path"], "err", err)
		FormatError(w, err, errorStatus(err))
		return
	}

	if err := writeImage(w, img, format); err != nil {
		s.logger.Error("encode failed", "path", params["path"], "err", err)
	}
}

// Bounding box endpoint.
func (s *Server) fitting(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	config := s.Config()

	box, err := GetImageSize(params["size"], config)
	if err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}
	validator := Validator{config}
	if err := validator.CheckRequestNewSize(box); err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}

	key := cache.Key("fit", strconv.Itoa(box.Width), strconv.Itoa(box.Height), config.ImageHost, params["path"])
	if config.CacheThumbnails && s.cache.Contains(key) {
		if img, format, err := s.cache.GetImage(key); err == nil {
			if err := writeImage(w, img, format); err != nil {
				s.logger.Error("encode failed", "path", params["path"], "err", err)
			}
			return
		}
	}

	original, format, err := s.loadOriginal(r.Context(), params["path"])
	if err != nil {
		FormatError(w, err, errorStatus(err))
		return
	}

	b := original.Bounds()
	size, err := sizer.Fit(b.Dx(), b.Dy(), box)
	if err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}
	// a one-sided box leaves the other side unbounded for extreme aspect ratios
	if err := validator.CheckRequestNewSize(size); err != nil {
		FormatError(w, fmt.Errorf("fitted size %s: %w", size, err), http.StatusBadRequest)
		return
	}

	resized := resize.Resize(uint(size.Width), uint(size.Height), original, resize.NearestNeighbor)
	if config.CacheThumbnails {
		if err := s.cache.SetImage(key, resized, format); err != nil {
			s.logger.Warn("could not cache thumbnail", "key", key, "err", err)
		}
	}

	if err := writeImage(w, resized, format); err != nil {
		s.logger.Error("encode failed", "path", params["path"], "err", err)
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q", name, value)
	}
	return n, nil
}

// Dimensions endpoint, computes the normalized size without touching an image.
func (s *Server) dimensions(w http.ResponseWriter, r *http.Request) {
	height, err := queryInt(r, "height")
	if err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}
	width, err := queryInt(r, "width")
	if err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}

	name := r.URL.Query().Get("budget")
	budget, ok := s.Config().Budget(name)
	if !ok {
		FormatError(w, fmt.Errorf("unknown budget %q", name), http.StatusBadRequest)
		return
	}

	size, err := sizer.Normalize(height, width, budget)
	if err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, size)
}

type visionResponse struct {
	Images []string `json:"images"`
	Videos []string `json:"videos"`
}

func (s *Server) visionInfo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxVisionBody))
	if err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}

	messages, err := vision.DecodeMessages(body)
	if err != nil {
		FormatError(w, err, http.StatusBadRequest)
		return
	}

	images, videos := vision.ExtractVisionInfo(messages)
	writeJSON(w, visionResponse{Images: images, Videos: videos})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	diskBytes, err := DirSize(s.Config().CachePath)
	if err != nil {
		s.logger.Warn("could not size cache directory", "err", err)
	}

	writeJSON(w, map[string]any{
		"status":     "ok",
		"cache":      s.cache.Stats(),
		"disk_bytes": diskBytes,
	})
}

func (s *Server) purgeCache(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.DeleteAll(); err != nil {
		FormatError(w, err, http.StatusInternalServerError)
		return
	}

	s.logger.Info("cache purged")
	fmt.Fprint(w, "OK")
}
