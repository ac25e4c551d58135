package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mauipipe/visionresizer/sizer"
)

const maxIdleConnections = 50

// Given a size parameter returns the bounding box, resolving placeholders first
func GetImageSize(imageSize string, config *Configuration) (sizer.Size, error) {
	for _, placeholder := range config.Placeholders {
		if placeholder.Name == imageSize {
			return placeholder.Size, nil
		}
	}

	return sizer.ParseSize(imageSize)
}

// Return image format from the url extension, jpeg by default
func GetExtension(givenUrl string) string {
	urlParsed, err := url.Parse(givenUrl)
	if err != nil {
		return "jpeg"
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(urlParsed.Path), "."))
	switch ext {
	case "png", "gif":
		return ext
	default:
		return "jpeg"
	}
}

// Generates a basic a common client with default timeout
func GetClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = maxIdleConnections

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Get max number of logical cpus we can use
func MaxParallelism(logger *log.Logger) int {
	maxProcs := runtime.GOMAXPROCS(0)
	numCPU := runtime.NumCPU()

	logger.Debug("parallelism", "maxprocs", maxProcs, "cpus", numCPU)

	if maxProcs < numCPU {
		return maxProcs
	}

	return numCPU
}

// Return a given error in JSON format to the ResponseWriter
func FormatError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Returns size of given path
func DirSize(path string) (int64, error) {
	var size int64

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}

	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
