package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type WarmupResult struct {
	Warmed int      `json:"warmed"`
	Failed []string `json:"failed,omitempty"`
}

// WarmUp normalizes every configured path for every configured budget so the
// results are served from cache afterwards. Individual failures are collected
// rather than aborting the run.
func (s *Server) WarmUp(ctx context.Context) (WarmupResult, error) {
	config := s.Config()

	var limiter *rate.Limiter
	if config.WarmupInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(config.WarmupInterval), 2)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, config.WarmupConcurrency))

	var (
		warmed atomic.Int64
		mu     sync.Mutex
		failed []string
	)

	for _, imagePath := range config.WarmupPaths {
		for _, budgetName := range config.WarmupBudgets {
			imagePath, budgetName := imagePath, budgetName
			eg.Go(func() error {
				if limiter != nil {
					if err := limiter.Wait(egCtx); err != nil {
						return err
					}
				}

				if _, _, err := s.normalized(egCtx, imagePath, budgetName); err != nil {
					s.logger.Warn("warmup failed", "path", imagePath, "budget", budgetName, "err", err)
					mu.Lock()
					failed = append(failed, fmt.Sprintf("%s@%s: %v", imagePath, budgetName, err))
					mu.Unlock()
					return nil
				}

				warmed.Add(1)
				s.logger.Debug("warmed", "path", imagePath, "budget", budgetName)
				return nil
			})
		}
	}

	err := eg.Wait()
	return WarmupResult{Warmed: int(warmed.Load()), Failed: failed}, err
}

func (s *Server) warmUp(w http.ResponseWriter, r *http.Request) {
	result, err := s.WarmUp(r.Context())
	if err != nil {
		FormatError(w, err, http.StatusInternalServerError)
		return
	}

	s.logger.Info("warmup finished", "warmed", result.Warmed, "failed", len(result.Failed))
	writeJSON(w, result)
}
