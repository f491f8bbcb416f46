// Package logger provides structured logging using Zap.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Init initializes the global logger for the given environment.
// For "production", it uses a JSON encoder. For all other environments,
// it uses a human-readable console encoder.
func Init(env string) {
	once.Do(func() {
		var base *zap.Logger
		var err error

		if env == "production" {
			base, err = zap.NewProduction()
		} else {
			base, err = zap.NewDevelopment()
		}

		if err != nil {
			// Fallback to nop logger if initialization fails.
			base = zap.NewNop()
		}

		mu.Lock()
		sugar = base.Sugar()
		mu.Unlock()
	})
}

// Get returns the global sugared logger.
// If Init has not been called, it initializes a development logger.
func Get() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s != nil {
		return s
	}
	Init("development")
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Named returns a child of the global logger tagged with a component name.
func Named(name string) *zap.SugaredLogger {
	return Get().Named(name)
}

// Replace swaps the global logger, returning a function that restores the
// previous one. Tests use it with zaptest/observer.
func Replace(base *zap.Logger) func() {
	Init("development")
	mu.Lock()
	prev := sugar
	sugar = base.Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		sugar = prev
		mu.Unlock()
	}
}

// Sync flushes any buffered log entries. Call this before application exit.
func Sync() {
	if s := Get(); s != nil {
		_ = s.Sync()
	}
}
