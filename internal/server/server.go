// Пакет server — HTTP-сервер Package Store с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/package-store/internal/api/errors"
	"github.com/bigkaa/goartstore/package-store/internal/api/middleware"
	"github.com/bigkaa/goartstore/package-store/internal/api/openapi"
	"github.com/bigkaa/goartstore/package-store/internal/config"
)

// Server — HTTP-сервер Package Store.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// handler — реализация openapi.ServerInterface.
func New(cfg *config.Config, logger *slog.Logger, handler openapi.ServerInterface) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер: middleware, маршруты контракта,
// ответы 404/405 в едином формате ошибок.
func NewRouter(logger *slog.Logger, handler openapi.ServerInterface) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError,
			"Метод "+r.Method+" не поддерживается")
	})

	openapi.HandlerFromMux(handler, router, paramErrorHandler)
	return router
}

// paramErrorHandler отвечает 400 на ошибки разбора параметров пути.
func paramErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	apierrors.ValidationError(w, err.Error())
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с таймаутом
// cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...",
		slog.Duration("timeout", s.cfg.ShutdownTimeout),
	)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
