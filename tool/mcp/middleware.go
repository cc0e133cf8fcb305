package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrInputTooLarge is returned when a tool argument exceeds the configured size limit.
var ErrInputTooLarge = errors.New("input too large")

// requestLogger logs every MCP method the server receives together with its duration.
func requestLogger(logger *slog.Logger) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			start := time.Now()
			res, err := next(ctx, method, req)
			if err != nil {
				logger.Warn("mcp request failed", "method", method, "duration", time.Since(start), "error", err)
			} else {
				logger.Debug("mcp request", "method", method, "duration", time.Since(start))
			}
			return res, err
		}
	}
}

// checkSize enforces the per-request input limit; limit <= 0 disables it.
func checkSize(limit, n int) error {
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: %d (limit %d)", ErrInputTooLarge, n, limit)
	}
	return nil
}
