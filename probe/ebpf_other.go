//go:build !linux

package probe

import (
	"context"

	"cdr.dev/slog/v3"
)

func OpenEBPF(context.Context, string, slog.Logger) (Source, error) {
	return nil, ErrUnsupported
}
