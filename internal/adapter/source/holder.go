package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/usecase/lookup"
)

// Loader produces a fresh table.
type Loader func(ctx context.Context) (*Table, error)

// Holder owns the current dataset. Readers always see a complete table;
// Refresh swaps in a new one atomically and keeps the old one on failure.
type Holder struct {
	load    Loader
	current atomic.Pointer[Table]
	logger  *slog.Logger
}

var _ lookup.Dataset = (*Holder)(nil)

// NewHolder creates an empty holder. Call Refresh to load the first table.
func NewHolder(load Loader, logger *slog.Logger) *Holder {
	return &Holder{load: load, logger: logger}
}

// Refresh reloads the dataset.
func (h *Holder) Refresh(ctx context.Context) error {
	t, err := h.load(ctx)
	if err != nil {
		h.logger.Warn("dataset refresh failed", "error", err)
		return domain.WrapOp("Holder.Refresh", err)
	}
	if t == nil {
		return domain.NewDomainError("Holder.Refresh", domain.ErrDatasetLoad, "loader returned no table")
	}
	prev := h.current.Swap(t)
	args := []any{"dataset", t.Name(), "rows", t.Len()}
	if prev != nil {
		args = append(args, "previous_rows", prev.Len())
	}
	h.logger.Info("dataset loaded", args...)
	return nil
}

// Current returns the loaded table, or nil before the first successful Refresh.
func (h *Holder) Current() *Table { return h.current.Load() }

// Loaded reports whether a Refresh has succeeded.
func (h *Holder) Loaded() bool { return h.current.Load() != nil }

// Select implements lookup.Dataset against the current table.
func (h *Holder) Select(sel lookup.Selection) (domain.RawResponse, bool) {
	t := h.current.Load()
	if t == nil {
		return nil, false
	}
	return t.Select(sel)
}

// String describes the holder state for diagnostics.
func (h *Holder) String() string {
	t := h.current.Load()
	if t == nil {
		return "dataset not loaded"
	}
	return fmt.Sprintf("%s (%d rows, loaded %s)", t.Name(), t.Len(), t.LoadedAt().Format("2006-01-02 15:04:05Z"))
}
