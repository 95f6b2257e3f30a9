package contactsource

import (
	"context"
	"fmt"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
)

// Source is an ordered, insertion-stable sequence of contacts. Keys increase
// with insertion order and are never reused.
type Source interface {
	Count(ctx context.Context, sourceID string) (int, error)
	// Next returns the first contact with key > afterKey that is not flagged
	// do-not-call, or nil when the source is exhausted.
	Next(ctx context.Context, sourceID string, afterKey int64) (*model.Contact, error)
	// Remaining counts dialable contacts after afterKey.
	Remaining(ctx context.Context, sourceID string, afterKey int64) (int, error)
	MarkDoNotCall(ctx context.Context, sourceID string, key int64) error
}

// Registry resolves a campaign's source kind to its implementation.
type Registry map[model.SourceKind]Source

func (r Registry) For(kind model.SourceKind) (Source, error) {
	src, ok := r[kind]
	if !ok {
		return nil, appErrors.NewConfigError("resolve contact source",
			fmt.Errorf("%w: unsupported kind %q", appErrors.ErrSourceNotFound, kind))
	}
	return src, nil
}
