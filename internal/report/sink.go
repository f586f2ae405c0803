package report

import (
	"context"

	"worldeconomics/internal/pipeline"
)

// StoreSink persists task outputs into a Store, namespaced by run id.
type StoreSink struct {
	Store Store
}

var _ pipeline.Sink = StoreSink{}

func (s StoreSink) Persist(ctx context.Context, runID, file, text string) (string, error) {
	runID, file, err := cleanKey(runID, file)
	if err != nil {
		return "", err
	}
	if err := s.Store.Put(ctx, runID, file, []byte(text)); err != nil {
		return "", err
	}
	return objectKey(runID, file), nil
}
