package jobs

import (
	"time"

	"github.com/smazurov/encodenode/internal/config"
	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/events"
	"github.com/smazurov/encodenode/internal/metrics"
)

// Sources reported in EncodersProbedEvent.
const (
	SourceLoad   = "load"
	SourceReload = "reload"
)

// LoadEncoderResults replaces the registry with saved probe results.
func (s *Service) LoadEncoderResults(path string) error {
	results, err := encoders.LoadResults(path)
	if err != nil {
		return err
	}
	s.ApplyEncoderResults(results, SourceLoad)
	return nil
}

// ApplyEncoderResults installs the working encoders of results and
// announces the change.
func (s *Service) ApplyEncoderResults(results *encoders.Results, source string) {
	registry := results.Registry()
	s.SetRegistry(registry)
	metrics.SetWorkingEncoders(familyCounts(registry))
	s.bus.Publish(events.EncodersProbedEvent{
		Source:    source,
		Working:   registry.Names(),
		Failed:    len(results.Failed),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// WatchEncoderResults reloads the registry whenever the results file is
// rewritten, for example by probe-encoders. The caller stops the returned
// watcher.
func (s *Service) WatchEncoderResults(path string, opts ...config.WatcherOption[*encoders.Results]) (*config.Watcher[*encoders.Results], error) {
	w := config.NewConfigWatcher(path, encoders.LoadResults, s.logger.With("component", "encoders"), opts...)
	w.OnReload(func(r *encoders.Results) {
		s.ApplyEncoderResults(r, SourceReload)
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

func familyCounts(r *encoders.Registry) map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Encoders() {
		counts[string(e.Family)]++
	}
	return counts
}
