package factories

import (
	"fmt"

	"turnmemory/core"
	"turnmemory/services/memory"
)

// BuildSink creates the memory sink selected by cfg.Driver. The sink is
// shared by every session and closed by the caller on shutdown.
func BuildSink(cfg MemoryConfig, logger *core.Logger) (memory.Sink, error) {
	switch cfg.Driver {
	case MemoryDriverBrain:
		sink, err := memory.NewBrainSink(cfg.Brain)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case MemoryDriverSQLite, "":
		var embedder memory.Embedder
		if cfg.Embedding != nil {
			e, err := memory.NewOpenAIEmbedder(*cfg.Embedding)
			if err != nil {
				return nil, err
			}
			embedder = e
		}
		sink, err := memory.OpenSQLiteSink(cfg.SQLite, embedder, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("factories: unknown memory driver %q", cfg.Driver)
	}
}
