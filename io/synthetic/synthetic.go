// Package synthetic produces records and load.
// Typically used to smoke and soak test a bridge without a real upstream.
package synthetic

import (
	"math/rand/v2"
	"time"

	"tern.dev/streambridge"
)

// SourceConfig controls the generated stream.
type SourceConfig struct {
	NumRecords          int
	KeySize, ValueSize  int           // bytes of random payload per record
	SleepPerInputRecord time.Duration // simulates a slow upstream
}

// New returns a Source emitting NumRecords random byte records.
func New(cfg SourceConfig) streambridge.Source {
	if cfg.KeySize <= 0 {
		cfg.KeySize = 8
	}
	if cfg.ValueSize <= 0 {
		cfg.ValueSize = 32
	}
	return &source{cfg: cfg}
}

type source struct {
	cfg     SourceConfig
	emitted int
}

func (s *source) HasNext() bool {
	return s.emitted < s.cfg.NumRecords
}

func (s *source) Next() any {
	if s.cfg.SleepPerInputRecord > 0 {
		time.Sleep(s.cfg.SleepPerInputRecord)
	}
	s.emitted++
	rec := make([]byte, s.cfg.KeySize+s.cfg.ValueSize)
	for i := range rec {
		rec[i] = byte(rand.IntN(256))
	}
	return rec
}
