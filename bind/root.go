package bind

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaisql/databind/token"
)

// Root is what the binding operations of one configuration share:
// the configuration, the converter caches and the converter factories.
// It is safe for concurrent use.
type Root struct {
	config     *Config
	decoders   *ConverterCache[Decoder]
	encoders   *ConverterCache[Encoder]
	decFactory DecoderFactory
	encFactory EncoderFactory
	metrics    *prometheus.CounterVec
}

// NewRoot returns a root using the given factories to build converters.
func NewRoot(cfg *Config, df DecoderFactory, ef EncoderFactory) *Root {
	if cfg == nil {
		cfg = NewConfig()
	}
	m := newCacheMetrics()
	return &Root{
		config:     cfg,
		decoders:   newConverterCache[Decoder]("decoder", m),
		encoders:   newConverterCache[Encoder]("encoder", m),
		decFactory: df,
		encFactory: ef,
		metrics:    m,
	}
}

func (r *Root) Config() *Config { return r.config }

func (r *Root) Decoders() *ConverterCache[Decoder] { return r.decoders }
func (r *Root) Encoders() *ConverterCache[Encoder] { return r.encoders }

// Collectors returns the metrics of the converter caches, to be registered
// by the caller.
func (r *Root) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.metrics}
}

// NewDecodeContext returns a context reading from cur.
// A nil cfg uses the configuration of the root.
func (r *Root) NewDecodeContext(cfg *Config, cur token.Cursor) *Context {
	return newContext(r, cfg, cur)
}

// NewEncodeContext returns a context for one encoding operation.
func (r *Root) NewEncodeContext(cfg *Config) *Context {
	return newContext(r, cfg, nil)
}
