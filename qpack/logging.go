package qpack

import "go.uber.org/zap"

// logged is an embeddable struct giving Encoder/Decoder a zap logger,
// generalizing hc/codec.go's logged/initLogging/SetLogger (which wraps a
// bare *log.Logger). Defaulting to zap.NewNop() keeps the codec silent
// until an embedder opts in, matching the teacher's "logging is off unless
// set" default.
type logged struct {
	log *zap.Logger
}

func (l *logged) initLogging(name string) {
	l.log = zap.NewNop().Named(name)
}

// SetLogger installs an embedder-supplied logger, replacing the no-op
// default. Passing nil restores the no-op logger.
func (l *logged) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	l.log = log
}
