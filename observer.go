package xmlstream

import "github.com/trickstertwo/xlog"

// NewLoggingBootstraps returns bootstraps that log the stream lifecycle
// via xlog (Adapter to platform logging). Install them on a factory to get
// telemetry on every connection, or on a single dispatcher-capable target.
func NewLoggingBootstraps(l *xlog.Logger) *Bootstraps {
	b := &Bootstraps{}
	if l == nil {
		return b
	}
	b.AddBootstrap(StreamStartEvent, func(payload any) {
		if e, ok := payload.(*Element); ok {
			l.Info().Str("root", e.Name).Msg("xmlstream: stream start")
		}
	})
	b.AddBootstrap(StreamElementEvent, func(payload any) {
		if e, ok := payload.(*Element); ok {
			l.Debug().Str("name", e.Name).Msg("xmlstream: element")
		}
	})
	b.AddBootstrap(StreamErrorEvent, func(payload any) {
		err, _ := payload.(error)
		l.Warn().Err(err).Msg("xmlstream: stream error")
	})
	b.AddBootstrap(StreamEndEvent, func(payload any) {
		err, _ := payload.(error)
		if err != nil {
			l.Info().Err(err).Msg("xmlstream: stream end")
			return
		}
		l.Info().Msg("xmlstream: stream end")
	})
	return b
}
