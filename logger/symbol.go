package logger

import (
	"go.uber.org/zap"

	"github.com/teranos/verdict/sym"
)

// WithSymbol tags every entry of l with a log marker symbol. Symbols travel as
// the FieldSymbol field so JSON logs stay greppable; the console encoder
// renders them in front of the message.
func WithSymbol(l *zap.SugaredLogger, symbol string) *zap.SugaredLogger {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	return l.With(FieldSymbol, symbol)
}

// AddPulseSymbol marks polling cycles and admission (꩜)
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger { return WithSymbol(l, sym.Pulse) }

// AddPulseOpenSymbol marks submissions and startup (✿)
func AddPulseOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return WithSymbol(l, sym.PulseOpen)
}

// AddPulseCloseSymbol marks shutdown (❀)
func AddPulseCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return WithSymbol(l, sym.PulseClose)
}

// AddDBSymbol marks ledger storage (⊔)
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger { return WithSymbol(l, sym.DB) }

// AddAxSymbol marks collection and dataset sinks (⋈)
func AddAxSymbol(l *zap.SugaredLogger) *zap.SugaredLogger { return WithSymbol(l, sym.AX) }

// AddIXSymbol marks partitioning, uploads and input watching (⨳)
func AddIXSymbol(l *zap.SugaredLogger) *zap.SugaredLogger { return WithSymbol(l, sym.IX) }
