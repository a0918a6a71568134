package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter routes watermill's internal logs through ILogger.
type WatermillAdapter struct {
	log    ILogger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)

func NewWatermillAdapter(log ILogger) *WatermillAdapter {
	return &WatermillAdapter{log: log}
}

func (w *WatermillAdapter) details(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(w.fields)+len(fields))
	for k, v := range w.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (w *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	d := w.details(fields)
	if err != nil {
		d["error"] = err.Error()
	}
	w.log.Error("WATERMILL", msg, d)
}

func (w *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	w.log.Info("WATERMILL", msg, w.details(fields))
}

func (w *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug("WATERMILL", msg, w.details(fields))
}

func (w *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	w.log.Debug("WATERMILL", msg, w.details(fields))
}

func (w *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{log: w.log, fields: w.details(fields)}
}
