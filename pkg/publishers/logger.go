package publishers

// Logger defines the logging surface publishers rely on.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type discardLogger struct{}

func (discardLogger) InfoObj(string, string, interface{})  {}
func (discardLogger) DebugObj(string, string, interface{}) {}
func (discardLogger) WarnObj(string, string, interface{})  {}
func (discardLogger) ErrorObj(string, string, interface{}) {}

func orDiscard(log Logger) Logger {
	if log == nil {
		return discardLogger{}
	}
	return log
}

// targetLogger stamps target_id and target_type on every record a publisher
// emits. Non-map payloads are nested under "detail".
type targetLogger struct {
	base Logger
	id   string
	typ  string
}

func forTarget(log Logger, id, typ string) Logger {
	return targetLogger{base: orDiscard(log), id: id, typ: typ}
}

func (l targetLogger) InfoObj(msg, key string, obj interface{}) {
	l.base.InfoObj(msg, key, l.stamp(obj))
}

func (l targetLogger) DebugObj(msg, key string, obj interface{}) {
	l.base.DebugObj(msg, key, l.stamp(obj))
}

func (l targetLogger) WarnObj(msg, key string, obj interface{}) {
	l.base.WarnObj(msg, key, l.stamp(obj))
}

func (l targetLogger) ErrorObj(msg, key string, obj interface{}) {
	l.base.ErrorObj(msg, key, l.stamp(obj))
}

func (l targetLogger) stamp(obj interface{}) map[string]any {
	fields, ok := obj.(map[string]any)
	out := make(map[string]any, len(fields)+2)
	if ok {
		for k, v := range fields {
			out[k] = v
		}
	} else if obj != nil {
		out["detail"] = obj
	}
	out["target_id"] = l.id
	out["target_type"] = l.typ
	return out
}
