// Package logging provides a chainable field builder on top of logrus so
// every component logs the same standard keys (component, operation,
// resource, trace_id, ...) instead of ad-hoc field names.
package logging

import "time"

// Fields is a chainable logrus.Fields builder.
type Fields map[string]interface{}

func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus satisfies logrus.Fields' underlying type so callers can pass
// Fields directly to logger.WithFields.
func (f Fields) ToLogrus() map[string]interface{} {
	return f
}

// DatabaseFields is a shortcut for the common (component=database,
// operation, resource_type=table, resource_name) combination.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields is a shortcut for outbound/inbound HTTP call logging.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// EventFields is a shortcut for bus publish/consume logging.
func EventFields(operation, eventType string) Fields {
	return NewFields().Component("eventbus").Operation(operation).Resource("event_type", eventType)
}

// AnalysisFields is a shortcut for pipeline stage logging.
func AnalysisFields(phase string, analysisID string) Fields {
	return NewFields().Component("analysis").Operation(phase).Resource("analysis_record", analysisID)
}

// SessionFields is a shortcut for session/question coordinator logging.
func SessionFields(operation, sessionID, userID string) Fields {
	return NewFields().Component("session").Operation(operation).Resource("session", sessionID).UserID(userID)
}

// AIFields is a shortcut for AI router / model call logging.
func AIFields(operation, model string) Fields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields is a shortcut for monitor metric-sample logging.
func MetricsFields(operation, metricName string, value float64) Fields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields is a shortcut for auth/authorization-adjacent logging.
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields is a shortcut for latency/success logging.
func PerformanceFields(operation string, d time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(d).Custom("success", success)
}
