package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// sensitiveKeys are never written in clear. Contact numbers and the spoken
// trigger phrase routinely end up in log fields.
var sensitiveKeys = map[string]bool{
	"phone":        true,
	"phone_number": true,
	"to":           true,
	"code_word":    true,
	"transcript":   true,
}

// mask keeps the last two characters so operators can still tell contacts apart.
func mask(v interface{}) string {
	s := fmt.Sprint(v)
	if len(s) <= 2 {
		return "**"
	}
	return strings.Repeat("*", len(s)-2) + s[len(s)-2:]
}

// fieldValue prepares a field for output. error values lose their message
// under encoding/json, so they are flattened first.
func fieldValue(key string, v interface{}) interface{} {
	if sensitiveKeys[key] {
		return mask(v)
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func bufferFor(entry *logrus.Entry) *bytes.Buffer {
	if entry.Buffer != nil {
		return entry.Buffer
	}
	return &bytes.Buffer{}
}

type JSONFormatter struct {
	TimestampFormat string
	AppName         string
	Version         string
}

func (f *JSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Data)+6)
	for k, v := range entry.Data {
		data[k] = fieldValue(k, v)
	}

	layout := f.TimestampFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}
	data["timestamp"] = entry.Time.UTC().Format(layout)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if f.AppName != "" {
		data["app"] = f.AppName
	}
	if f.Version != "" {
		data["version"] = f.Version
	}
	if entry.HasCaller() {
		data["caller"] = fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)
	}

	b := bufferFor(entry)
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("encode log entry: %w", err)
	}
	return b.Bytes(), nil
}

// TextFormatter writes one line per entry. The component and session id are
// pulled out of the field list and printed ahead of the message so a session
// can be followed with grep.
type TextFormatter struct {
	TimestampFormat string
	Colors          bool
	AppName         string
}

var levelColors = map[logrus.Level]string{
	logrus.PanicLevel: "\033[31m",
	logrus.FatalLevel: "\033[31m",
	logrus.ErrorLevel: "\033[31m",
	logrus.WarnLevel:  "\033[33m",
	logrus.InfoLevel:  "\033[36m",
}

func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = "2006-01-02 15:04:05"
	}

	level := strings.ToUpper(entry.Level.String())
	if f.Colors {
		color, ok := levelColors[entry.Level]
		if !ok {
			color = "\033[37m"
		}
		level = color + level + "\033[0m"
	}

	b := bufferFor(entry)
	fmt.Fprintf(b, "%s [%s] ", entry.Time.Format(layout), level)
	if f.AppName != "" {
		fmt.Fprintf(b, "[%s] ", f.AppName)
	}
	if c, ok := entry.Data["component"]; ok {
		fmt.Fprintf(b, "%v: ", c)
	}
	if sid, ok := entry.Data["session_id"]; ok {
		fmt.Fprintf(b, "(%v) ", sid)
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, "[%s:%d] ", entry.Caller.File, entry.Caller.Line)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "component" || k == "session_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, fieldValue(k, entry.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
