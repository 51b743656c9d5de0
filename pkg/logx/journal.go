package logx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/rs/zerolog"
)

// journalWriter forwards zerolog JSON lines to systemd-journald with a mapped
// priority and the structured fields attached as journal variables.
//
// It implements zerolog.LevelWriter so the priority comes from the event level
// rather than from re-parsing the "level" field.
type journalWriter struct {
	min zerolog.Level
}

func newJournalWriter(min zerolog.Level) (*journalWriter, error) {
	if !journal.Enabled() {
		return nil, errors.New("journald socket not present")
	}
	return &journalWriter{min: min}, nil
}

func (w *journalWriter) Write(p []byte) (int, error) {
	// Default to info when WriteLevel isn't used.
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *journalWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min {
		return len(p), nil
	}

	msg, vars := splitJournalLine(p)
	if msg == "" {
		return len(p), nil
	}
	// Best-effort: journald being momentarily unreachable must never fail logging.
	_ = journal.Send(msg, journalPriority(level), vars)
	return len(p), nil
}

func journalPriority(level zerolog.Level) journal.Priority {
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return journal.PriDebug
	case zerolog.InfoLevel:
		return journal.PriInfo
	case zerolog.WarnLevel:
		return journal.PriWarning
	case zerolog.ErrorLevel:
		return journal.PriErr
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return journal.PriCrit
	default:
		return journal.PriInfo
	}
}

// splitJournalLine decodes a zerolog JSON line into the human message plus
// journal variables. Journal variable names must be uppercase ASCII.
func splitJournalLine(p []byte) (string, map[string]string) {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return strings.TrimSpace(string(p)), nil
	}

	msg, _ := m["message"].(string)
	if msg == "" {
		msg, _ = m["msg"].(string)
	}

	vars := make(map[string]string, len(m))
	for k, v := range m {
		switch k {
		case "time", "level", "message", "msg":
			continue
		}
		vars[journalVarName(k)] = fmt.Sprint(v)
	}
	if len(vars) == 0 {
		vars = nil
	}
	return msg, vars
}

func journalVarName(k string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(k) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "F_" + s
	}
	return s
}
