package obslog

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewAppliesLevelAndFormat(t *testing.T) {
	l := New("health", Config{Level: "debug", Format: "text"})
	if l.Logger.Level != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", l.Logger.Level)
	}
	if _, ok := l.Logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("formatter = %T, want *logrus.TextFormatter", l.Logger.Formatter)
	}
}

func TestNewDefaultsToInfoOnUnknownLevel(t *testing.T) {
	l := New("health", Config{Level: "not-a-level", Format: "json"})
	if l.Logger.Level != logrus.InfoLevel {
		t.Errorf("level = %v, want info fallback", l.Logger.Level)
	}
	if _, ok := l.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want *logrus.JSONFormatter", l.Logger.Formatter)
	}
}

func TestWithFieldCarriesComponent(t *testing.T) {
	l := NewDefault("notify")
	entry := l.WithField("tier", 1)
	if entry.Data["component"] != "notify" {
		t.Errorf("component field = %v, want notify", entry.Data["component"])
	}
	if entry.Data["tier"] != 1 {
		t.Errorf("tier field = %v, want 1", entry.Data["tier"])
	}
}

func TestWithFieldsMergesComponent(t *testing.T) {
	l := NewDefault("router")
	entry := l.WithFields(logrus.Fields{"cmd": "status"})
	if entry.Data["component"] != "router" || entry.Data["cmd"] != "status" {
		t.Errorf("unexpected fields: %+v", entry.Data)
	}
}

func TestWithErrorCarriesComponentAndError(t *testing.T) {
	l := NewDefault("oracle")
	entry := l.WithError(errNotFound)
	if entry.Data["component"] != "oracle" {
		t.Errorf("component field = %v, want oracle", entry.Data["component"])
	}
	if entry.Data[logrus.ErrorKey] != errNotFound {
		t.Errorf("error field = %v, want %v", entry.Data[logrus.ErrorKey], errNotFound)
	}
}

func TestEntryCarriesComponentOnly(t *testing.T) {
	l := NewDefault("supervisor")
	entry := l.Entry()
	if entry.Data["component"] != "supervisor" {
		t.Errorf("component field = %v, want supervisor", entry.Data["component"])
	}
}

var errNotFound = sentinelError("not found")

type sentinelError string

func (e sentinelError) Error() string { return string(e) }
