package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. The first group of
// fields can be applied to a running service; RestartRequired lists the
// sections whose changes only take effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MutedChanged bool
	NewMuted     bool

	MessagesChanged bool

	RestartRequired []string
}

// Empty reports whether nothing changed at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MutedChanged && !d.MessagesChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Session.StartMuted != new.Session.StartMuted {
		d.MutedChanged = true
		d.NewMuted = new.Session.StartMuted
	}
	if old.Messages != new.Messages {
		d.MessagesChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldSession, newSession := old.Session, new.Session
	oldSession.StartMuted, newSession.StartMuted = false, false

	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"languages", old.Languages, new.Languages},
		{"session", oldSession, newSession},
		{"audio", old.Audio, new.Audio},
		{"providers", old.Providers, new.Providers},
		{"translation", old.Translation, new.Translation},
		{"voices", old.Voices, new.Voices},
		{"history", old.History, new.History},
		{"permission", old.Permission, new.Permission},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	slices.Sort(d.RestartRequired)
	return d
}
