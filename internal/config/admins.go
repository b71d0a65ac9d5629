package config

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// AdminList is the set of operator emails allowed to act on any business.
// It is replaced wholesale on reload, so readers never see a partial set.
type AdminList struct {
	static []string
	set    atomic.Pointer[map[string]struct{}]
	mu     sync.Mutex // serializes reloads
}

func NewAdminList(emails []string) *AdminList {
	a := &AdminList{static: emails}
	a.replace(nil)
	return a
}

// IsAdmin matches case-insensitively.
func (a *AdminList) IsAdmin(email string) bool {
	if a == nil || email == "" {
		return false
	}
	m := a.set.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func (a *AdminList) Len() int {
	if m := a.set.Load(); m != nil {
		return len(*m)
	}
	return 0
}

// Reload replaces the file-sourced part of the list. Emails from
// ADMIN_EMAILS are always kept.
func (a *AdminList) Reload(fromFile []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replace(fromFile)
}

func (a *AdminList) replace(fromFile []string) {
	m := make(map[string]struct{}, len(a.static)+len(fromFile))
	for _, list := range [][]string{a.static, fromFile} {
		for _, e := range list {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
				m[e] = struct{}{}
			}
		}
	}
	a.set.Store(&m)
}

// WatchFile loads the `admins` key from a YAML/JSON file and keeps the
// list in sync with it.
func (a *AdminList) WatchFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	a.Reload(v.GetStringSlice("admins"))

	// viper re-reads the file before invoking the callback
	v.OnConfigChange(func(e fsnotify.Event) {
		a.Reload(v.GetStringSlice("admins"))
		log.Info().Str("file", e.Name).Int("admins", a.Len()).Msg("admin list reloaded")
	})
	v.WatchConfig()
	return nil
}
