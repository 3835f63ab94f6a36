// Package report mirrors unexpected errors to Rollbar alongside the standard log.
package report

import (
	"log"
	"sync/atomic"

	"github.com/rollbar/rollbar-go"
)

var enabled atomic.Bool

// Init configures Rollbar. An empty token leaves reporting log-only.
func Init(token, env, codeVersion string) {
	if token == "" {
		rollbar.SetEnabled(false)
		return
	}
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetCodeVersion(codeVersion)
	rollbar.SetEnabled(true)
	enabled.Store(true)
}

// Error logs err and forwards it to Rollbar with extras as custom data.
func Error(msg string, err error, extras map[string]interface{}) {
	log.Printf("%s: %v %v", msg, err, extras)
	if !enabled.Load() {
		return
	}
	data := map[string]interface{}{"message": msg}
	for k, v := range extras {
		data[k] = v
	}
	rollbar.Error(err, data)
}

// Warn logs a warning and forwards it to Rollbar.
func Warn(msg string, extras map[string]interface{}) {
	log.Printf("warning: %s %v", msg, extras)
	if !enabled.Load() {
		return
	}
	rollbar.Warning(msg, extras)
}

// Close flushes queued reports. Call before the process exits.
func Close() {
	if enabled.Load() {
		rollbar.Wait()
	}
}
