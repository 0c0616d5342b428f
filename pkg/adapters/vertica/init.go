// Package vertica provides the Vertica adapter for leapvertica.
//
// This file registers the Vertica adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapvertica/pkg/adapters/vertica"
package vertica

import (
	"log/slog"

	"github.com/leapstack-labs/leapvertica/pkg/adapter"
)

func init() {
	adapter.Register(Name, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
