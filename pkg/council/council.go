// Package council provides the public API for embedding the council service.
// This is the stable API for external consumers.
package council

import (
	core "github.com/tjfontaine/polyglot-council/internal/council"
	"github.com/tjfontaine/polyglot-council/internal/runtime"
)

// App is the council service.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// Request is one question put to the council.
type Request = core.Request

// New creates a new App with the given options.
// Example:
//
//	app, err := council.New(
//	    council.WithFileConfig("config.yaml"),
//	    council.WithSQLite("./data/council.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite          = runtime.WithSQLite
	WithMemoryStorage   = runtime.WithMemoryStorage
	WithStorageProvider = runtime.WithStorageProvider

	// Advanced options
	WithReasoner = runtime.WithReasoner
	WithLogger   = runtime.WithLogger
)
