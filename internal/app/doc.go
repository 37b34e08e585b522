// Package app composes the roster services into a running application.
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # player and wallet models
//	├── services/           # players (records, ranking, commands) and wallet panel
//	├── storage/            # KeyValueStore with memory, sqlstore and redis backends
//	├── httpapi/            # HTML pages and JSON API
//	├── runtime/            # config-driven bootstrap and HTTP server
//	├── system/             # lifecycle manager
//	└── metrics/            # Prometheus collectors
//
// Business rules live in services; app only wires them to a store and
// hands them to the system manager.
package app
