// Package app provides the application composition layer for the
// sustainability certification engine.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── stores.go           # Storage backend selection
//	├── domain/             # Domain models and pure scoring rules
//	│   ├── assessment/     # Scores, tiers, farm metrics
//	│   └── certificate/    # Certificates, metadata, stats
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # AssessmentStore, CertificateStore
//	│   ├── memory/         # In-memory implementation
//	│   ├── postgres/       # PostgreSQL implementation
//	│   └── redis/          # Redis implementation
//	├── services/           # Assessment engine and certification registry
//	├── jobs/               # Background certificate sweeper
//	├── auth/               # Principals and owner checks
//	├── system/             # Lifecycle manager
//	└── metrics/            # Prometheus collectors
//
// # Responsibilities
//
// The app package composes services with their stores, registers them with
// the lifecycle manager and exposes them to the command. Business rules live
// in services and domain; app holds no logic of its own.
//
// # Dependency Direction
//
//	cmd/certengine/
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/ (business logic)
//	      │           │
//	      │           └──► internal/app/domain/
//	      │
//	      ├──► internal/app/storage/
//	      │
//	      └──► internal/platform/migrations
package app
