package app

import (
	"context"
	"fmt"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	assessmentsvc "github.com/R3E-Network/sustainability_layer/internal/app/services/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/services/certification"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage/memory"
	"github.com/R3E-Network/sustainability_layer/internal/app/system"
	"github.com/R3E-Network/sustainability_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Assessments  storage.AssessmentStore
	Certificates storage.CertificateStore
}

// Option customises the application during New.
type Option func(*options)

type options struct {
	assessmentCap  *int
	certificateCap *int
}

// WithAssessmentHistoryCap bounds the assessments kept per farm. Zero removes
// the bound.
func WithAssessmentHistoryCap(capacity int) Option {
	return func(o *options) { o.assessmentCap = &capacity }
}

// WithCertificateHistoryCap bounds the certificates kept per farm. Zero
// removes the bound.
func WithCertificateHistoryCap(capacity int) Option {
	return func(o *options) { o.certificateCap = &capacity }
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Assessments   *assessmentsvc.Service
	Certification *certification.Service
}

// New builds a fully initialised application with the provided stores. The
// registry owner is the only principal allowed to issue, renew and revoke
// certificates.
func New(stores Stores, owner auth.Principal, log *logger.Logger, opts ...Option) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("registry owner is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mem := memory.New()
	if stores.Assessments == nil {
		stores.Assessments = mem
	}
	if stores.Certificates == nil {
		stores.Certificates = mem
	}

	assessments := assessmentsvc.New(stores.Assessments, log.Named("assessment"))
	if o.assessmentCap != nil {
		assessments.WithHistoryCapacity(*o.assessmentCap)
	}
	registry := certification.New(stores.Certificates, owner, log.Named("certification"))
	if o.certificateCap != nil {
		registry.WithHistoryCapacity(*o.certificateCap)
	}

	manager := system.NewManager()

	return &Application{
		manager:       manager,
		log:           log,
		Assessments:   assessments,
		Certification: registry,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the registered service names in start order.
func (a *Application) Services() []string {
	return a.manager.Services()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	a.log.WithField("services", a.manager.Services()).Info("starting application")
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
