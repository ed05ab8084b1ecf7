package services

import (
	"github.com/fyrsmithlabs/signald/internal/classification"
	"github.com/fyrsmithlabs/signald/internal/dedup"
	"github.com/fyrsmithlabs/signald/internal/ingest"
	"github.com/fyrsmithlabs/signald/internal/initiatives"
	"github.com/fyrsmithlabs/signald/internal/notify"
	"github.com/fyrsmithlabs/signald/internal/processor"
	"github.com/fyrsmithlabs/signald/internal/secrets"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/fyrsmithlabs/signald/internal/synthesis"
)

// Registry provides access to all signald services.
type Registry interface {
	Store() *store.Store
	Ingest() *ingest.Service
	Processor() *processor.Processor
	Classifier() *classification.Engine
	Dedup() *dedup.Service
	Synthesis() *synthesis.Engine
	Notifier() *notify.Filter
	Initiatives() *initiatives.Registry
	Redactor() secrets.Redactor
}

// Options configures the registry with service instances.
type Options struct {
	Store       *store.Store
	Ingest      *ingest.Service
	Processor   *processor.Processor
	Classifier  *classification.Engine
	Dedup       *dedup.Service
	Synthesis   *synthesis.Engine
	Notifier    *notify.Filter
	Initiatives *initiatives.Registry
	Redactor    secrets.Redactor
}

// registry is the concrete implementation of Registry.
type registry struct {
	store       *store.Store
	ingest      *ingest.Service
	processor   *processor.Processor
	classifier  *classification.Engine
	dedup       *dedup.Service
	synthesis   *synthesis.Engine
	notifier    *notify.Filter
	initiatives *initiatives.Registry
	redactor    secrets.Redactor
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		store:       opts.Store,
		ingest:      opts.Ingest,
		processor:   opts.Processor,
		classifier:  opts.Classifier,
		dedup:       opts.Dedup,
		synthesis:   opts.Synthesis,
		notifier:    opts.Notifier,
		initiatives: opts.Initiatives,
		redactor:    opts.Redactor,
	}
}

func (r *registry) Store() *store.Store                { return r.store }
func (r *registry) Ingest() *ingest.Service            { return r.ingest }
func (r *registry) Processor() *processor.Processor    { return r.processor }
func (r *registry) Classifier() *classification.Engine { return r.classifier }
func (r *registry) Dedup() *dedup.Service              { return r.dedup }
func (r *registry) Synthesis() *synthesis.Engine       { return r.synthesis }
func (r *registry) Notifier() *notify.Filter           { return r.notifier }
func (r *registry) Initiatives() *initiatives.Registry { return r.initiatives }
func (r *registry) Redactor() secrets.Redactor         { return r.redactor }
