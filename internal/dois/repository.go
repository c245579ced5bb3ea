package dois

import (
	"context"
	"errors"
	"iter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/events"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/suffix"
)

const tracerName = "github.com/MarcoPoloResearchLab/pubids/backend/internal/dois"

// ContextChecker reports whether a context exists.
type ContextChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Publisher delivers repository events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, events.Event) {}

// RepositoryConfig describes the dependencies of a Repository.
type RepositoryConfig struct {
	DAO      *DAO
	Contexts ContextChecker
	Events   Publisher
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Repository validates, persists and announces DOI changes.
type Repository struct {
	dao      *DAO
	contexts ContextChecker
	events   Publisher
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewRepository constructs a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.DAO == nil {
		return nil, newServiceError(opRepositoryNew, "missing_dao", errMissingDAO)
	}
	if cfg.Contexts == nil {
		return nil, newServiceError(opRepositoryNew, "missing_contexts", errMissingContexts)
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = noopPublisher{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{dao: cfg.DAO, contexts: cfg.Contexts, events: publisher, tracer: tracer, logger: logger}, nil
}

// NewCollector returns a collector for this repository's DAO.
func (r *Repository) NewCollector() *Collector {
	return r.dao.NewCollector()
}

// NewFromProps builds an unsaved DOI from props.
func (r *Repository) NewFromProps(props map[string]any) (*Doi, error) {
	return NewFromProps(props)
}

// Get returns the DOI with id or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*Doi, error) {
	return r.dao.Get(ctx, id)
}

// GetCount counts the DOIs matching collector, ignoring pagination.
func (r *Repository) GetCount(ctx context.Context, collector *Collector) (int64, error) {
	return r.dao.GetCount(ctx, collector)
}

// GetIDs returns the ids of collector's page.
func (r *Repository) GetIDs(ctx context.Context, collector *Collector) ([]int64, error) {
	return r.dao.GetIDs(ctx, collector)
}

// GetMany lazily yields collector's page.
func (r *Repository) GetMany(ctx context.Context, collector *Collector) iter.Seq2[*Doi, error] {
	return r.dao.GetMany(ctx, collector)
}

// GetIDsBySetting returns ids of DOIs in contextID with a matching setting.
func (r *Repository) GetIDsBySetting(ctx context.Context, name, value string, contextID int64) ([]int64, error) {
	return r.dao.GetIDsBySetting(ctx, name, value, contextID)
}

// Add inserts doi and publishes doi.added.
func (r *Repository) Add(ctx context.Context, doi *Doi) (int64, error) {
	if doi == nil {
		return 0, newServiceError(opAdd, "missing_doi", errNilDoi)
	}
	ctx, span := r.tracer.Start(ctx, opAdd, trace.WithAttributes(attribute.Int64("context_id", doi.ContextID)))
	defer span.End()

	id, err := r.dao.Insert(ctx, doi)
	if err != nil {
		recordSpanError(span, err)
		if errors.Is(err, ErrContextNotFound) {
			return 0, err
		}
		r.logError(opAdd, "insert_failed", err, zap.Int64("context_id", doi.ContextID))
		return 0, newServiceError(opAdd, "insert_failed", err)
	}
	span.SetAttributes(attribute.Int64("doi_id", id))
	r.events.Publish(ctx, events.Event{Kind: events.KindDoiAdded, ContextID: doi.ContextID, Doi: doi.Snapshot()})
	return id, nil
}

// Edit clones doi, merges changes into the clone, publishes doi.edited and
// persists the clone. The returned DOI is re-read from storage.
func (r *Repository) Edit(ctx context.Context, doi *Doi, changes map[string]any) (*Doi, error) {
	if doi == nil {
		return nil, newServiceError(opEdit, "missing_doi", errNilDoi)
	}
	ctx, span := r.tracer.Start(ctx, opEdit, trace.WithAttributes(attribute.Int64("doi_id", doi.ID)))
	defer span.End()

	updated := doi.Clone()
	if err := merge(updated, changes); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	r.events.Publish(ctx, events.Event{
		Kind:      events.KindDoiEdited,
		ContextID: updated.ContextID,
		Doi:       updated.Snapshot(),
		Previous:  doi.Snapshot(),
		Changes:   changes,
	})

	if err := r.dao.Update(ctx, updated); err != nil {
		recordSpanError(span, err)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrContextNotFound) {
			return nil, err
		}
		r.logError(opEdit, "update_failed", err, zap.Int64("doi_id", doi.ID))
		return nil, newServiceError(opEdit, "update_failed", err)
	}

	stored, err := r.dao.Get(ctx, updated.ID)
	if err != nil {
		recordSpanError(span, err)
		r.logError(opEdit, "reload_failed", err, zap.Int64("doi_id", doi.ID))
		return nil, newServiceError(opEdit, "reload_failed", err)
	}
	return stored, nil
}

// Delete publishes doi.deleting, removes doi and publishes doi.deleted.
func (r *Repository) Delete(ctx context.Context, doi *Doi) error {
	if doi == nil {
		return newServiceError(opDelete, "missing_doi", errNilDoi)
	}
	ctx, span := r.tracer.Start(ctx, opDelete, trace.WithAttributes(attribute.Int64("doi_id", doi.ID)))
	defer span.End()

	r.events.Publish(ctx, events.Event{Kind: events.KindDoiDeleting, ContextID: doi.ContextID, Doi: doi.Snapshot()})
	if err := r.dao.Delete(ctx, doi); err != nil {
		recordSpanError(span, err)
		if errors.Is(err, ErrNotFound) {
			return err
		}
		r.logError(opDelete, "delete_failed", err, zap.Int64("doi_id", doi.ID))
		return newServiceError(opDelete, "delete_failed", err)
	}
	r.events.Publish(ctx, events.Event{Kind: events.KindDoiDeleted, ContextID: doi.ContextID, Doi: doi.Snapshot()})
	return nil
}

// DeleteMany deletes every DOI matching collector in one transaction and
// returns how many were removed. doi.deleting fires for each record before its
// removal; doi.deleted fires for all of them after commit. On failure nothing
// is removed and no doi.deleted event is published.
func (r *Repository) DeleteMany(ctx context.Context, collector *Collector) (int, error) {
	ctx, span := r.tracer.Start(ctx, opDeleteMany)
	defer span.End()

	var deleted []*Doi
	err := r.dao.Transaction(ctx, func(tx *DAO) error {
		for doi, err := range tx.GetMany(ctx, collector) {
			if err != nil {
				return err
			}
			r.events.Publish(ctx, events.Event{Kind: events.KindDoiDeleting, ContextID: doi.ContextID, Doi: doi.Snapshot()})
			if err := tx.Delete(ctx, doi); err != nil {
				return err
			}
			deleted = append(deleted, doi)
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		r.logError(opDeleteMany, "transaction_failed", err)
		return 0, newServiceError(opDeleteMany, "transaction_failed", err)
	}

	for _, doi := range deleted {
		r.events.Publish(ctx, events.Event{Kind: events.KindDoiDeleted, ContextID: doi.ContextID, Doi: doi.Snapshot()})
	}
	span.SetAttributes(attribute.Int("deleted", len(deleted)))
	return len(deleted), nil
}

// SetStatus edits the status of doi.
func (r *Repository) SetStatus(ctx context.Context, status Status, doi *Doi) (*Doi, error) {
	return r.Edit(ctx, doi, map[string]any{PropStatus: int(status)})
}

// IsEnabled reports whether c assigns DOIs.
func (r *Repository) IsEnabled(c contexts.Context) bool {
	return c.EnableDois
}

// GetPrefix returns the DOI prefix of c.
func (r *Repository) GetPrefix(c contexts.Context) string {
	return c.DoiPrefix
}

// GetContextSetting returns one DOI setting of c, or nil for unknown names.
func (r *Repository) GetContextSetting(c contexts.Context, name string) any {
	return c.Setting(name)
}

// GetSettings returns every DOI setting of c.
func (r *Repository) GetSettings(c contexts.Context) map[string]any {
	names := []string{
		contexts.SettingEnableDois,
		contexts.SettingEnabledDoiTypes,
		contexts.SettingDoiPrefix,
		contexts.SettingUseDefaultDoiSuffix,
		contexts.SettingCustomDoiSuffixType,
		contexts.SettingDoiVersioning,
		contexts.SettingRegistrationAgency,
	}
	settings := make(map[string]any, len(names))
	for _, name := range names {
		settings[name] = c.Setting(name)
	}
	return settings
}

// MintValue returns a new DOI value for c using a random default suffix.
func (r *Repository) MintValue(c contexts.Context) (string, error) {
	if c.DoiPrefix == "" {
		return "", newServiceError(opMint, "missing_prefix", ErrMissingPrefix)
	}
	code, err := suffix.Encode()
	if err != nil {
		r.logError(opMint, "suffix_failed", err, zap.Int64("context_id", c.ID))
		return "", newServiceError(opMint, "suffix_failed", err)
	}
	return c.DoiPrefix + "/" + code, nil
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("dois repository error", attrs...)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
