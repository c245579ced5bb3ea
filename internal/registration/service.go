package registration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/dois"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/events"
)

// SettingDepositBatchID records the batch a DOI was last deposited in.
const SettingDepositBatchID = "depositBatchId"

var (
	errMissingDois   = errors.New("registration: doi store is required")
	errMissingAgency = errors.New("registration: agency is required")
)

// DoiStore is the subset of the DOI repository used by the service.
type DoiStore interface {
	Get(ctx context.Context, id int64) (*dois.Doi, error)
	Edit(ctx context.Context, doi *dois.Doi, changes map[string]any) (*dois.Doi, error)
}

// Publisher delivers registration events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// ServiceConfig describes the dependencies of a Service.
type ServiceConfig struct {
	Dois       DoiStore
	Agency     Agency
	Events     Publisher
	Clock      func() time.Time
	NewBatchID func() string
	Logger     *zap.Logger
}

// Outcome reports the result of a bulk action.
type Outcome struct {
	Action    Action  `json:"action"`
	BatchID   string  `json:"batchId,omitempty"`
	Processed []int64 `json:"processed"`
	Failed    []int64 `json:"failed,omitempty"`
	Location  string  `json:"location,omitempty"`
	Error     string  `json:"error,omitempty"`
	Document  string  `json:"document,omitempty"`
}

// Service performs bulk registration actions.
type Service struct {
	dois       DoiStore
	agency     Agency
	events     Publisher
	clock      func() time.Time
	newBatchID func() string
	logger     *zap.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Dois == nil {
		return nil, errMissingDois
	}
	if cfg.Agency == nil {
		return nil, errMissingAgency
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newBatchID := cfg.NewBatchID
	if newBatchID == nil {
		newBatchID = uuid.NewString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		dois:       cfg.Dois,
		agency:     cfg.Agency,
		events:     cfg.Events,
		clock:      clock,
		newBatchID: newBatchID,
		logger:     logger,
	}, nil
}

// Perform runs action for the DOIs of current named by ids. Ids that are
// missing or belong to another context are ignored; when none remain
// ErrEmptyPayload is returned. An agency failure is reported in the outcome
// and marks the DOIs as failed, it is not returned as an error.
func (s *Service) Perform(ctx context.Context, action Action, current contexts.Context, ids []int64) (Outcome, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return Outcome{}, err
	}
	items, err := s.load(ctx, current, ids)
	if err != nil {
		return Outcome{}, err
	}
	if len(items) == 0 {
		return Outcome{}, ErrEmptyPayload
	}

	switch action {
	case ActionMarkRegistered:
		return s.markRegistered(ctx, items)
	case ActionExport:
		return s.export(ctx, current, items)
	default:
		return s.deposit(ctx, current, items)
	}
}

func (s *Service) load(ctx context.Context, current contexts.Context, ids []int64) ([]*dois.Doi, error) {
	items := make([]*dois.Doi, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		seen[id] = struct{}{}
		doi, err := s.dois.Get(ctx, id)
		if errors.Is(err, dois.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if doi.ContextID != current.ID {
			continue
		}
		items = append(items, doi)
	}
	return items, nil
}

func (s *Service) markRegistered(ctx context.Context, items []*dois.Doi) (Outcome, error) {
	outcome := Outcome{Action: ActionMarkRegistered, Processed: make([]int64, 0, len(items))}
	for _, doi := range items {
		if _, err := s.dois.Edit(ctx, doi, map[string]any{"status": int(dois.StatusRegistered)}); err != nil {
			return Outcome{}, err
		}
		outcome.Processed = append(outcome.Processed, doi.ID)
	}
	return outcome, nil
}

func (s *Service) export(ctx context.Context, current contexts.Context, items []*dois.Doi) (Outcome, error) {
	batchID := s.newBatchID()
	document, err := s.document(current, batchID, items)
	if err != nil {
		return Outcome{}, err
	}
	s.publish(ctx, ActionExport, current, items)
	return Outcome{
		Action:    ActionExport,
		BatchID:   batchID,
		Processed: idsOf(items),
		Document:  string(document),
	}, nil
}

func (s *Service) deposit(ctx context.Context, current contexts.Context, items []*dois.Doi) (Outcome, error) {
	batchID := s.newBatchID()
	document, err := s.document(current, batchID, items)
	if err != nil {
		return Outcome{}, err
	}
	s.publish(ctx, ActionDeposit, current, items)

	outcome := Outcome{Action: ActionDeposit, BatchID: batchID}
	receipt, submitErr := s.agency.Submit(ctx, batchID, document)
	if submitErr != nil {
		s.logger.Warn("deposit failed",
			zap.String("agency", s.agency.Name()),
			zap.String("batch_id", batchID),
			zap.Int64("context_id", current.ID),
			zap.Error(submitErr))
		outcome.Error = submitErr.Error()
		outcome.Failed = idsOf(items)
		outcome.Processed = []int64{}
		for _, doi := range items {
			changes := map[string]any{
				"status":                      int(dois.StatusError),
				dois.SettingRegistrationError: submitErr.Error(),
				SettingDepositBatchID:         batchID,
			}
			if _, err := s.dois.Edit(ctx, doi, changes); err != nil {
				return Outcome{}, err
			}
		}
		return outcome, nil
	}

	outcome.Location = receipt.Location
	outcome.Processed = make([]int64, 0, len(items))
	for _, doi := range items {
		changes := map[string]any{
			"status":                      int(dois.StatusRegistered),
			dois.SettingRegistrationError: nil,
			SettingDepositBatchID:         batchID,
		}
		if _, err := s.dois.Edit(ctx, doi, changes); err != nil {
			return Outcome{}, err
		}
		outcome.Processed = append(outcome.Processed, doi.ID)
	}
	s.logger.Info("deposit accepted",
		zap.String("agency", s.agency.Name()),
		zap.String("batch_id", batchID),
		zap.String("location", receipt.Location),
		zap.Int("items", len(items)))
	return outcome, nil
}

func (s *Service) document(current contexts.Context, batchID string, items []*dois.Doi) ([]byte, error) {
	entries := make([]DocumentItem, 0, len(items))
	for _, doi := range items {
		entries = append(entries, DocumentItem{ID: doi.ID, Value: doi.Value})
	}
	return newDocument(batchID, current.Name, s.clock(), entries).Encode()
}

func (s *Service) publish(ctx context.Context, action Action, current contexts.Context, items []*dois.Doi) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Event{
		Kind:      events.KindExportInitiated,
		ContextID: current.ID,
		Action:    string(action),
		DoiIDs:    idsOf(items),
	})
}

func idsOf(items []*dois.Doi) []int64 {
	ids := make([]int64, 0, len(items))
	for _, doi := range items {
		ids = append(ids, doi.ID)
	}
	return ids
}
