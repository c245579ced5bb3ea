package dois

import (
	"context"
	"errors"
	"iter"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	defaultBatchSize = 100

	pgForeignKeyViolation = "23503"
)

// DAOConfig describes the dependencies of a DAO.
type DAOConfig struct {
	Database   *gorm.DB
	Pagination PaginationMode
	// BatchSize bounds the rows GetMany holds in memory at once.
	BatchSize int
}

// DAO reads and writes DOIs together with their sidecar settings.
type DAO struct {
	db        *gorm.DB
	mode      PaginationMode
	batchSize int
	hooks     *[]QueryHook
}

// NewDAO constructs a DAO.
func NewDAO(cfg DAOConfig) (*DAO, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &DAO{db: cfg.Database, mode: cfg.Pagination, batchSize: batchSize, hooks: &[]QueryHook{}}, nil
}

// RegisterQueryHook adds a hook applied to every collector query.
func (d *DAO) RegisterQueryHook(hook QueryHook) {
	if hook != nil {
		*d.hooks = append(*d.hooks, hook)
	}
}

// NewCollector returns a collector using the DAO's pagination mode.
func (d *DAO) NewCollector() *Collector {
	return NewCollector(d.mode)
}

// Transaction runs fn with a DAO bound to a single database transaction.
func (d *DAO) Transaction(ctx context.Context, fn func(tx *DAO) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bound := *d
		bound.db = tx
		return fn(&bound)
	})
}

// Get returns the DOI with id and its settings.
func (d *DAO) Get(ctx context.Context, id int64) (*Doi, error) {
	var doi Doi
	err := d.db.WithContext(ctx).Where("doi_id = ?", id).Take(&doi).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	batch := []Doi{doi}
	if err := d.loadSettings(ctx, batch); err != nil {
		return nil, err
	}
	return &batch[0], nil
}

// GetCount returns the number of rows matching the collector's filters.
func (d *DAO) GetCount(ctx context.Context, collector *Collector) (int64, error) {
	var count int64
	err := collector.filter(d.query(ctx), *d.hooks).Count(&count).Error
	return count, err
}

// GetIDs returns the ids of the collector's page.
func (d *DAO) GetIDs(ctx context.Context, collector *Collector) ([]int64, error) {
	ids := []int64{}
	err := collector.paginate(collector.filter(d.query(ctx), *d.hooks)).Pluck("dois.doi_id", &ids).Error
	return ids, err
}

// GetMany lazily yields the collector's page. Rows are fetched in keyset
// batches of at most BatchSize; the offset applies to the first batch only.
func (d *DAO) GetMany(ctx context.Context, collector *Collector) iter.Seq2[*Doi, error] {
	return func(yield func(*Doi, error) bool) {
		remaining := collector.PageLimit()
		offset := collector.PageOffset()
		var lastID int64
		for {
			size := d.batchSize
			if remaining > 0 && remaining < size {
				size = remaining
			}

			query := collector.filter(d.query(ctx), *d.hooks).Order("dois.doi_id ASC").Limit(size)
			if lastID > 0 {
				query = query.Where("dois.doi_id > ?", lastID)
			} else if offset > 0 {
				query = query.Offset(offset)
			}

			var batch []Doi
			if err := query.Find(&batch).Error; err != nil {
				yield(nil, err)
				return
			}
			if len(batch) == 0 {
				return
			}
			if err := d.loadSettings(ctx, batch); err != nil {
				yield(nil, err)
				return
			}
			for index := range batch {
				if !yield(&batch[index], nil) {
					return
				}
			}

			lastID = batch[len(batch)-1].ID
			if len(batch) < size {
				return
			}
			if remaining > 0 {
				remaining -= len(batch)
				if remaining == 0 {
					return
				}
			}
		}
	}
}

// GetIDsBySetting returns ids of DOIs in contextID whose setting name equals
// value in any locale. A zero contextID searches every context.
func (d *DAO) GetIDsBySetting(ctx context.Context, name, value string, contextID int64) ([]int64, error) {
	query := d.query(ctx).
		Joins("JOIN doi_settings ON doi_settings.doi_id = dois.doi_id").
		Where("doi_settings.setting_name = ? AND doi_settings.setting_value = ?", name, value)
	if contextID != 0 {
		query = query.Where("dois.context_id = ?", contextID)
	}
	ids := []int64{}
	err := query.Distinct().Order("dois.doi_id ASC").Pluck("dois.doi_id", &ids).Error
	return ids, err
}

// Insert stores a new DOI with its settings and returns the assigned id.
func (d *DAO) Insert(ctx context.Context, doi *Doi) (int64, error) {
	if doi.Status == 0 {
		doi.Status = StatusUnregistered
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doi).Error; err != nil {
			return err
		}
		return writeSettings(tx, doi)
	})
	if err != nil {
		return 0, translateError(err)
	}
	return doi.ID, nil
}

// Update replaces the stored row and settings of doi.
func (d *DAO) Update(ctx context.Context, doi *Doi) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Doi{}).Where("doi_id = ?", doi.ID).Updates(map[string]any{
			"context_id": doi.ContextID,
			"doi":        doi.Value,
			"status":     doi.Status,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("doi_id = ?", doi.ID).Delete(&Setting{}).Error; err != nil {
			return err
		}
		return writeSettings(tx, doi)
	})
	return translateError(err)
}

// Delete removes doi and its settings.
func (d *DAO) Delete(ctx context.Context, doi *Doi) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doi_id = ?", doi.ID).Delete(&Setting{}).Error; err != nil {
			return err
		}
		result := tx.Where("doi_id = ?", doi.ID).Delete(&Doi{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (d *DAO) query(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).Model(&Doi{})
}

func (d *DAO) loadSettings(ctx context.Context, batch []Doi) error {
	if len(batch) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(batch))
	positions := make(map[int64]int, len(batch))
	for index := range batch {
		ids = append(ids, batch[index].ID)
		positions[batch[index].ID] = index
	}

	var rows []Setting
	if err := d.db.WithContext(ctx).Where("doi_id IN ?", ids).Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		doi := &batch[positions[row.DoiID]]
		if doi.Settings == nil {
			doi.Settings = make(Settings)
		}
		if doi.Settings[row.Name] == nil {
			doi.Settings[row.Name] = make(LocalizedValue)
		}
		value := ""
		if row.Value != nil {
			value = *row.Value
		}
		doi.Settings[row.Name][row.Locale] = value
	}
	return nil
}

func writeSettings(tx *gorm.DB, doi *Doi) error {
	rows := make([]Setting, 0, len(doi.Settings))
	names := make([]string, 0, len(doi.Settings))
	for name := range doi.Settings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for locale, value := range doi.Settings[name] {
			stored := value
			rows = append(rows, Setting{DoiID: doi.ID, Locale: locale, Name: name, Value: &stored})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrContextNotFound
	}
	return err
}
