package database

import (
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/dois"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/navigation"
)

// Models lists every GORM model persisted by the service.
func Models() []any {
	return []any{
		&contexts.Context{},
		&dois.Doi{},
		&dois.Setting{},
		&navigation.Menu{},
		&navigation.Item{},
		&navigation.ItemSetting{},
		&navigation.Assignment{},
		&migrationRecord{},
	}
}
