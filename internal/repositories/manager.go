package repositories

import (
	"github.com/jmoiron/sqlx"
)

// RepositoryManager bundles the repositories over one database handle
type RepositoryManager struct {
	db           *sqlx.DB
	AnalysisRepo *AnalysisRepo
	CitationRepo *CitationRepo
	BatchRepo    *BatchRepo
	CompanyRepo  *CompanyRepo
}

func NewRepositoryManager(db *sqlx.DB) *RepositoryManager {
	return &RepositoryManager{
		db:           db,
		AnalysisRepo: NewAnalysisRepo(db),
		CitationRepo: NewCitationRepo(db),
		BatchRepo:    NewBatchRepo(db),
		CompanyRepo:  NewCompanyRepo(db),
	}
}

// NewUnitOfWork opens a pending unit of work on the manager's database.
func (rm *RepositoryManager) NewUnitOfWork() UnitOfWork {
	return NewUnitOfWork(rm.db)
}

func (rm *RepositoryManager) DB() *sqlx.DB {
	return rm.db
}
