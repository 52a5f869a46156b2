package port

import "github.com/evdriver/evdriver/internal/core/domain"

// PersistencePort is the Control Engine's view of the Persistence Store:
// load once at startup, save on every intent change and session
// transition. Kept as an interface so the actor/service layer does not
// import internal/core/persistence directly, matching the teacher's
// ports-and-adapters separation.
type PersistencePort interface {
	Load() domain.PersistedState
	Save(domain.PersistedState) error
}
