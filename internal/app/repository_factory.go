package app

import (
	"fmt"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/crewplan/internal/shared/application"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/outbox"
)

// Repositories groups the stores used by the scheduling handlers.
type Repositories struct {
	Participants domain.ParticipantRepository
	Availability domain.AvailabilityStore
	Appointments domain.AppointmentRepository
	Conflicts    domain.ConflictRepository
	Coordination domain.CoordinationRepository
	Audit        domain.AuditRepository
	Outbox       outbox.Repository
	UnitOfWork   sharedApplication.UnitOfWork
}

// NewMemoryRepositories returns process-local stores for tests and ephemeral runs.
func NewMemoryRepositories() Repositories {
	return Repositories{
		Participants: persistence.NewMemoryParticipantRepository(),
		Availability: persistence.NewMemoryAvailabilityStore(),
		Appointments: persistence.NewMemoryAppointmentRepository(),
		Conflicts:    persistence.NewMemoryConflictRepository(),
		Coordination: persistence.NewMemoryCoordinationRepository(),
		Audit:        persistence.NewMemoryAuditRepository(),
		Outbox:       outbox.NewInMemoryRepository(),
		UnitOfWork:   persistence.NoopUnitOfWork{},
	}
}

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
	}
}

// Build creates every store on the factory's connection. origin tags the
// slot notifications this process emits.
func (f *RepositoryFactory) Build(origin string) (Repositories, error) {
	if !f.driver.IsValid() {
		return Repositories{}, fmt.Errorf("unsupported driver: %s", f.driver)
	}
	return Repositories{
		Participants: persistence.NewSQLParticipantRepository(f.conn),
		Availability: persistence.NewSQLAvailabilityStore(f.conn, origin),
		Appointments: persistence.NewSQLAppointmentRepository(f.conn),
		Conflicts:    persistence.NewSQLConflictRepository(f.conn),
		Coordination: persistence.NewSQLCoordinationRepository(f.conn),
		Audit:        persistence.NewSQLAuditRepository(f.conn),
		Outbox:       outbox.NewSQLRepository(f.conn),
		UnitOfWork:   database.NewUnitOfWork(f.conn),
	}, nil
}

// Driver returns the database driver type.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.driver
}

// Connection returns the underlying database connection.
func (f *RepositoryFactory) Connection() database.Connection {
	return f.conn
}
