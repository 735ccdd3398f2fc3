package shared

// AggregateRoot is implemented by entities that guard their own invariants
// and record events while being mutated inside a transaction
type AggregateRoot interface {
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot adds an optimistic version and pending events.
// Version starts at 1 and moves by one per committed mutation; repositories
// compare against Version-1 when writing.
type BaseAggregateRoot struct {
	BaseEntity
	Version int

	pending []DomainEvent
}

func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

// AddDomainEvent queues an event until the owning transaction commits
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent { return a.pending }

func (a *BaseAggregateRoot) ClearDomainEvents() { a.pending = nil }

// NewBaseAggregateRoot starts a root at version 1 with a random ID
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(), Version: 1}
}

// NewOrderedAggregateRoot starts a root at version 1 with a v7 ID
func NewOrderedAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewOrderedBaseEntity(), Version: 1}
}
