package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "refdata-seeder context key " + string(c)
}

// RunIDKey is the key for the seeding run identifier in context.Context
const RunIDKey = contextKey("runID")

// SourceKey is the key for the data source being processed
const SourceKey = contextKey("source")

// CollectionKey is the key for the target collection
const CollectionKey = contextKey("collection")

// ComponentKey is the key for the engine component name
const ComponentKey = contextKey("component")

// OperationKey is the key for the operation being performed
const OperationKey = contextKey("operation")
