package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectionConfig holds the document store connection settings
type ConnectionConfig struct {
	URI      string `env:"MONGODB_URI"`
	Database string `env:"MONGODB_DATABASE" envDefault:"clutch"`

	MaxPoolSize uint64 `env:"MONGODB_MAX_POOL_SIZE" envDefault:"50"`
	MinPoolSize uint64 `env:"MONGODB_MIN_POOL_SIZE" envDefault:"5"`

	ConnectTimeout         time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	SocketTimeout          time.Duration `env:"MONGODB_SOCKET_TIMEOUT" envDefault:"30s"`
	ServerSelectionTimeout time.Duration `env:"MONGODB_SERVER_SELECTION_TIMEOUT" envDefault:"10s"`
}

// Validate checks the connection settings before any dial is attempted
func (c *ConnectionConfig) Validate() error {
	ve := apperrors.NewValidationErrors()
	if c.URI == "" {
		ve.Add("MONGODB_URI", "is required", c.URI)
	} else if !strings.HasPrefix(c.URI, "mongodb://") && !strings.HasPrefix(c.URI, "mongodb+srv://") {
		ve.Add("MONGODB_URI", "must use the mongodb:// or mongodb+srv:// scheme", c.URI)
	}
	if c.Database == "" {
		ve.Add("MONGODB_DATABASE", "is required", c.Database)
	}
	if c.MaxPoolSize == 0 {
		ve.Add("MONGODB_MAX_POOL_SIZE", "must be positive", c.MaxPoolSize)
	}
	if c.MinPoolSize > c.MaxPoolSize {
		ve.Add("MONGODB_MIN_POOL_SIZE", "must not exceed MONGODB_MAX_POOL_SIZE", c.MinPoolSize)
	}
	if c.ConnectTimeout <= 0 {
		ve.Add("MONGODB_CONNECT_TIMEOUT", "must be positive", c.ConnectTimeout)
	}
	if c.SocketTimeout <= 0 {
		ve.Add("MONGODB_SOCKET_TIMEOUT", "must be positive", c.SocketTimeout)
	}
	if c.ServerSelectionTimeout <= 0 {
		ve.Add("MONGODB_SERVER_SELECTION_TIMEOUT", "must be positive", c.ServerSelectionTimeout)
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ClientOptions builds driver options with every timeout set explicitly
func (c *ConnectionConfig) ClientOptions() *options.ClientOptions {
	return options.Client().
		ApplyURI(EnsureDatabaseInURI(c.URI, c.Database)).
		SetMaxPoolSize(c.MaxPoolSize).
		SetMinPoolSize(c.MinPoolSize).
		SetConnectTimeout(c.ConnectTimeout).
		SetSocketTimeout(c.SocketTimeout).
		SetServerSelectionTimeout(c.ServerSelectionTimeout)
}

// Client is the subset of *mongo.Client the manager needs
type Client interface {
	Database(name string, opts ...*options.DatabaseOptions) *mongo.Database
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
}

// Dialer opens a new client. Production code uses MongoDialer.
type Dialer interface {
	Dial(ctx context.Context, opts *options.ClientOptions) (Client, error)
}

// MongoDialer dials a real MongoDB deployment
type MongoDialer struct{}

// Dial implements Dialer
func (MongoDialer) Dial(ctx context.Context, opts *options.ClientOptions) (Client, error) {
	return mongo.Connect(ctx, opts)
}

// HealthState is the result class of a health probe
type HealthState string

const (
	HealthHealthy      HealthState = "healthy"
	HealthUnhealthy    HealthState = "unhealthy"
	HealthDisconnected HealthState = "disconnected"
	HealthError        HealthState = "error"
)

// HealthStatus reports the state of the document store connection
type HealthStatus struct {
	State    HealthState   `json:"state"`
	Message  string        `json:"message,omitempty"`
	Latency  time.Duration `json:"latency"`
	Database string        `json:"database,omitempty"`
}

// ConnectionManager owns the lifecycle of the single document store connection
type ConnectionManager struct {
	config *ConnectionConfig
	dialer Dialer
	logger logger.Logger

	mu     sync.RWMutex
	client Client
	db     *mongo.Database
	dials  int
}

// NewConnectionManager creates a manager. A nil dialer means MongoDialer.
func NewConnectionManager(config *ConnectionConfig, dialer Dialer, log logger.Logger) *ConnectionManager {
	if dialer == nil {
		dialer = MongoDialer{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ConnectionManager{
		config: config,
		dialer: dialer,
		logger: log.WithComponent("connection-manager"),
	}
}

// Connect returns the database handle, dialing only on the first call
func (cm *ConnectionManager) Connect(ctx context.Context) (*mongo.Database, error) {
	cm.mu.RLock()
	if cm.db != nil {
		db := cm.db
		cm.mu.RUnlock()
		return db, nil
	}
	cm.mu.RUnlock()

	// Double-check locking pattern
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.db != nil {
		return cm.db, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, cm.config.ConnectTimeout)
	defer cancel()

	cm.dials++
	client, err := cm.dialer.Dial(dialCtx, cm.config.ClientOptions())
	if err != nil {
		return nil, apperrors.NewConnectionError("failed to connect to document store").WithCause(err).WithComponent("connection-manager")
	}

	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperrors.NewConnectionError("document store did not answer ping").WithCause(err).WithComponent("connection-manager")
	}

	cm.client = client
	cm.db = client.Database(cm.config.Database)

	cm.logger.WithFields(map[string]interface{}{
		"database":      cm.config.Database,
		"max_pool_size": cm.config.MaxPoolSize,
	}).Info("Connected to document store")

	return cm.db, nil
}

// Database returns the current handle or ErrNotConnected
func (cm *ConnectionManager) Database() (*mongo.Database, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.db == nil {
		return nil, apperrors.ErrNotConnected
	}
	return cm.db, nil
}

// IsConnected reports whether Connect has succeeded and Disconnect has not been called since
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.db != nil
}

// DialCount returns how many dials were attempted
func (cm *ConnectionManager) DialCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.dials
}

// Disconnect releases the connection. It is a no-op when not connected.
func (cm *ConnectionManager) Disconnect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client == nil {
		return nil
	}

	err := cm.client.Disconnect(ctx)
	cm.client = nil
	cm.db = nil
	if err != nil {
		return apperrors.NewConnectionError("failed to disconnect from document store").WithCause(err)
	}

	cm.logger.Info("Disconnected from document store")
	return nil
}

// HealthCheck probes the store. It never panics and never returns an error.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) (status HealthStatus) {
	status.Database = cm.config.Database
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			status.State = HealthError
			status.Message = fmt.Sprintf("health check panicked: %v", r)
			status.Latency = time.Since(start)
		}
	}()

	cm.mu.RLock()
	client := cm.client
	cm.mu.RUnlock()

	if client == nil {
		status.State = HealthDisconnected
		status.Message = "not connected"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, cm.config.ConnectTimeout)
	defer cancel()

	err := client.Ping(pingCtx, readpref.Primary())
	status.Latency = time.Since(start)

	switch {
	case err == nil:
		status.State = HealthHealthy
	case apperrors.IsConnection(ClassifyError(OpAdmin, err)):
		status.State = HealthUnhealthy
		status.Message = err.Error()
	default:
		status.State = HealthError
		status.Message = err.Error()
	}
	return status
}

// EnsureDatabaseInURI returns uri with its path selecting database.
// The query string and multi-host lists are preserved.
func EnsureDatabaseInURI(uri, database string) string {
	if database == "" {
		return uri
	}

	scheme := ""
	rest := uri
	if i := strings.Index(uri, "://"); i >= 0 {
		scheme = uri[:i+3]
		rest = uri[i+3:]
	}

	query := ""
	if i := strings.Index(rest, "?"); i >= 0 {
		query = rest[i:]
		rest = rest[:i]
	}

	hosts := rest
	path := ""
	// credentials may contain '/', so the path starts after the last '@'
	at := strings.LastIndex(rest, "@")
	if i := strings.Index(rest[at+1:], "/"); i >= 0 {
		hosts = rest[:at+1+i]
		path = rest[at+1+i+1:]
	}

	if path == database {
		return uri
	}
	return scheme + hosts + "/" + database + query
}
