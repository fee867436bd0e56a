package di

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	agentgateway "github.com/foolishimp/c4h-intent-system-sub000/internal/adapter/gateway/agent"
	storagegateway "github.com/foolishimp/c4h-intent-system-sub000/internal/adapter/gateway/storage"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	appconfig "github.com/foolishimp/c4h-intent-system-sub000/internal/app/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/provider"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/service"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/stage"
	executionusecase "github.com/foolishimp/c4h-intent-system-sub000/internal/application/usecase/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/workflow"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/repository"
	infraconfig "github.com/foolishimp/c4h-intent-system-sub000/internal/infra/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/fs/txn"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/metrics"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/repository/runlock"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/repository/state"
	sqliterepo "github.com/foolishimp/c4h-intent-system-sub000/internal/infrastructure/persistence/sqlite"
)

// Container is the DI container that holds all dependencies of one project.
// This implements manual dependency injection for Clean Architecture
type Container struct {
	config Config
	cfg    *appconfig.Config
	paths  app.Paths
	fs     afero.Fs
	logger app.Logger

	// Infrastructure Layer - Database (nil for the file backend)
	db *sql.DB

	// Infrastructure Layer - Repositories
	stateRepo   execution.StateRepository
	runLockRepo repository.RunLockRepository

	// Infrastructure Layer - Gateways
	storageGateway output.StorageGateway
	gatewayOpts    agentgateway.FactoryOptions

	// Infrastructure Layer - Observability
	metrics *metrics.Recorder
	journal *app.JournalWriter

	// Application Layer
	lockService  *service.LockServiceImpl
	mutator      *txn.Mutator
	orchestrator *workflow.Orchestrator
	runIntent    *executionusecase.RunIntentUseCase
}

// Config holds configuration for the container
type Config struct {
	ProjectPath   string    // Project root, default "."
	ConfigPath    string    // Default <home>/config.yaml
	LogLevel      string    // Overrides log_level when set
	MaxIterations int       // Overrides max_iterations when > 0
	LogWriter     io.Writer // Default os.Stderr
	FS            afero.Fs  // Default OS filesystem
	Getenv        func(string) string
}

// NewContainer creates and initializes the DI container
func NewContainer(ctx context.Context, config Config) (*Container, error) {
	c := &Container{config: config}

	if c.config.ProjectPath == "" {
		c.config.ProjectPath = "."
	}
	if c.config.LogWriter == nil {
		c.config.LogWriter = os.Stderr
	}
	if c.config.FS == nil {
		c.config.FS = afero.NewOsFs()
	}
	if c.config.Getenv == nil {
		c.config.Getenv = os.Getenv
	}
	c.fs = c.config.FS

	// Initialize dependencies in dependency order
	if err := c.initializeConfig(); err != nil {
		return nil, err
	}

	if err := c.initializeInfrastructure(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}

	if err := c.initializeApplication(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}

	return c, nil
}

func (c *Container) initializeConfig() error {
	configPath := c.config.ConfigPath
	if configPath == "" {
		configPath = app.ResolvePaths(c.config.ProjectPath, nil).Config
	}

	cfg, err := infraconfig.LoadSettings(c.fs, configPath)
	if err != nil {
		return err
	}
	if c.config.LogLevel != "" {
		cfg.LogLevel = c.config.LogLevel
	}
	if c.config.MaxIterations > 0 {
		cfg.MaxIterations = c.config.MaxIterations
	}

	c.cfg = cfg
	c.paths = app.ResolvePaths(c.config.ProjectPath, cfg)
	c.paths.Config = configPath
	c.logger = app.NewLogger(cfg.LogLevel, c.config.LogWriter)
	c.logger.Debug("config source=%s path=%s", cfg.Source, configPath)
	return nil
}

// initializeInfrastructure initializes infrastructure layer components
func (c *Container) initializeInfrastructure(ctx context.Context) error {
	// 1. State and lock repositories
	switch c.cfg.State.Backend {
	case "file":
		c.stateRepo = state.NewFileStateRepository(c.fs, c.paths.Runs)
		c.runLockRepo = runlock.NewFileRunLockRepository(c.paths.Locks)

	default:
		db, err := sqliterepo.Open(c.paths.DB)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		c.db = db
		c.stateRepo = sqliterepo.NewWorkflowStateRepository(db)
		c.runLockRepo = sqliterepo.NewRunLockRepository(db)
	}

	// 2. Archive storage; nil when archive.type is none
	archive, err := storagegateway.NewStorageGateway(ctx, c.cfg.Archive, c.paths.Archive)
	if err != nil {
		return fmt.Errorf("failed to create storage gateway: %w", err)
	}
	c.storageGateway = archive

	// 3. Observability
	c.metrics = metrics.NewRecorder()
	c.journal = app.NewJournalWriter(c.paths.Journal)

	// 4. Agent gateway options shared by every backend
	c.gatewayOpts = agentgateway.FactoryOptions{
		RateLimit: c.cfg.Provider.RateLimit,
		WorkDir:   c.paths.Project,
		Getenv:    c.config.Getenv,
	}
	return nil
}

// initializeApplication initializes application layer components
func (c *Container) initializeApplication() error {
	c.lockService = service.NewLockService(c.runLockRepo, service.LockServiceConfig{TTL: c.cfg.Lock.TTL}, c.logger)

	c.mutator = txn.NewMutator(c.fs, txn.WithLogger(c.logger), txn.WithMetrics(c.metrics))

	chain := provider.NewChain(
		provider.WithAttemptTimeout(c.cfg.Provider.AttemptTimeout),
		provider.WithRetryDelay(c.cfg.Provider.RetryDelay),
		provider.WithLogger(c.logger),
		provider.WithMetrics(c.metrics),
	)

	solutionCall, err := c.agentCall(chain, c.cfg.Stages.Solution)
	if err != nil {
		return fmt.Errorf("solution stage: %w", err)
	}
	editCall, err := c.agentCall(chain, c.cfg.Stages.Edit)
	if err != nil {
		return fmt.Errorf("edit stage: %w", err)
	}

	discovery, err := stage.NewDiscovery(c.fs, c.cfg.Stages.Discovery, c.logger)
	if err != nil {
		return fmt.Errorf("discovery stage: %w", err)
	}
	validate, err := stage.NewValidate(c.cfg.Stages.Validate, c.logger)
	if err != nil {
		return fmt.Errorf("validate stage: %w", err)
	}

	opts := []workflow.Option{
		workflow.WithStateRepository(c.stateRepo),
		workflow.WithJournal(c.journal),
		workflow.WithLogger(c.logger),
		workflow.WithMetrics(c.metrics),
		workflow.WithDefaultMaxIterations(c.cfg.MaxIterations),
	}
	if c.storageGateway != nil {
		opts = append(opts, workflow.WithArchive(c.storageGateway))
	}

	c.orchestrator, err = workflow.NewOrchestrator(workflow.Executors{
		Discovery: discovery,
		Solution:  stage.NewSolution(solutionCall, c.logger),
		Edit:      stage.NewEdit(c.mutator, editCall, c.logger),
		Validate:  validate,
	}, opts...)
	if err != nil {
		return err
	}

	var locker executionusecase.RunLocker
	if c.cfg.Lock.Enabled {
		locker = c.lockService
	}
	c.runIntent = executionusecase.NewRunIntentUseCase(c.orchestrator, locker, c.fs, c.paths.Health, c.logger)
	return nil
}

func (c *Container) agentCall(chain *provider.Chain, stageCfg appconfig.AgentStageConfig) (stage.AgentCall, error) {
	backends, err := c.cfg.BackendsFor(stageCfg)
	if err != nil {
		return stage.AgentCall{}, err
	}
	gateways, err := agentgateway.NewAgentGateways(backends, c.gatewayOpts)
	if err != nil {
		return stage.AgentCall{}, err
	}
	return stage.AgentCall{
		Chain:       chain,
		Backends:    gateways,
		MaxAttempts: c.cfg.Provider.MaxAttempts,
		MaxTokens:   stageCfg.MaxTokens,
	}, nil
}

// GetConfig returns the loaded application configuration
func (c *Container) GetConfig() *appconfig.Config {
	return c.cfg
}

// GetPaths returns the resolved project paths
func (c *Container) GetPaths() app.Paths {
	return c.paths
}

// GetLogger returns the logger
func (c *Container) GetLogger() app.Logger {
	return c.logger
}

// GetFS returns the filesystem every component writes through
func (c *Container) GetFS() afero.Fs {
	return c.fs
}

// GetStateRepository returns the workflow state repository
func (c *Container) GetStateRepository() execution.StateRepository {
	return c.stateRepo
}

// GetLockService returns the lock service
func (c *Container) GetLockService() service.LockService {
	return c.lockService
}

// GetMutator returns the transactional file mutator
func (c *Container) GetMutator() *txn.Mutator {
	return c.mutator
}

// GetStorageGateway returns the archive gateway, nil when archiving is off
func (c *Container) GetStorageGateway() output.StorageGateway {
	return c.storageGateway
}

// GetMetrics returns the metrics recorder
func (c *Container) GetMetrics() *metrics.Recorder {
	return c.metrics
}

// GetJournal returns the run journal writer
func (c *Container) GetJournal() *app.JournalWriter {
	return c.journal
}

// GetOrchestrator returns the workflow orchestrator
func (c *Container) GetOrchestrator() *workflow.Orchestrator {
	return c.orchestrator
}

// GetRunIntentUseCase returns the run use case
func (c *Container) GetRunIntentUseCase() *executionusecase.RunIntentUseCase {
	return c.runIntent
}

// DescribeBackends reports availability of every configured backend
func (c *Container) DescribeBackends() []agentgateway.BackendStatus {
	return agentgateway.DescribeBackends(c.cfg.Provider.Backends, c.gatewayOpts)
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	if c.lockService != nil {
		c.lockService.Stop()
	}

	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}
