package cli

import (
	"github.com/hardcoding/fbxgrab/internal/config"
	"github.com/hardcoding/fbxgrab/internal/download"
	"github.com/hardcoding/fbxgrab/internal/events"
	"github.com/hardcoding/fbxgrab/internal/fs"
	"github.com/hardcoding/fbxgrab/internal/location"
	"github.com/hardcoding/fbxgrab/internal/logging"
	"github.com/hardcoding/fbxgrab/internal/notify"
	"github.com/hardcoding/fbxgrab/internal/session"
	"github.com/hardcoding/fbxgrab/internal/store"
	"github.com/hardcoding/fbxgrab/internal/transport"
)

// app bundles the wired components behind the subcommands. Built lazily
// on first use so flag parsing happens first.
type app struct {
	cfg        *config.Config
	cfgPath    string
	logger     *logging.Logger
	bus        *events.Bus
	transport  *transport.Client
	creds      *store.CredentialStore
	sessions   *session.Manager
	fsClient   *fs.Client
	dispatcher *download.Dispatcher
	resolver   *location.Resolver
	notifier   *notify.Notifier
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if discoveryURL != "" {
		cfg.Device.DiscoveryURL = discoveryURL
	}

	credsPath, err := config.CredentialsPath()
	if err != nil {
		return nil, err
	}
	locationsPath, err := config.LocationsPath()
	if err != nil {
		return nil, err
	}

	creds := store.NewCredentialStore(credsPath)
	if err := creds.Load(); err != nil {
		return nil, err
	}

	resolver := location.NewResolver(locationsPath, func() config.LocationsConfig {
		return cfg.Locations
	})
	if err := resolver.Load(); err != nil {
		return nil, err
	}

	bus := events.NewBus(0)
	tr := transport.NewClient(logger)
	notifier := notify.NewNotifier(cfg.Notifications, logger)
	sessions := session.NewManager(tr, creds, cfg.Device, bus, notifier, logger)

	return &app{
		cfg:        cfg,
		cfgPath:    cfgFile,
		logger:     logger,
		bus:        bus,
		transport:  tr,
		creds:      creds,
		sessions:   sessions,
		fsClient:   fs.NewClient(sessions, tr, logger),
		dispatcher: download.NewDispatcher(sessions, tr, notifier, logger),
		resolver:   resolver,
		notifier:   notifier,
	}, nil
}

// close tears down the event bus.
func (a *app) close() {
	a.bus.Close()
	if dropped := a.bus.Dropped(); dropped > 0 {
		a.logger.Debug().Int64("dropped", dropped).Msg("event bus dropped events")
	}
}

// saveConfig writes the in-memory configuration back to disk.
func (a *app) saveConfig() error {
	return config.Save(a.cfg, a.cfgPath)
}
