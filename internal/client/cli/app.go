package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/client/config"
	"github.com/dmitrijs2005/relaypacs/internal/client/gate"
	"github.com/dmitrijs2005/relaypacs/internal/client/netquality"
	"github.com/dmitrijs2005/relaypacs/internal/client/services"
	"github.com/dmitrijs2005/relaypacs/internal/client/staging"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/cryptox"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
)

// App holds everything a command needs: the staging store, the upload
// services and the network quality estimator.
type App struct {
	cfg *config.Config
	log logging.Logger

	store    *staging.Store
	cipher   *cryptox.FieldCipher
	api      *client.HTTPClient
	est      *netquality.Estimator
	watcher  *netquality.Watcher
	sessions *services.SessionManager
	uploads  services.UploadService
	sweeper  *services.Sweeper

	in  *bufio.Reader
	out io.Writer

	flush func()
}

// NewApp opens the staging database and wires the services.
func NewApp(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, flush, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		SentryDSN:   cfg.SentryDSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: logger, in: bufio.NewReader(in), out: out, flush: flush}

	suite, err := cryptox.ParseSuite(cfg.Cipher)
	if err != nil {
		flush()
		return nil, err
	}
	a.cipher, err = cryptox.NewFieldCipher(cfg.KeyStore(), suite)
	if err != nil {
		flush()
		return nil, err
	}
	g, err := gate.New(a.cipher, cfg.EncryptedFields, logger.With("component", "gate"))
	if err != nil {
		flush()
		return nil, err
	}

	db, err := client.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		flush()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.store = staging.New(db,
		staging.WithGate(g),
		staging.WithQuota(cfg.StagingQuotaBytes),
		staging.WithLogger(logger.With("component", "staging")),
	)

	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	a.api = client.NewHTTPClient(cfg.ServerURL, hc, a.authenticator(hc))

	a.est = netquality.NewEstimator()
	a.watcher = netquality.NewWatcher(a.est, a.api, cfg.OnlineCheckInterval, logger.With("component", "netquality"))

	opts := services.SessionOptions{RefreshSkew: cfg.RefreshSkew}
	if cfg.AdaptiveChunkSize {
		opts.Advisor = a.est
	}
	a.sessions = services.NewSessionManager(a.store, a.api, opts, logger.With("component", "session"))
	engine := services.NewTransferEngine(a.store, a.api, a.sessions, a.est, logger.With("component", "transfer"))
	a.uploads = services.NewUploadService(a.store, a.api, a.sessions, engine, logger.With("component", "upload"))
	a.sweeper = services.NewSweeper(a.store, services.SweepConfig{
		Retention:        cfg.Retention,
		HistoryRetention: cfg.HistoryRetention,
		SyncRetention:    cfg.SyncRetention,
		CacheMaxItems:    cfg.CacheMaxItems,
		Interval:         cfg.SweepInterval,
	}, logger.With("component", "sweeper"))

	return a, nil
}

// authenticator picks the bearer source. A configured access token wins;
// otherwise the user logs in with a password, prompted for on first use.
func (a *App) authenticator(hc *http.Client) client.Authenticator {
	if a.cfg.AccessToken != "" {
		return client.StaticToken(a.cfg.AccessToken)
	}
	return &promptLogin{app: a, hc: hc}
}

// StartOnlineStatusWatcher keeps the estimator's view of the link current
// until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context) {
	a.watcher.Probe(ctx)
	go a.watcher.Run(ctx)
}

func (a *App) Close() error {
	defer a.flush()
	return a.store.Close()
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

var errNoCredentials = errors.New("no credentials: set --token or --user")

// promptLogin defers the password prompt until the server is first
// contacted, so offline commands never ask for one.
type promptLogin struct {
	app   *App
	hc    *http.Client
	login *client.PasswordLogin
}

func (p *promptLogin) Token(ctx context.Context) (string, error) {
	if p.login == nil {
		cfg := p.app.cfg
		user := cfg.Username
		if user == "" {
			u, err := promptLine(p.app.in, p.app.out, "Username for "+cfg.ServerURL)
			if err != nil || u == "" {
				return "", errNoCredentials
			}
			user = u
		}
		password := cfg.Password
		if password == "" {
			pw, err := promptPassword(p.app.out, "Password for "+user)
			if err != nil {
				return "", fmt.Errorf("read password: %w", err)
			}
			password = string(pw)
			common.WipeByteArray(pw)
		}
		p.login = client.NewPasswordLogin(cfg.ServerURL, p.hc, user, password)
	}
	return p.login.Token(ctx)
}

func (p *promptLogin) Invalidate() bool {
	if p.login == nil {
		return false
	}
	return p.login.Invalidate()
}
