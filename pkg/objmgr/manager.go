package objmgr

import (
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/serverlessresearch/objstore/pkg/awss3"
	"github.com/serverlessresearch/objstore/pkg/mems3"
	"github.com/serverlessresearch/objstore/pkg/objstore"
	"github.com/serverlessresearch/objstore/pkg/perms"
	"github.com/serverlessresearch/objstore/pkg/store"
)

// Manager wires together a backend, the permission manager, and the
// facade according to configuration. Construct one per process and pass
// it (or its Store) into whatever needs object storage.
type Manager struct {
	Store   *store.Store
	Backend objstore.Backend
	Perms   *perms.Manager
	Logger  objstore.Logger
	Cfg     *viper.Viper
}

func NewManager(userCfg map[string]interface{}) (*Manager, error) {
	var err error
	mgr := &Manager{}

	if cfgPathRaw, ok := userCfg["config-file"]; ok {
		if cfgPath, ok := cfgPathRaw.(string); ok {
			err = mgr.initConfig(&cfgPath)
		} else {
			return nil, errors.New("option 'config-file' must be of type string")
		}
	} else {
		err = mgr.initConfig(nil)
	}
	if err != nil {
		return nil, err
	}

	if loggerRaw, ok := userCfg["logger"]; ok {
		if logger, ok := loggerRaw.(objstore.Logger); ok {
			mgr.Logger = logger
		} else {
			return nil, errors.New("option 'logger' must satisfy objstore.Logger")
		}
	} else {
		mgr.Logger = logrus.New()
	}

	// Flags may override individual config keys (see cmd/root.go).
	for _, key := range []string{"service.objstore.s3.endpoint", "service.objstore.s3.region", "service.objstore.s3.profile", "backend"} {
		if raw, ok := userCfg[key]; ok {
			mgr.Cfg.Set(key, raw)
		}
	}

	mgr.Perms = perms.NewManager(mgr.Logger.WithField("module", "perms"))

	if err = mgr.initBackend(); err != nil {
		return nil, err
	}

	mgr.Store = store.New(mgr.Backend, mgr.Perms, mgr.Logger.WithField("module", "store"))
	return mgr, nil
}

func (self *Manager) Destroy() {
	// Backends hold no resources that outlive the process, but keep the
	// teardown hook so callers don't need to change when one does.
}

func (self *Manager) initConfig(cfgPath *string) error {
	// This is a private viper context just for objstore (so as not to
	// conflict with the importer's usage).
	self.Cfg = viper.New()

	self.Cfg.SetDefault("backend", "s3")
	// Order of precedence: flag, ENV, objstore.yaml, default
	self.Cfg.SetDefault("service.objstore.s3.region", "us-west-2")
	self.Cfg.BindEnv("service.objstore.s3.region", "AWS_DEFAULT_REGION")
	self.Cfg.BindEnv("service.objstore.s3.endpoint", "S3_ENDPOINT_URL")
	self.Cfg.BindEnv("service.objstore.s3.profile", "AWS_PROFILE")

	if cfgPath != nil {
		// Use config file from the flag. An explicit file must exist.
		self.Cfg.SetConfigFile(*cfgPath)
		if err := self.Cfg.ReadInConfig(); err != nil {
			return errors.Wrap(err, "Failed to load config")
		}
		return nil
	}

	// default search path for config is ./configs/objstore.* plus the
	// home directory (* can be json, yaml, etc)
	self.Cfg.AddConfigPath("./configs")
	if home, err := homedir.Dir(); err == nil {
		self.Cfg.AddConfigPath(home)
	}
	self.Cfg.SetConfigName("objstore")

	if err := self.Cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "Failed to load config")
		}
		// Running on pure defaults is fine.
	}
	return nil
}

func (self *Manager) initBackend() error {
	backendName := self.Cfg.GetString("backend")

	var err error
	switch backendName {
	case "s3":
		// viper.Sub does not carry env bindings, so project the keys
		// through the parent where flag/env/file precedence is applied.
		s3Cfg := viper.New()
		for _, key := range []string{"endpoint", "region", "profile"} {
			if v := self.Cfg.GetString("service.objstore.s3." + key); v != "" {
				s3Cfg.Set(key, v)
			}
		}
		self.Backend, err = awss3.New(self.Logger.WithField("module", "backend.s3"), s3Cfg)
	case "memory":
		self.Backend = mems3.New(self.Logger.WithField("module", "backend.memory"))
	default:
		return errors.New("Unrecognized object storage backend: " + backendName)
	}

	if err != nil {
		return errors.Wrap(err, "Failed to initialize backend "+backendName)
	}
	return nil
}
