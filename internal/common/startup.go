package common

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	commonconfig "github.com/G-Research/eventhouse/internal/common/config"
)

const EnvPrefix = "EVENTHOUSE"

// LoadConfig reads config.yaml from defaultPath, merges every file in overrides on top of it in order and finally
// applies EVENTHOUSE_* environment variables (e.g. EVENTHOUSE_BATCH_MAXROWS) before unmarshalling into config.
func LoadConfig(config interface{}, defaultPath string, overrides []string) error {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return errors.WithMessagef(err, "error reading config from %s", defaultPath)
	}

	for _, path := range overrides {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return errors.WithMessagef(err, "error merging config file %s", path)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return errors.WithMessage(err, "error unmarshalling config")
	}
	return nil
}
