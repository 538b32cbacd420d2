package application

import (
	"fmt"
	"os"
	"strings"

	"github.com/magneto-serge/magneto/config"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Options are the configuration sources chosen on the command line.
type Options struct {
	ConfigFile       string
	AllowMissingFile bool
	UseEnvironment   bool
}

func errConfigFileNotFound(filename string) error {
	return fmt.Errorf("configuration file %q does not exist", filename)
}

// Resolve checks the configuration file. If it does not exist, that is an error unless
// AllowMissingFile is set, in which case the file is skipped.
func (o *Options) Resolve() error {
	if o.ConfigFile == "" {
		return nil
	}
	_, err := os.Stat(o.ConfigFile)
	fileExists := err == nil || !os.IsNotExist(err)
	if !fileExists {
		if !o.AllowMissingFile {
			return errConfigFileNotFound(o.ConfigFile)
		}
		o.ConfigFile = ""
	}
	return nil
}

// DescribeConfigSource returns a human-readable phrase describing whether the configuration comes from a
// file, from variables, or both.
func (o Options) DescribeConfigSource() string {
	switch {
	case o.ConfigFile == "" && o.UseEnvironment:
		return "configuration from environment variables"
	case o.ConfigFile == "":
		return "default configuration"
	}
	desc := fmt.Sprintf("configuration file %s", o.ConfigFile)
	if o.UseEnvironment {
		desc += " plus environment variables"
	}
	return desc
}

// LoadConfig builds a configuration from the chosen sources. The file is loaded first, then any
// environment variables are applied on top of it.
func (o Options) LoadConfig(loggers ldlog.Loggers) (config.Config, error) {
	var c config.Config
	if o.ConfigFile != "" {
		if err := config.LoadConfigFile(&c, o.ConfigFile, loggers); err != nil {
			return c, err
		}
	}
	if o.UseEnvironment {
		if err := config.LoadConfigFromEnvironment(&c, loggers); err != nil {
			return c, err
		}
	}
	return c, config.ValidateConfig(&c, loggers)
}

// DescribeVersion returns the same version string unless it is a prerelease build, in which case it
// is reformatted to change "+xxx" into "(build xxx)".
func DescribeVersion(version string) string {
	split := strings.Split(version, "+")
	if len(split) == 2 {
		return fmt.Sprintf("%s (build %s)", split[0], split[1])
	}
	return version
}
