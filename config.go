package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/itzmeanjan/gh-sync/auth"
	"github.com/itzmeanjan/gh-sync/catalog"
	"github.com/itzmeanjan/gh-sync/syncer"
)

const (
	cloneProtoHTTPS = "https"
	cloneProtoSSH   = "ssh"

	defaultRootDirName = "github-repos"
)

// Config collects everything a sync run needs. Every field can come from
// the config file; flags and the positional target dir override it.
type Config struct {
	Sync syncer.Config `yaml:",inline"`

	// APIURL is the GitHub GraphQL endpoint repositories are listed from.
	APIURL string `yaml:"api_url"`
	// Affiliations select which repositories the catalog lists.
	Affiliations []string `yaml:"affiliations"`
	// CloneProto is the protocol catalog urls are rewritten to, https or ssh.
	CloneProto string `yaml:"clone_proto"`
	// Include keeps only repositories whose name matches one of the glob
	// patterns. An empty list keeps everything.
	Include []string `yaml:"include"`
	// Exclude drops repositories whose name matches one of the glob patterns.
	Exclude []string `yaml:"exclude"`
	// PruneOrphans removes clones whose repository left the catalog.
	PruneOrphans bool `yaml:"prune_orphans"`
	// MetricsAddr serves /metrics when set.
	MetricsAddr string `yaml:"metrics_addr"`

	Auth auth.Config `yaml:"auth"`
}

func parseConfigFile(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(yamlFile); err != nil {
		return nil, err
	}

	conf := &Config{}
	if err := yaml.Unmarshal(yamlFile, conf); err != nil {
		return nil, err
	}

	return conf, nil
}

// overrideConfig copies values set on the command line over the file
// config. The positional argument wins over the root from the file.
func overrideConfig(conf *Config, c *cli.Command) {
	if v := c.String("api-url"); v != "" {
		conf.APIURL = v
	}
	if v := c.StringSlice("affiliations"); len(v) > 0 {
		conf.Affiliations = v
	}
	if v := int(c.Int("concurrency")); v != 0 {
		conf.Sync.Concurrency = v
	}
	if v := c.Duration("git-timeout"); v != 0 {
		conf.Sync.GitTimeout = v
	}
	if v := c.String("clone-proto"); v != "" {
		conf.CloneProto = v
	}
	if v := c.StringSlice("include"); len(v) > 0 {
		conf.Include = v
	}
	if v := c.StringSlice("exclude"); len(v) > 0 {
		conf.Exclude = v
	}
	if c.Bool("prune-orphans") {
		conf.PruneOrphans = true
	}
	if v := c.String("metrics-addr"); v != "" {
		conf.MetricsAddr = v
	}
	if v := c.Args().First(); v != "" {
		conf.Sync.Root = v
	}
}

func applyDefaults(conf *Config) error {
	if conf.Sync.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("unable to locate home dir for the default root err:%w", err)
		}
		conf.Sync.Root = filepath.Join(home, defaultRootDirName)
	}
	if !filepath.IsAbs(conf.Sync.Root) {
		abs, err := filepath.Abs(conf.Sync.Root)
		if err != nil {
			return fmt.Errorf("unable to resolve root path err:%w", err)
		}
		conf.Sync.Root = abs
	}

	if conf.APIURL == "" {
		conf.APIURL = catalog.DefaultEndpoint
	}

	if conf.CloneProto == "" {
		conf.CloneProto = cloneProtoHTTPS
	}

	return nil
}

func (c *Config) validate() error {
	var errs []error

	if c.CloneProto != cloneProtoHTTPS && c.CloneProto != cloneProtoSSH {
		errs = append(errs, fmt.Errorf("clone proto must be %s or %s, got '%s'",
			cloneProtoHTTPS, cloneProtoSSH, c.CloneProto))
	}

	for _, pattern := range slices.Concat(c.Include, c.Exclude) {
		if _, err := path.Match(pattern, "x"); err != nil {
			errs = append(errs, fmt.Errorf("invalid pattern '%s' err:%w", pattern, err))
		}
	}

	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return fmt.Errorf("%s", errs)
	}
	return nil
}

// filterRepos applies include and exclude glob patterns to repository
// names. Include runs first, then exclude drops from whatever remains.
func filterRepos(repos []catalog.Repo, include, exclude []string) []catalog.Repo {
	var kept []catalog.Repo
	for _, repo := range repos {
		if len(include) > 0 && !matchAny(include, repo.Name) {
			continue
		}
		if matchAny(exclude, repo.Name) {
			continue
		}
		kept = append(kept, repo)
	}
	return kept
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		// pattern validity is checked up front in validate
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func validateConfig(yamlData []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return err
	}

	// check config sections for unexpected keys
	allowedKeys := getAllowedKeys(Config{})
	if key := findUnexpectedKey(raw, allowedKeys); key != "" {
		return fmt.Errorf("unexpected key: .%v", key)
	}

	// check "auth" section
	if authMap, ok := raw["auth"].(map[string]interface{}); ok {
		allowedAuthKeys := getAllowedKeys(auth.Config{})
		if key := findUnexpectedKey(authMap, allowedAuthKeys); key != "" {
			return fmt.Errorf("unexpected key: .auth.%v", key)
		}
	}

	return nil
}

// getAllowedKeys retrieves a list of allowed keys from the specified struct
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	val := reflect.ValueOf(config)
	typ := reflect.TypeOf(config)

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag == "" {
			continue
		}
		name, opts, _ := strings.Cut(yamlTag, ",")
		// inlined structs contribute their keys at this level
		if strings.Contains(opts, "inline") {
			allowedKeys = append(allowedKeys, getAllowedKeys(val.Field(i).Interface())...)
			continue
		}
		allowedKeys = append(allowedKeys, name)
	}
	return allowedKeys
}

func findUnexpectedKey(raw interface{}, allowedKeys []string) string {
	for key := range raw.(map[string]interface{}) {
		if !slices.Contains(allowedKeys, key) {
			return key
		}
	}

	return ""
}
