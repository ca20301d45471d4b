// Package script resolves the logical helper scripts the assistant drives
// (package installer, git utilities, broker utilities) to files on disk.
package script

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNotConfigured = errors.New("script not configured")

type Name int

const (
	PackageInstaller Name = iota
	GitUtils
	BrokerUtils
)

type entry struct {
	file string
	key  string
	env  string
}

var registry = map[Name]entry{
	PackageInstaller: {file: "pkgInstaller.sh", key: "scripts.package_installer", env: "PKG_INSTALLER_SCRIPT"},
	GitUtils:         {file: "git_utils.sh", key: "scripts.git_utils", env: "GIT_UTILS_SCRIPT"},
	BrokerUtils:      {file: "kafka_utils.sh", key: "scripts.broker_utils", env: "KAFKA_UTILS_SCRIPT"},
}

// All lists every known script in a stable order.
func All() []Name {
	return []Name{PackageInstaller, GitUtils, BrokerUtils}
}

func (n Name) String() string {
	if e, ok := registry[n]; ok {
		return e.file
	}
	return fmt.Sprintf("script(%d)", int(n))
}

// Key is the configuration key holding the script path.
func (n Name) Key() string {
	return registry[n].key
}

// Env is the environment variable holding the script path.
func (n Name) Env() string {
	return registry[n].env
}

// Descriptor is a resolved script. It is a value; re-resolve instead of
// keeping one around between runs.
type Descriptor struct {
	Name Name
	Path string
}

// Source is the configuration the locator reads from. *viper.Viper
// satisfies it.
type Source interface {
	GetString(key string) string
}

type Locator struct {
	src Source
}

func NewLocator(src Source) *Locator {
	return &Locator{src: src}
}

// Resolve looks the script up in the configuration on every call so edits to
// the environment or config file between runs are picked up.
func (l *Locator) Resolve(name Name) (Descriptor, error) {
	key := name.Key()
	if key == "" {
		return Descriptor{}, fmt.Errorf("%w: unknown script %s", ErrNotConfigured, name)
	}

	path := strings.TrimSpace(os.ExpandEnv(l.src.GetString(key)))
	if path == "" {
		return Descriptor{}, fmt.Errorf("%w: %s is not set (%s)", ErrNotConfigured, name, name.Env())
	}

	st, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s not found at %s", ErrNotConfigured, name, path)
	}
	if st.IsDir() {
		return Descriptor{}, fmt.Errorf("%w: %s path %s is a directory", ErrNotConfigured, name, path)
	}

	return Descriptor{Name: name, Path: path}, nil
}
