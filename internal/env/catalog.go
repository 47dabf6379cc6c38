package env

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// DefaultCatalogFile is read when no properties file is named.
const DefaultCatalogFile = "server.properties"

const (
	keyOutDir     = "OUTDIR"
	keyLoadFile   = "LOADFILE"
	keyCacheDir   = "CACHEDIR"
	keyMainFile   = "MAINFILE"
	keyIndexIDs   = "INDEXIDS"
	keyIndexName  = "INDEX-"
	keyPortOffset = "PORTOFF"

	// maxPortOffset keeps the listen port inside the TCP port range
	maxPortOffset = 65535 - 43594
)

var (
	ErrMissingKey   = errors.New("Required key is missing")
	ErrInvalidValue = errors.New("Value is invalid")
)

// CatalogMode selects which keys a catalog must carry.
type CatalogMode int

const (
	// ServeMode needs everything SetupMode does plus the port offset.
	ServeMode CatalogMode = iota
	SetupMode
)

// Catalog describes where the archive cache and preload manifest live.
type Catalog struct {
	OutDir   string
	LoadFile string
	CacheDir string
	MainFile string

	// IndexIDs lists the configured indexes in file order
	IndexIDs []uint8

	// IndexFiles maps index ids to their index file names within CacheDir
	IndexFiles map[uint8]string

	PortOffset int
}

// ManifestPath is the preload manifest the setup command writes and the
// server reads.
func (c *Catalog) ManifestPath() string {
	return filepath.Join(c.OutDir, c.LoadFile)
}

// ConfigError reports every problem found in a catalog at once.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("Invalid configuration in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Errors returns each individual problem.
func (e *ConfigError) Errors() []error {
	return multierr.Errors(e.Err)
}

// LoadCatalog reads and validates the properties file at path.
func LoadCatalog(path string, mode CatalogMode) (*Catalog, error) {
	if path == "" {
		path = DefaultCatalogFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("properties")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("Failed to read catalog %s: %w", path, err)
	}

	catalog, err := parseCatalog(v, mode)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	return catalog, nil
}

func parseCatalog(v *viper.Viper, mode CatalogMode) (*Catalog, error) {
	var errs error

	required := func(key string) string {
		if !v.IsSet(key) || strings.TrimSpace(v.GetString(key)) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, ErrMissingKey))
			return ""
		}

		return strings.TrimSpace(v.GetString(key))
	}

	c := &Catalog{
		OutDir:     required(keyOutDir),
		LoadFile:   required(keyLoadFile),
		CacheDir:   required(keyCacheDir),
		MainFile:   required(keyMainFile),
		IndexFiles: make(map[uint8]string),
	}

	if ids := required(keyIndexIDs); ids != "" {
		for _, field := range strings.Split(ids, ":") {
			id, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %q is not an index id between 0 and 255: %w",
					keyIndexIDs, field, ErrInvalidValue))
				continue
			}

			if _, ok := c.IndexFiles[uint8(id)]; ok {
				continue
			}

			c.IndexIDs = append(c.IndexIDs, uint8(id))
			c.IndexFiles[uint8(id)] = required(keyIndexName + strconv.FormatUint(id, 10))
		}
	}

	if mode == ServeMode {
		if raw := required(keyPortOffset); raw != "" {
			off, err := strconv.Atoi(raw)
			if err != nil || off < 0 || off > maxPortOffset {
				errs = multierr.Append(errs, fmt.Errorf("%s: %q is not a port offset between 0 and %d: %w",
					keyPortOffset, raw, maxPortOffset, ErrInvalidValue))
			}
			c.PortOffset = off
		}
	}

	if errs != nil {
		return nil, errs
	}

	return c, nil
}
