package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xyproto/env/v2"
)

// EnvPrefix is prepended to SECTION_KEY when looking up environment overrides,
// e.g. SIMPLIMATH_SERVER_LISTEN_ADDRESS.
const EnvPrefix = "SIMPLIMATH"

// sectionOrder fixes the layout of generated config files.
var sectionOrder = []string{"Interpreter", "Server", "TLS", "Storage", "JWT", "Debug"}

// Config verwaltet die Anwendungskonfiguration
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// Initialize loads the global configuration from configPath, writing the
// defaults there first if the file does not exist. A settings.local.cfg next
// to it overrides individual keys.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadConfig(configPath)
		if err != nil {
			return
		}
		localPath := filepath.Join(filepath.Dir(configPath), "settings.local.cfg")
		if _, statErr := os.Stat(localPath); statErr == nil {
			// Ein fehlerhaftes Local-File bricht den Start nicht ab
			_ = globalConfig.mergeFile(localPath)
		}
	})
	return err
}

// loadConfig lädt die Konfiguration aus einer Datei
func loadConfig(filePath string) (*Config, error) {
	config := newConfig(filePath)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		config.createDefaultConfig()
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}
	if err := config.mergeFile(filePath); err != nil {
		return nil, err
	}
	return config, nil
}

func newConfig(filePath string) *Config {
	return &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
}

// mergeFile reads an INI file; its keys overwrite existing ones.
func (c *Config) mergeFile(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()
	return c.parse(file)
}

func (c *Config) parse(r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scanner := bufio.NewScanner(r)
	currentSection := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Überspringe leere Zeilen und Kommentare
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if c.settings[currentSection] == nil {
				c.settings[currentSection] = make(map[string]string)
			}
			continue
		}

		if currentSection == "" {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok {
			c.settings[currentSection][strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return scanner.Err()
}

// createDefaultConfig erstellt die Standard-Konfiguration
func (c *Config) createDefaultConfig() {
	c.settings["Interpreter"] = map[string]string{
		"max_program_lines": "0",
		"max_wait_seconds":  "0",
	}

	c.settings["Server"] = map[string]string{
		"listen_address":          ":8080",
		"read_buffer_size":        "1024",
		"write_buffer_size":       "1024",
		"allowed_origins":         "",
		"input_timeout":           "5m",
		"pong_timeout":            "60s",
		"write_wait_timeout":      "10s",
		"max_message_size_kb":     "512",
		"max_clients":             "100",
		"max_messages_per_minute": "200",
	}

	c.settings["TLS"] = map[string]string{
		"enable_tls":         "false",
		"enable_letsencrypt": "false",
		"domain":             "",
		"letsencrypt_email":  "",
		"cert_cache_dir":     "./certs",
		"cert_file":          "./certs/server.crt",
		"key_file":           "./certs/server.key",
		"self_signed":        "false",
		"redirect_address":   "",
	}

	c.settings["Storage"] = map[string]string{
		"database_file": "simplimath.db",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key":             "",
		"token_expiration_hours": "24",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "true",
		"log_level":            "INFO",
		"log_file":             "simplimath.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_interpreter":      "false",
		"log_scheduler":        "false",
		"log_terminal":         "true",
		"log_auth":             "true",
		"log_storage":          "true",
		"log_config":           "true",
		"log_security":         "true",
		"log_general":          "true",
	}
}

// saveToFile speichert die aktuelle Konfiguration in die Datei
func (c *Config) saveToFile() error {
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	c.write(w)
	return w.Flush()
}

// write emits known sections first, then any extra ones, keys sorted.
func (c *Config) write(w io.Writer) {
	fmt.Fprint(w, "; SimpliMath Configuration File\n")
	fmt.Fprint(w, "; Generated automatically - modify with care\n")
	fmt.Fprintf(w, "; Every key can be overridden with %s_<SECTION>_<KEY>\n\n", EnvPrefix)

	sections := append([]string(nil), sectionOrder...)
	var extra []string
	for name := range c.settings {
		if !contains(sectionOrder, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	sections = append(sections, extra...)

	for _, section := range sections {
		settings, exists := c.settings[section]
		if !exists {
			continue
		}
		fmt.Fprintf(w, "[%s]\n", section)
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "%s = %s\n", key, settings[key])
		}
		fmt.Fprint(w, "\n")
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// EnvName returns the environment variable that overrides section/key.
func EnvName(section, key string) string {
	return strings.ToUpper(EnvPrefix + "_" + section + "_" + key)
}

func (c *Config) lookup(section, key string) (string, bool) {
	if name := EnvName(section, key); env.Has(name) {
		return env.Str(name), true
	}
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sectionMap, exists := c.settings[section]; exists {
		value, ok := sectionMap[key]
		return value, ok
	}
	return "", false
}

// GetString gibt einen String-Wert aus der Konfiguration zurück.
// Environment overrides win over the file.
func GetString(section, key, defaultValue string) string {
	if value, ok := globalConfig.lookup(section, key); ok {
		return value
	}
	return defaultValue
}

// GetInt gibt einen Integer-Wert aus der Konfiguration zurück
func GetInt(section, key string, defaultValue int) int {
	if value, err := strconv.Atoi(GetString(section, key, "")); err == nil {
		return value
	}
	return defaultValue
}

// GetFloat gibt einen Float-Wert aus der Konfiguration zurück
func GetFloat(section, key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(GetString(section, key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// GetBool gibt einen Boolean-Wert aus der Konfiguration zurück
func GetBool(section, key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(GetString(section, key, "")); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration gibt einen Duration-Wert aus der Konfiguration zurück
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(GetString(section, key, "")); err == nil {
		return value
	}
	return defaultValue
}

// GetList splits a comma separated value, dropping empty entries.
func GetList(section, key string) []string {
	var out []string
	for _, item := range strings.Split(GetString(section, key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetSection returns a copy of all key-value pairs of a section.
// Environment overrides are not applied here.
func GetSection(sectionName string) map[string]string {
	result := make(map[string]string)
	if globalConfig == nil {
		return result
	}
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	for key, value := range globalConfig.settings[sectionName] {
		result[key] = value
	}
	return result
}

// SetString setzt einen String-Wert in der Konfiguration
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Save speichert die aktuelle Konfiguration in die Datei
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	return globalConfig.saveToFile()
}
