// Package config loads proxy configuration from config.yaml plus the three
// auxiliary JSON descriptor files, with environment-variable overrides, per
// spec.md §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v2"
)

// ServerConfig is the top-level "server" section of config.yaml.
type ServerConfig struct {
	Listen         string `yaml:"listen"`
	MetricsListen  string `yaml:"metrics_listen"`
}

// DNSConfig is the "dns" section: resolver mode and the cache policy.
type DNSConfig struct {
	Mode         string `yaml:"mode"` // "doh" or "dot"
	CacheMaxSize int    `yaml:"cache_max_size"`
	CacheTTLSec  int    `yaml:"cache_ttl_sec"`
}

// ChaosConfig is the "chaos" section: fragmentation aggressiveness knobs.
type ChaosConfig struct {
	AggressiveMinFragments int `yaml:"aggressive_min_fragments"`
	AggressiveMaxFragments int `yaml:"aggressive_max_fragments"`
	NormalMinFragments     int `yaml:"normal_min_fragments"`
	NormalMaxFragments     int `yaml:"normal_max_fragments"`
}

// EvasionConfig is the "evasion" section: fragmentation and fronting toggles.
type EvasionConfig struct {
	FragmentationEnabled bool `yaml:"fragmentation_enabled"`
	Aggressive           bool `yaml:"aggressive"`
	FrontingEnabled      bool `yaml:"fronting_enabled"`
}

// BypassConfig is the "bypass" section: path to the domain/IP rule files.
type BypassConfig struct {
	IranianDomainsFile string `yaml:"iranian_domains_file"`
}

// LimitsConfig is the "limits" section: admission control knobs.
type LimitsConfig struct {
	MaxConnections  int     `yaml:"max_connections"`
	AcquireTimeoutSec float64 `yaml:"acquire_timeout_sec"`
	PerIPRatePerSec float64 `yaml:"per_ip_rate_per_sec"`
	PerIPBurst      int     `yaml:"per_ip_burst"`
}

// BuffersConfig is the "buffers" section, per spec.md §6.
type BuffersConfig struct {
	Small  int `yaml:"small"`
	Medium int `yaml:"medium"`
	Large  int `yaml:"large"`
}

// WebConfig is the "web" section: the stats/metrics surface.
type WebConfig struct {
	Enabled      bool `yaml:"enabled"`
	MetricsAdmin bool `yaml:"metrics_admin_guard"`
}

// LoggingConfig is the "logging" section.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the fully-loaded top-level configuration tree.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DNS      DNSConfig      `yaml:"dns"`
	Chaos    ChaosConfig    `yaml:"chaos"`
	Evasion  EvasionConfig  `yaml:"evasion"`
	Bypass   BypassConfig   `yaml:"bypass"`
	Limits   LimitsConfig   `yaml:"limits"`
	Buffers  BuffersConfig  `yaml:"buffers"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`

	DNSServers    DNSServersFile
	CDNDomains    CDNDomainsFile
	IranianRules  IranianDomainsFile

	Env *EnvConfig `yaml:"-"`

	// Warnings collects non-fatal load problems (missing descriptor files
	// replaced by built-in defaults) for the caller to log.
	Warnings []string `yaml:"-"`
}

// DNSServerEntry is one entry of dns_servers.json's doh_servers list.
type DNSServerEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	IP   string `json:"ip,omitempty"`
}

// DoTServerEntry is one entry of dns_servers.json's dot_servers list.
type DoTServerEntry struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Hostname string `json:"hostname,omitempty"`
}

// DNSServersFile mirrors dns_servers.json, per spec.md §6.
type DNSServersFile struct {
	DoHServers []DNSServerEntry `json:"doh_servers"`
	DoTServers []DoTServerEntry `json:"dot_servers"`
}

// CDNDomainsFile mirrors cdn_domains.json, per spec.md §6.
type CDNDomainsFile struct {
	CDNDomains map[string][]string `json:"cdn_domains"`
}

// IranianDomainsFile mirrors iranian_domains.json, per spec.md §6. The name
// is preserved from the original descriptor; it is loaded as the configured
// bypass rule set regardless of deployment locale.
type IranianDomainsFile struct {
	Domains          []string `json:"domains"`
	IPRanges         []string `json:"ip_ranges"`
	DownloadMimeTypes []string `json:"download_mime_types"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:        "0.0.0.0:10809",
			MetricsListen: ":9090",
		},
		DNS: DNSConfig{
			Mode:         "doh",
			CacheMaxSize: 1000,
			CacheTTLSec:  300,
		},
		Chaos: ChaosConfig{
			AggressiveMinFragments: 3,
			AggressiveMaxFragments: 7,
			NormalMinFragments:     2,
			NormalMaxFragments:     4,
		},
		Evasion: EvasionConfig{
			FragmentationEnabled: true,
			Aggressive:           false,
			FrontingEnabled:      true,
		},
		Bypass: BypassConfig{
			IranianDomainsFile: "iranian_domains.json",
		},
		Limits: LimitsConfig{
			MaxConnections:    1000,
			AcquireTimeoutSec: 1.0,
			PerIPRatePerSec:   0,
			PerIPBurst:        0,
		},
		Buffers: BuffersConfig{
			Small:  8192,
			Medium: 65536,
			Large:  262144,
		},
		Web: WebConfig{
			Enabled:      true,
			MetricsAdmin: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config.yaml (if present) over built-in defaults, then the
// three auxiliary JSON descriptors, then applies environment overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing config.yaml: %w", err)
		}
	}

	found, err := loadJSON("dns_servers.json", &cfg.DNSServers)
	if err != nil {
		return nil, err
	}
	if !found || (len(cfg.DNSServers.DoHServers) == 0 && len(cfg.DNSServers.DoTServers) == 0) {
		cfg.DNSServers = builtinDNSServers()
		cfg.Warnings = append(cfg.Warnings, "dns_servers.json missing or empty, using built-in servers")
	}

	found, err = loadJSON("cdn_domains.json", &cfg.CDNDomains)
	if err != nil {
		return nil, err
	}
	if !found || len(cfg.CDNDomains.CDNDomains) == 0 {
		cfg.CDNDomains = builtinCDNDomains()
		cfg.Warnings = append(cfg.Warnings, "cdn_domains.json missing or empty, using built-in CDN table")
	}

	iranianFile := cfg.Bypass.IranianDomainsFile
	if iranianFile == "" {
		iranianFile = "iranian_domains.json"
	}
	found, err = loadJSON(iranianFile, &cfg.IranianRules)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg.IranianRules = builtinBypassRules()
		cfg.Warnings = append(cfg.Warnings, iranianFile+" missing, using built-in bypass rules")
	}

	cfg.Env = LoadEnv()
	cfg.applyEnvOverrides()

	return cfg, nil
}

func loadJSON(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return true, nil
}

// builtinDNSServers is the fallback roster used when dns_servers.json is
// absent: well-known public DoH/DoT operators with pinned bootstrap IPs so
// resolving the resolver never recurses through the proxy's own DNS path.
func builtinDNSServers() DNSServersFile {
	return DNSServersFile{
		DoHServers: []DNSServerEntry{
			{Name: "cloudflare", URL: "https://cloudflare-dns.com/dns-query", IP: "104.16.249.249"},
			{Name: "google", URL: "https://dns.google/resolve", IP: "8.8.8.8"},
			{Name: "quad9", URL: "https://dns.quad9.net/dns-query", IP: "9.9.9.9"},
		},
		DoTServers: []DoTServerEntry{
			{Name: "cloudflare", Host: "1.1.1.1", Port: 853, Hostname: "cloudflare-dns.com"},
			{Name: "google", Host: "8.8.8.8", Port: 853, Hostname: "dns.google"},
			{Name: "quad9", Host: "9.9.9.9", Port: 853, Hostname: "dns.quad9.net"},
		},
	}
}

// builtinCDNDomains is the fallback fronting table used when
// cdn_domains.json is absent.
func builtinCDNDomains() CDNDomainsFile {
	return CDNDomainsFile{
		CDNDomains: map[string][]string{
			"cloudflare": {"cdnjs.cloudflare.com", "ajax.cloudflare.com"},
			"fastly":     {"fastly.jsdelivr.net", "polyfill-fastly.io"},
			"akamai":     {"a248.e.akamai.net"},
		},
	}
}

// builtinBypassRules is the fallback rule set used when the bypass
// descriptor file is absent: the ".ir" suffix, localhost, and the RFC1918
// private ranges.
func builtinBypassRules() IranianDomainsFile {
	return IranianDomainsFile{
		Domains:  []string{".ir", "localhost"},
		IPRanges: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := c.Env.Listen; v != "" {
		c.Server.Listen = v
	}
	if v := c.Env.MetricsListen; v != "" {
		c.Server.MetricsListen = v
	}
	if v := c.Env.LogLevel; v != "" {
		c.Logging.Level = v
	}
	if c.Env.DNSMode != "" {
		c.DNS.Mode = c.Env.DNSMode
	}
}

// Validate checks the configuration for obvious mistakes before startup.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Listen == "" {
		errs = append(errs, "server.listen is required")
	}
	if c.DNS.Mode != "doh" && c.DNS.Mode != "dot" {
		errs = append(errs, "dns.mode must be 'doh' or 'dot'")
	}
	if c.DNS.Mode == "doh" && len(c.DNSServers.DoHServers) == 0 {
		errs = append(errs, "dns.mode is 'doh' but dns_servers.json has no doh_servers")
	}
	if c.DNS.Mode == "dot" && len(c.DNSServers.DoTServers) == 0 {
		errs = append(errs, "dns.mode is 'dot' but dns_servers.json has no dot_servers")
	}
	if c.Limits.MaxConnections <= 0 {
		errs = append(errs, "limits.max_connections must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
