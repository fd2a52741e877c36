package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/prebid/prebid-server-eplanning/errortypes"
	"github.com/prebid/prebid-server-eplanning/util/iputil"
)

// Configuration specifies the static application config.
type Configuration struct {
	ExternalURL string `mapstructure:"external_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AdminPort   int    `mapstructure:"admin_port"`
	EnableGzip  bool   `mapstructure:"enable_gzip"`
	// StatusResponse is the string which will be returned by the /status endpoint when things are OK.
	// If empty, it will return a 204 with no content.
	StatusResponse  string          `mapstructure:"status_response"`
	AuctionTimeouts AuctionTimeouts `mapstructure:"auction_timeouts_ms"`
	// MaxRequestSize is the largest auction body, in bytes, the server will read.
	MaxRequestSize        int64                 `mapstructure:"max_request_size"`
	RequestTimeoutHeaders RequestTimeoutHeaders `mapstructure:"request_timeout_headers"`
	RequestValidation     RequestValidation     `mapstructure:"request_validation"`
	Client                HTTPClient            `mapstructure:"http_client"`
	Metrics               Metrics               `mapstructure:"metrics"`
	UserSync              UserSync              `mapstructure:"user_sync"`
	DataCenter            string                `mapstructure:"datacenter"`
	// Adapters is keyed by lowercase bidder name.
	Adapters        map[string]Adapter `mapstructure:"adapters"`
	BidderInfoDir   string             `mapstructure:"bidder_info_dir"`
	BidderParamsDir string             `mapstructure:"bidder_params_dir"`
}

// AuctionTimeouts bounds the time the bidder is given to answer.
type AuctionTimeouts struct {
	// The default timeout is used if the user didn't define a timeout in their request.
	Default uint64 `mapstructure:"default"`
	// The max timeout is used as an absolute cap, to prevent excessively long ones. Use 0 for no cap.
	Max uint64 `mapstructure:"max"`
}

func (cfg *AuctionTimeouts) validate(errs []error) []error {
	if cfg.Max < cfg.Default && cfg.Max > 0 {
		errs = append(errs, fmt.Errorf("auction_timeouts_ms.max cannot be less than auction_timeouts_ms.default. max=%d, default=%d", cfg.Max, cfg.Default))
	}
	return errs
}

// LimitAuctionTimeout returns the min of requested or cfg.MaxAuctionTimeout.
// Both values treat "0" as "infinite".
func (cfg *AuctionTimeouts) LimitAuctionTimeout(requested time.Duration) time.Duration {
	if requested == 0 && cfg.Default != 0 {
		return time.Duration(cfg.Default) * time.Millisecond
	}
	if cfg.Max > 0 {
		maxTimeout := time.Duration(cfg.Max) * time.Millisecond
		if requested == 0 || requested > maxTimeout {
			return maxTimeout
		}
	}
	return requested
}

// RequestTimeoutHeaders names the headers a load balancer uses to report how long an auction
// request waited in its queue, and how long it may wait. Both values are in seconds.
type RequestTimeoutHeaders struct {
	RequestTimeInQueue    string `mapstructure:"request_time_in_queue"`
	RequestTimeoutInQueue string `mapstructure:"request_timeout_in_queue"`
}

// RequestValidation lists the networks whose addresses are never taken as the client address
// of an auction request.
type RequestValidation struct {
	IPv4PrivateNetworks []string `mapstructure:"ipv4_private_networks"`
	IPv6PrivateNetworks []string `mapstructure:"ipv6_private_networks"`
}

// IPValidator parses the private networks into a validator of public client addresses.
func (cfg *RequestValidation) IPValidator() (iputil.PublicNetworkIPValidator, error) {
	ipv4, err := iputil.ParseNetworks(cfg.IPv4PrivateNetworks)
	if err != nil {
		return iputil.PublicNetworkIPValidator{}, fmt.Errorf("request_validation.ipv4_private_networks: %v", err)
	}
	ipv6, err := iputil.ParseNetworks(cfg.IPv6PrivateNetworks)
	if err != nil {
		return iputil.PublicNetworkIPValidator{}, fmt.Errorf("request_validation.ipv6_private_networks: %v", err)
	}
	return iputil.PublicNetworkIPValidator{
		IPv4PrivateNetworks: ipv4,
		IPv6PrivateNetworks: ipv6,
	}, nil
}

// HTTPClient configures the transport used to call the bidder.
type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

type InfluxMetrics struct {
	Host               string `mapstructure:"host"`
	Database           string `mapstructure:"database"`
	Measurement        string `mapstructure:"measurement"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	AlignTimestamps    bool   `mapstructure:"align_timestamps"`
	MetricSendInterval int    `mapstructure:"metric_send_interval"`
}

func (cfg *InfluxMetrics) validate(errs []error) []error {
	if cfg.Host != "" && cfg.MetricSendInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.influxdb.metric_send_interval must be positive when metrics.influxdb.host is set. Got %d", cfg.MetricSendInterval))
	}
	return errs
}

type PrometheusMetrics struct {
	Port             int    `mapstructure:"port"`
	Namespace        string `mapstructure:"namespace"`
	Subsystem        string `mapstructure:"subsystem"`
	TimeoutMillisRaw int    `mapstructure:"timeout_ms"`
}

func (cfg *PrometheusMetrics) validate(errs []error) []error {
	if cfg.Port > 0 && cfg.TimeoutMillisRaw <= 0 {
		errs = append(errs, fmt.Errorf("metrics.prometheus.timeout_ms must be positive if metrics.prometheus.port is defined. Got timeout=%d and port=%d", cfg.TimeoutMillisRaw, cfg.Port))
	}
	return errs
}

func (m *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(m.TimeoutMillisRaw) * time.Millisecond
}

// UserSync specifies the host level user sync settings.
type UserSync struct {
	// RedirectURL is the default /setuid template shared by every bidder syncer.
	RedirectURL string `mapstructure:"redirect_url"`
	ExternalURL string `mapstructure:"external_url"`
}

// Server specifies the host level values bidder Builders may use.
type Server struct {
	ExternalUrl string
	GvlID       int
	DataCenter  string
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}

	// Adapter keys are matched case-insensitively against bidder names.
	adapters := make(map[string]Adapter, len(c.Adapters))
	for name, adapter := range c.Adapters {
		adapters[strings.ToLower(name)] = adapter
	}
	c.Adapters = adapters

	if c.UserSync.ExternalURL == "" {
		c.UserSync.ExternalURL = c.ExternalURL
	}

	glog.Info("Logging the resolved configuration:")
	logGeneral(&c)

	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateErrors("validation errors", errs)
	}

	return &c, nil
}

func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.Port == cfg.AdminPort && cfg.Port != 0 {
		errs = append(errs, errors.New("port and admin_port must not be the same"))
	}
	if cfg.MaxRequestSize < 0 {
		errs = append(errs, fmt.Errorf("cfg.max_request_size must be >= 0. Got %d", cfg.MaxRequestSize))
	}
	errs = cfg.AuctionTimeouts.validate(errs)
	if _, err := cfg.RequestValidation.IPValidator(); err != nil {
		errs = append(errs, err)
	}
	errs = cfg.Metrics.Prometheus.validate(errs)
	errs = cfg.Metrics.Influxdb.validate(errs)
	errs = validateAdapters(cfg.Adapters, errs)
	return errs
}

func logGeneral(cfg *Configuration) {
	glog.Infof("external_url=%s host=%s port=%d admin_port=%d enable_gzip=%t", cfg.ExternalURL, cfg.Host, cfg.Port, cfg.AdminPort, cfg.EnableGzip)
	glog.Infof("auction_timeouts_ms.default=%d auction_timeouts_ms.max=%d", cfg.AuctionTimeouts.Default, cfg.AuctionTimeouts.Max)
	for name, adapter := range cfg.Adapters {
		glog.Infof("adapters.%s.endpoint=%s adapters.%s.disabled=%t", name, adapter.Endpoint, name, adapter.Disabled)
	}
}

// SetupViper sets the default values, file lookup and environment bindings for the app config.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("datacenter", "")
	v.SetDefault("auction_timeouts_ms.default", 1000)
	v.SetDefault("auction_timeouts_ms.max", 0)
	v.SetDefault("max_request_size", 1024*256)
	v.SetDefault("request_timeout_headers.request_time_in_queue", "")
	v.SetDefault("request_timeout_headers.request_timeout_in_queue", "")
	v.SetDefault("request_validation.ipv4_private_networks", []string{"10.0.0.0/8", "100.64.0.0/10", "127.0.0.0/8", "169.254.0.0/16", "172.16.0.0/12", "192.168.0.0/16"})
	v.SetDefault("request_validation.ipv6_private_networks", []string{"::1/128", "fc00::/7", "fe80::/10", "ff00::/8", "2001:db8::/32"})
	v.SetDefault("http_client.max_connections_per_host", 0) // unlimited
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.measurement", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.align_timestamps", false)
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10*1000)
	v.SetDefault("user_sync.redirect_url", "{{.ExternalURL}}/setuid?bidder={{.SyncerKey}}&gdpr={{.GDPR}}&gdpr_consent={{.GDPRConsent}}&us_privacy={{.USPrivacy}}&f={{.SyncType}}&uid={{.UserMacro}}")
	v.SetDefault("user_sync.external_url", "")
	v.SetDefault("bidder_info_dir", "static/bidder-info")
	v.SetDefault("bidder_params_dir", "static/bidder-params")
	v.SetDefault("adapters.eplanning.endpoint", "https://ads.us.e-planning.net/pbs/1")
	v.SetDefault("adapters.eplanning.disabled", false)

	v.SetEnvPrefix("PBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		if err := v.ReadInConfig(); err != nil {
			glog.Infof("Could not read config file %s, using defaults and environment: %v", filename, err)
		}
	}
}
