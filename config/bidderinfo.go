package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
	"gopkg.in/yaml.v2"
)

// BidderInfos contains a mapping of bidder name to bidder info.
type BidderInfos map[string]BidderInfo

// BidderInfo specifies all configuration for a bidder except for enabled status, endpoint, and extra information.
type BidderInfo struct {
	Enabled      bool              `yaml:"-"` // copied from adapter config for convenience.
	Maintainer   *MaintainerInfo   `yaml:"maintainer"`
	Capabilities *CapabilitiesInfo `yaml:"capabilities"`
	GVLVendorID  uint16            `yaml:"gvlVendorID"`
	Syncer       *Syncer           `yaml:"userSync"`
}

// MaintainerInfo specifies the support email address for a bidder.
type MaintainerInfo struct {
	Email string `yaml:"email"`
}

// CapabilitiesInfo specifies the supported platforms for a bidder.
type CapabilitiesInfo struct {
	App  *PlatformInfo `yaml:"app"`
	Site *PlatformInfo `yaml:"site"`
}

// PlatformInfo specifies the supported media types for a bidder.
type PlatformInfo struct {
	MediaTypes []openrtb_ext.BidType `yaml:"mediaTypes"`
}

// Syncer specifies the user sync settings for a bidder. This struct is shared by the adapter config,
// so it needs to have both yaml and mapstructure mappings.
type Syncer struct {
	// Key is used as the record key for the user sync cookie. Defaults to the bidder name.
	Key string `yaml:"key" mapstructure:"key"`

	// Default identifies which endpoint is preferred if both are allowed. Valid values are
	// `iframe` and `redirect`.
	Default string `yaml:"default" mapstructure:"default"`

	// IFrame configures an iframe endpoint for user syncing.
	IFrame *SyncerEndpoint `yaml:"iframe" mapstructure:"iframe"`

	// Redirect configures an redirect endpoint for user syncing. This is also known as an image
	// endpoint in the Prebid.js project.
	Redirect *SyncerEndpoint `yaml:"redirect" mapstructure:"redirect"`

	// SupportCORS identifies if CORS is supported for the user syncing endpoints.
	SupportCORS *bool `yaml:"supportCors" mapstructure:"support_cors"`
}

// SyncerEndpoint specifies one user sync url of a bidder.
//
// URL may contain {{.RedirectURL}}, replaced at startup with the escaped host redirect, and the
// request time macros {{.GDPR}}, {{.GDPRConsent}} and {{.USPrivacy}}.
type SyncerEndpoint struct {
	URL string `yaml:"url" mapstructure:"url"`

	// RedirectURL overrides the host user_sync.redirect_url template for this bidder.
	RedirectURL string `yaml:"redirectUrl" mapstructure:"redirect_url"`

	// ExternalURL overrides the host external url used by the RedirectURL template.
	ExternalURL string `yaml:"externalUrl" mapstructure:"external_url"`

	// UserMacro is the bidder server's user id macro, for example "$UID".
	UserMacro string `yaml:"userMacro" mapstructure:"user_macro"`
}

// Override returns a new Syncer object where values in the original are replaced by non-empty/non-default
// values in the override. No changes are made to the original or override Syncer.
func (s *Syncer) Override(original *Syncer) *Syncer {
	if s == nil && original == nil {
		return nil
	}

	var copy Syncer
	if original != nil {
		copy = *original
	}

	if s == nil {
		return &copy
	}

	if s.Key != "" {
		copy.Key = s.Key
	}

	if s.Default != "" {
		copy.Default = s.Default
	}

	if original == nil {
		copy.IFrame = s.IFrame.Override(nil)
		copy.Redirect = s.Redirect.Override(nil)
	} else {
		copy.IFrame = s.IFrame.Override(original.IFrame)
		copy.Redirect = s.Redirect.Override(original.Redirect)
	}

	if s.SupportCORS != nil {
		copy.SupportCORS = s.SupportCORS
	}

	return &copy
}

// Override returns a new SyncerEndpoint object where values in the original are replaced by non-empty
// values in the override. No changes are made to the original or override SyncerEndpoint.
func (s *SyncerEndpoint) Override(original *SyncerEndpoint) *SyncerEndpoint {
	if s == nil && original == nil {
		return nil
	}

	var copy SyncerEndpoint
	if original != nil {
		copy = *original
	}

	if s == nil {
		return &copy
	}

	if s.URL != "" {
		copy.URL = s.URL
	}

	if s.RedirectURL != "" {
		copy.RedirectURL = s.RedirectURL
	}

	if s.ExternalURL != "" {
		copy.ExternalURL = s.ExternalURL
	}

	if s.UserMacro != "" {
		copy.UserMacro = s.UserMacro
	}

	return &copy
}

// LoadBidderInfoFromDisk parses all static/bidder-info/{bidder}.yaml files from the file system.
func LoadBidderInfoFromDisk(path string, adapterConfigs map[string]Adapter, bidders []string) (BidderInfos, error) {
	reader := infoReaderFromDisk{path}
	return loadBidderInfo(reader, adapterConfigs, bidders)
}

func loadBidderInfo(r infoReader, adapterConfigs map[string]Adapter, bidders []string) (BidderInfos, error) {
	infos := BidderInfos{}

	for _, bidder := range bidders {
		data, err := r.Read(bidder)
		if err != nil {
			return nil, err
		}

		info := BidderInfo{}
		if err := yaml.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("error parsing yaml for bidder %s: %v", bidder, err)
		}

		adapterConfig, ok := adapterConfigs[strings.ToLower(bidder)]
		info.Enabled = ok && !adapterConfig.Disabled
		if ok && adapterConfig.Syncer != nil {
			info.Syncer = adapterConfig.Syncer.Override(info.Syncer)
		}
		if info.Syncer != nil && info.Syncer.Key == "" {
			info.Syncer.Key = bidder
		}

		infos[bidder] = info
	}

	return infos, nil
}

type infoReader interface {
	Read(bidder string) ([]byte, error)
}

type infoReaderFromDisk struct {
	path string
}

func (r infoReaderFromDisk) Read(bidder string) ([]byte, error) {
	path := fmt.Sprintf("%v/%v.yaml", r.path, bidder)
	return os.ReadFile(path)
}

// HasAppSupport reports whether the bidder declares app capabilities.
func (infos BidderInfos) HasAppSupport(bidder openrtb_ext.BidderName) bool {
	info, ok := infos[string(bidder)]
	return ok && info.Capabilities != nil && info.Capabilities.App != nil
}

// HasSiteSupport reports whether the bidder declares site capabilities.
func (infos BidderInfos) HasSiteSupport(bidder openrtb_ext.BidderName) bool {
	info, ok := infos[string(bidder)]
	return ok && info.Capabilities != nil && info.Capabilities.Site != nil
}
