package usersync

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"text/template"

	validator "github.com/asaskevich/govalidator"

	"github.com/prebid/prebid-server-eplanning/config"
	"github.com/prebid/prebid-server-eplanning/macros"
)

// Syncer represents the user sync configuration for a bidder.
type Syncer interface {
	// Key is the name of the syncer as stored in the user's cookie.
	Key() string

	// DefaultSyncType is the sync type preferred when more than one is supported.
	DefaultSyncType() SyncType

	// SupportsType returns true if the syncer supports at least one of the specified sync types.
	SupportsType(syncTypes []SyncType) bool

	// GetSync returns a user sync for the user's device to perform, or an error if the none of the
	// sync types are supported or if macro substitution fails.
	GetSync(syncTypes []SyncType, privacy Privacy) (Sync, error)
}

// Sync represents a user sync for the user's device to perform.
type Sync struct {
	URL         string   `json:"url"`
	Type        SyncType `json:"type"`
	SupportCORS bool     `json:"supportCORS"`
}

// Privacy holds the consent signals substituted into a sync url.
type Privacy struct {
	GDPR        string
	GDPRConsent string
	USPrivacy   string
}

type standardSyncer struct {
	key             string
	defaultSyncType SyncType
	iframe          *template.Template
	redirect        *template.Template
	supportCORS     bool
}

const (
	setuidSyncTypeIFrame   = "b"
	setuidSyncTypeRedirect = "i"
)

// NewSyncer creates a new Syncer instance from the provided configuration, or an error if macro
// substition fails or the url specified is invalid.
func NewSyncer(hostConfig config.UserSync, syncerConfig config.Syncer) (Syncer, error) {
	if syncerConfig.IFrame == nil && syncerConfig.Redirect == nil {
		return nil, errors.New("at least one iframe or redirect is required")
	}

	if syncerConfig.Key == "" {
		return nil, errors.New("key is required")
	}

	defaultSyncType, err := resolveDefaultSyncType(syncerConfig)
	if err != nil {
		return nil, err
	}

	syncer := standardSyncer{
		key:             syncerConfig.Key,
		defaultSyncType: defaultSyncType,
		supportCORS:     syncerConfig.SupportCORS != nil && *syncerConfig.SupportCORS,
	}

	if syncerConfig.IFrame != nil {
		var err error
		syncer.iframe, err = buildTemplate(syncerConfig.Key, setuidSyncTypeIFrame, hostConfig, *syncerConfig.IFrame)
		if err != nil {
			return nil, fmt.Errorf("iframe %v", err)
		}
	}

	if syncerConfig.Redirect != nil {
		var err error
		syncer.redirect, err = buildTemplate(syncerConfig.Key, setuidSyncTypeRedirect, hostConfig, *syncerConfig.Redirect)
		if err != nil {
			return nil, fmt.Errorf("redirect %v", err)
		}
	}

	return syncer, nil
}

func resolveDefaultSyncType(syncerConfig config.Syncer) (SyncType, error) {
	if syncerConfig.Default == "" {
		if syncerConfig.IFrame != nil && syncerConfig.Redirect != nil {
			return SyncTypeUnknown, errors.New("default is required if both iframe and redirect endpoints are provided")
		}
		if syncerConfig.IFrame != nil {
			return SyncTypeIFrame, nil
		}
		return SyncTypeRedirect, nil
	}

	syncType, err := ParseSyncType(syncerConfig.Default)
	if err != nil {
		return SyncTypeUnknown, err
	}

	if syncType == SyncTypeIFrame && syncerConfig.IFrame == nil {
		return SyncTypeUnknown, errors.New("default is set to iframe but no iframe endpoint is configured")
	}
	if syncType == SyncTypeRedirect && syncerConfig.Redirect == nil {
		return SyncTypeUnknown, errors.New("default is set to redirect but no redirect endpoint is configured")
	}

	return syncType, nil
}

func buildTemplate(key, syncTypeValue string, hostConfig config.UserSync, syncerEndpoint config.SyncerEndpoint) (*template.Template, error) {
	if syncerEndpoint.URL == "" {
		return nil, errors.New("endpoint url is required")
	}

	syncTemplate, err := composeTemplate(key, syncTypeValue, hostConfig, syncerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("composed template: %v", err)
	}

	if err := validateTemplate(syncTemplate); err != nil {
		return nil, err
	}

	return syncTemplate, nil
}

var (
	externalHostRegex = regexp.MustCompile(`{{\s*\.ExternalURL\s*}}`)
	syncerKeyRegex    = regexp.MustCompile(`{{\s*\.SyncerKey\s*}}`)
	syncTypeRegex     = regexp.MustCompile(`{{\s*\.SyncType\s*}}`)
	userMacroRegex    = regexp.MustCompile(`{{\s*\.UserMacro\s*}}`)
	redirectRegex     = regexp.MustCompile(`{{\s*\.RedirectURL\s*}}`)
	macroRegex        = regexp.MustCompile(`{{.*?}}`)
)

// composeTemplate resolves the host level macros once at startup, leaving the privacy macros for
// each sync request.
func composeTemplate(key, syncTypeValue string, hostConfig config.UserSync, syncerEndpoint config.SyncerEndpoint) (*template.Template, error) {
	redirectTemplate := syncerEndpoint.RedirectURL
	if redirectTemplate == "" {
		redirectTemplate = hostConfig.RedirectURL
	}

	externalURL := syncerEndpoint.ExternalURL
	if externalURL == "" {
		externalURL = hostConfig.ExternalURL
	}

	redirectURL := externalHostRegex.ReplaceAllLiteralString(redirectTemplate, strings.TrimSuffix(externalURL, "/"))
	redirectURL = syncerKeyRegex.ReplaceAllLiteralString(redirectURL, key)
	redirectURL = syncTypeRegex.ReplaceAllLiteralString(redirectURL, syncTypeValue)
	redirectURL = userMacroRegex.ReplaceAllLiteralString(redirectURL, syncerEndpoint.UserMacro)
	redirectURL = escapeTemplate(redirectURL)

	url := redirectRegex.ReplaceAllLiteralString(syncerEndpoint.URL, redirectURL)

	templateName := strings.ToLower(key) + "_usersync_url"
	return template.New(templateName).Parse(url)
}

// escapeTemplate query escapes everything outside of the remaining {{ }} macros.
func escapeTemplate(x string) string {
	escaped := strings.Builder{}

	i := 0
	for _, m := range macroRegex.FindAllStringIndex(x, -1) {
		escaped.WriteString(url.QueryEscape(x[i:m[0]]))
		escaped.WriteString(x[m[0]:m[1]])
		i = m[1]
	}
	escaped.WriteString(url.QueryEscape(x[i:]))

	return escaped.String()
}

func validateTemplate(template *template.Template) error {
	testValues := macros.UserSyncTemplateParams{
		GDPR:        "anyGDPR",
		GDPRConsent: "anyGDPRConsent",
		USPrivacy:   "anyCCPAConsent",
	}

	url, err := macros.ResolveMacros(template, testValues)
	if err != nil {
		return err
	}

	if !validator.IsURL(url) || !validator.IsRequestURL(url) {
		return fmt.Errorf(`composed url: "%s" is invalid`, url)
	}

	return nil
}

func (s standardSyncer) Key() string {
	return s.key
}

func (s standardSyncer) DefaultSyncType() SyncType {
	return s.defaultSyncType
}

func (s standardSyncer) SupportsType(syncTypes []SyncType) bool {
	supported := s.filterSupportedSyncTypes(syncTypes)
	return len(supported) > 0
}

func (s standardSyncer) filterSupportedSyncTypes(syncTypes []SyncType) []SyncType {
	supported := make([]SyncType, 0, len(syncTypes))
	for _, syncType := range syncTypes {
		switch syncType {
		case SyncTypeIFrame:
			if s.iframe != nil {
				supported = append(supported, SyncTypeIFrame)
			}
		case SyncTypeRedirect:
			if s.redirect != nil {
				supported = append(supported, SyncTypeRedirect)
			}
		}
	}
	return supported
}

func (s standardSyncer) GetSync(syncTypes []SyncType, privacy Privacy) (Sync, error) {
	syncType, err := s.chooseSyncType(syncTypes)
	if err != nil {
		return Sync{}, err
	}

	syncTemplate := s.chooseTemplate(syncType)

	url, err := macros.ResolveMacros(syncTemplate, macros.UserSyncTemplateParams{
		GDPR:        privacy.GDPR,
		GDPRConsent: privacy.GDPRConsent,
		USPrivacy:   privacy.USPrivacy,
	})
	if err != nil {
		return Sync{}, err
	}

	sync := Sync{
		URL:         url,
		Type:        syncType,
		SupportCORS: s.supportCORS,
	}
	return sync, nil
}

func (s standardSyncer) chooseSyncType(syncTypes []SyncType) (SyncType, error) {
	if len(syncTypes) == 0 {
		return SyncTypeUnknown, errors.New("no sync types provided")
	}

	supported := s.filterSupportedSyncTypes(syncTypes)
	if len(supported) == 0 {
		return SyncTypeUnknown, errors.New("no sync types supported")
	}

	// prefer default type
	for _, syncType := range supported {
		if syncType == s.defaultSyncType {
			return syncType, nil
		}
	}

	return supported[0], nil
}

func (s standardSyncer) chooseTemplate(syncType SyncType) *template.Template {
	switch syncType {
	case SyncTypeIFrame:
		return s.iframe
	case SyncTypeRedirect:
		return s.redirect
	default:
		return nil
	}
}
