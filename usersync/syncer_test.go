package usersync

import (
	"testing"
	"text/template"

	"github.com/prebid/prebid-server-eplanning/config"
	"github.com/prebid/prebid-server-eplanning/macros"
	"github.com/stretchr/testify/assert"
)

const hostRedirectURL = "{{.ExternalURL}}/setuid?bidder={{.SyncerKey}}&gdpr={{.GDPR}}&gdpr_consent={{.GDPRConsent}}&us_privacy={{.USPrivacy}}&f={{.SyncType}}&uid={{.UserMacro}}"

func TestNewSyncer(t *testing.T) {
	var (
		hostConfig    = config.UserSync{ExternalURL: "http://localhost:8000", RedirectURL: hostRedirectURL}
		iframeConfig  = &config.SyncerEndpoint{URL: "https://bidder.com/iframe?r={{.RedirectURL}}"}
		redirectCfg   = &config.SyncerEndpoint{URL: "https://bidder.com/redirect?r={{.RedirectURL}}"}
		invalidConfig = &config.SyncerEndpoint{URL: "notAURL:{{.RedirectURL}}"}
		trueValue     = true
	)

	testCases := []struct {
		description          string
		givenConfig          config.Syncer
		expectedError        string
		expectedDefault      SyncType
		expectedIFrame       bool
		expectedRedirect     bool
		expectedSupportsCORS bool
	}{
		{
			description:   "No Endpoints",
			givenConfig:   config.Syncer{Key: "a"},
			expectedError: "at least one iframe or redirect is required",
		},
		{
			description:   "Missing Key",
			givenConfig:   config.Syncer{Redirect: redirectCfg},
			expectedError: "key is required",
		},
		{
			description:     "IFrame Only",
			givenConfig:     config.Syncer{Key: "a", IFrame: iframeConfig},
			expectedDefault: SyncTypeIFrame,
			expectedIFrame:  true,
		},
		{
			description:          "Redirect Only With CORS",
			givenConfig:          config.Syncer{Key: "a", Redirect: redirectCfg, SupportCORS: &trueValue},
			expectedDefault:      SyncTypeRedirect,
			expectedRedirect:     true,
			expectedSupportsCORS: true,
		},
		{
			description:   "Both Without Default",
			givenConfig:   config.Syncer{Key: "a", IFrame: iframeConfig, Redirect: redirectCfg},
			expectedError: "default is required if both iframe and redirect endpoints are provided",
		},
		{
			description:      "Both With Default",
			givenConfig:      config.Syncer{Key: "a", Default: "redirect", IFrame: iframeConfig, Redirect: redirectCfg},
			expectedDefault:  SyncTypeRedirect,
			expectedIFrame:   true,
			expectedRedirect: true,
		},
		{
			description:   "Default Not Configured",
			givenConfig:   config.Syncer{Key: "a", Default: "iframe", Redirect: redirectCfg},
			expectedError: "default is set to iframe but no iframe endpoint is configured",
		},
		{
			description:   "Default Invalid",
			givenConfig:   config.Syncer{Key: "a", Default: "pixel", Redirect: redirectCfg},
			expectedError: `invalid sync type "pixel"`,
		},
		{
			description:   "Empty Endpoint URL",
			givenConfig:   config.Syncer{Key: "a", Redirect: &config.SyncerEndpoint{}},
			expectedError: "redirect endpoint url is required",
		},
		{
			description:   "Invalid URL",
			givenConfig:   config.Syncer{Key: "a", IFrame: invalidConfig},
			expectedError: `iframe composed url: "notAURL:http%3A%2F%2Flocalhost%3A8000%2Fsetuid%3Fbidder%3Da%26gdpr%3DanyGDPR%26gdpr_consent%3DanyGDPRConsent%26us_privacy%3DanyCCPAConsent%26f%3Db%26uid%3D" is invalid`,
		},
	}

	for _, test := range testCases {
		result, err := NewSyncer(hostConfig, test.givenConfig)

		if test.expectedError != "" {
			assert.EqualError(t, err, test.expectedError, test.description+":err")
			assert.Nil(t, result, test.description+":result")
			continue
		}

		if assert.NoError(t, err, test.description+":err") {
			syncer := result.(standardSyncer)
			assert.Equal(t, test.givenConfig.Key, syncer.Key(), test.description+":key")
			assert.Equal(t, test.expectedDefault, syncer.DefaultSyncType(), test.description+":default")
			assert.Equal(t, test.expectedIFrame, syncer.iframe != nil, test.description+":iframe")
			assert.Equal(t, test.expectedRedirect, syncer.redirect != nil, test.description+":redirect")
			assert.Equal(t, test.expectedSupportsCORS, syncer.supportCORS, test.description+":cors")
		}
	}
}

func TestComposeTemplate(t *testing.T) {
	var (
		key           = "anyKey"
		syncTypeValue = "x"
		macroValues   = macros.UserSyncTemplateParams{GDPR: "A", GDPRConsent: "B", USPrivacy: "C"}
	)

	testCases := []struct {
		description         string
		givenHostConfig     config.UserSync
		givenSyncerEndpoint config.SyncerEndpoint
		expectedError       bool
		expectedRendered    string
	}{
		{
			description:     "No Composed Macros",
			givenHostConfig: config.UserSync{ExternalURL: "externalURL", RedirectURL: "redirectURL"},
			givenSyncerEndpoint: config.SyncerEndpoint{
				URL: "hasNoMacros,gdpr={{.GDPR}}",
			},
			expectedRendered: "hasNoMacros,gdpr=A",
		},
		{
			description:     "All Composed Macros",
			givenHostConfig: config.UserSync{ExternalURL: "externalURL", RedirectURL: "redirectURL"},
			givenSyncerEndpoint: config.SyncerEndpoint{
				URL:         "https://bidder.com/sync?redirect={{.RedirectURL}}",
				RedirectURL: "{{.ExternalURL}}/setuid?bidder={{.SyncerKey}}&f={{.SyncType}}&gdpr={{.GDPR}}&uid={{.UserMacro}}",
				ExternalURL: "http://host.com",
				UserMacro:   "$UID$",
			},
			expectedRendered: "https://bidder.com/sync?redirect=http%3A%2F%2Fhost.com%2Fsetuid%3Fbidder%3DanyKey%26f%3Dx%26gdpr%3DA%26uid%3D%24UID%24",
		},
		{
			description:     "Host Config With Trailing Slash",
			givenHostConfig: config.UserSync{ExternalURL: "http://host.com/", RedirectURL: "{{.ExternalURL}}/setuid?bidder={{.SyncerKey}}"},
			givenSyncerEndpoint: config.SyncerEndpoint{
				URL: "https://bidder.com/sync?redirect={{.RedirectURL}}",
			},
			expectedRendered: "https://bidder.com/sync?redirect=http%3A%2F%2Fhost.com%2Fsetuid%3Fbidder%3DanyKey",
		},
		{
			description:     "Malformed Template",
			givenHostConfig: config.UserSync{ExternalURL: "http://host.com", RedirectURL: "redirectURL"},
			givenSyncerEndpoint: config.SyncerEndpoint{
				URL: "https://bidder.com/sync?gdpr={{.GDPR",
			},
			expectedError: true,
		},
	}

	for _, test := range testCases {
		result, err := composeTemplate(key, syncTypeValue, test.givenHostConfig, test.givenSyncerEndpoint)

		if test.expectedError {
			assert.Error(t, err, test.description+":err")
			continue
		}

		assert.NoError(t, err, test.description+":err")
		resultRendered, err := macros.ResolveMacros(result, macroValues)
		if assert.NoError(t, err, test.description+":template_render") {
			assert.Equal(t, test.expectedRendered, resultRendered, test.description+":template")
		}
	}
}

func TestEscapeTemplate(t *testing.T) {
	testCases := []struct {
		description string
		given       string
		expected    string
	}{
		{
			description: "Just Macro",
			given:       "{{.Macro}}",
			expected:    "{{.Macro}}",
		},
		{
			description: "Just Text",
			given:       "/a",
			expected:    "%2Fa",
		},
		{
			description: "Text And Macros",
			given:       "/a?b={{.B}}&c={{.C}}",
			expected:    "%2Fa%3Fb%3D{{.B}}%26c%3D{{.C}}",
		},
		{
			description: "Empty",
			given:       "",
			expected:    "",
		},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expected, escapeTemplate(test.given), test.description)
	}
}

func TestValidateTemplate(t *testing.T) {
	testCases := []struct {
		description   string
		given         *template.Template
		expectedError string
	}{
		{
			description:   "Contains Unrecognized Macro",
			given:         template.Must(template.New("test").Parse("invalid:{{.DoesNotExist}}")),
			expectedError: "template: test:1:10: executing \"test\" at <.DoesNotExist>: can't evaluate field DoesNotExist in type macros.UserSyncTemplateParams",
		},
		{
			description:   "Not A Url",
			given:         template.Must(template.New("test").Parse("not-a-url,gdpr:{{.GDPR}}")),
			expectedError: `composed url: "not-a-url,gdpr:anyGDPR" is invalid`,
		},
		{
			description: "Valid",
			given:       template.Must(template.New("test").Parse("http://server.com/sync?gdpr={{.GDPR}}")),
		},
	}

	for _, test := range testCases {
		err := validateTemplate(test.given)

		if test.expectedError == "" {
			assert.NoError(t, err, test.description)
		} else {
			assert.EqualError(t, err, test.expectedError, test.description)
		}
	}
}

func TestSyncerGetSync(t *testing.T) {
	var (
		iframeTemplate   = template.Must(template.New("test").Parse("iframe,gdpr:{{.GDPR}},gdprconsent:{{.GDPRConsent}},ccpa:{{.USPrivacy}}"))
		redirectTemplate = template.Must(template.New("test").Parse("redirect,gdpr:{{.GDPR}},gdprconsent:{{.GDPRConsent}},ccpa:{{.USPrivacy}}"))
		privacy          = Privacy{GDPR: "A", GDPRConsent: "B", USPrivacy: "C"}
	)

	testCases := []struct {
		description    string
		givenSyncer    standardSyncer
		givenSyncTypes []SyncType
		expectedError  string
		expectedSync   Sync
	}{
		{
			description:    "No Sync Types",
			givenSyncer:    standardSyncer{iframe: iframeTemplate, redirect: redirectTemplate},
			givenSyncTypes: []SyncType{},
			expectedError:  "no sync types provided",
		},
		{
			description:    "Unsupported Sync Type",
			givenSyncer:    standardSyncer{redirect: redirectTemplate},
			givenSyncTypes: []SyncType{SyncTypeIFrame},
			expectedError:  "no sync types supported",
		},
		{
			description:    "IFrame",
			givenSyncer:    standardSyncer{iframe: iframeTemplate, redirect: redirectTemplate},
			givenSyncTypes: []SyncType{SyncTypeIFrame},
			expectedSync:   Sync{URL: "iframe,gdpr:A,gdprconsent:B,ccpa:C", Type: SyncTypeIFrame},
		},
		{
			description:    "Prefers Default",
			givenSyncer:    standardSyncer{defaultSyncType: SyncTypeRedirect, iframe: iframeTemplate, redirect: redirectTemplate, supportCORS: true},
			givenSyncTypes: []SyncType{SyncTypeIFrame, SyncTypeRedirect},
			expectedSync:   Sync{URL: "redirect,gdpr:A,gdprconsent:B,ccpa:C", Type: SyncTypeRedirect, SupportCORS: true},
		},
		{
			description:    "First Supported When Default Not Requested",
			givenSyncer:    standardSyncer{defaultSyncType: SyncTypeRedirect, iframe: iframeTemplate, redirect: redirectTemplate},
			givenSyncTypes: []SyncType{SyncTypeIFrame},
			expectedSync:   Sync{URL: "iframe,gdpr:A,gdprconsent:B,ccpa:C", Type: SyncTypeIFrame},
		},
	}

	for _, test := range testCases {
		result, err := test.givenSyncer.GetSync(test.givenSyncTypes, privacy)

		if test.expectedError == "" {
			assert.NoError(t, err, test.description+":err")
			assert.Equal(t, test.expectedSync, result, test.description+":sync")
		} else {
			assert.EqualError(t, err, test.expectedError, test.description+":err")
		}
	}
}

func TestSyncerSupportsType(t *testing.T) {
	endpointTemplate := template.Must(template.New("test").Parse("http://server.com"))

	iframeOnly := standardSyncer{iframe: endpointTemplate}
	assert.True(t, iframeOnly.SupportsType([]SyncType{SyncTypeIFrame}))
	assert.True(t, iframeOnly.SupportsType([]SyncType{SyncTypeRedirect, SyncTypeIFrame}))
	assert.False(t, iframeOnly.SupportsType([]SyncType{SyncTypeRedirect}))
	assert.False(t, iframeOnly.SupportsType(nil))
}

func TestParseSyncType(t *testing.T) {
	testCases := []struct {
		given       string
		expected    SyncType
		expectError bool
	}{
		{given: "iframe", expected: SyncTypeIFrame},
		{given: "IFrame", expected: SyncTypeIFrame},
		{given: "redirect", expected: SyncTypeRedirect},
		{given: "image", expected: SyncTypeRedirect},
		{given: "", expected: SyncTypeUnknown, expectError: true},
		{given: "script", expected: SyncTypeUnknown, expectError: true},
	}

	for _, test := range testCases {
		result, err := ParseSyncType(test.given)
		assert.Equal(t, test.expected, result, test.given)
		if test.expectError {
			assert.Error(t, err, test.given)
		} else {
			assert.NoError(t, err, test.given)
		}
	}
}

func TestEPlanningSyncerFromBidderInfo(t *testing.T) {
	hostConfig := &config.Configuration{
		UserSync: config.UserSync{ExternalURL: "http://localhost:8000", RedirectURL: hostRedirectURL},
		Adapters: map[string]config.Adapter{"eplanning": {Endpoint: "https://ads.us.e-planning.net/pbs/1"}},
	}
	infos, err := config.LoadBidderInfoFromDisk("../static/bidder-info", hostConfig.Adapters, []string{"eplanning"})
	if !assert.NoError(t, err) {
		return
	}

	syncers, errs := BuildSyncers(hostConfig, infos)
	assert.Empty(t, errs)
	syncer, ok := syncers["eplanning"]
	if !assert.True(t, ok) {
		return
	}
	assert.Equal(t, "eplanning", syncer.Key())
	assert.Equal(t, SyncTypeRedirect, syncer.DefaultSyncType())

	sync, err := syncer.GetSync([]SyncType{SyncTypeRedirect}, Privacy{GDPR: "1", GDPRConsent: "BOONs", USPrivacy: "1YNN"})
	assert.NoError(t, err)
	assert.Equal(t, Sync{
		URL:  "https://ads.us.e-planning.net/getuid/1/5a1ad71ffeb6c8d5?http%3A%2F%2Flocalhost%3A8000%2Fsetuid%3Fbidder%3Deplanning%26gdpr%3D1%26gdpr_consent%3DBOONs%26us_privacy%3D1YNN%26f%3Di%26uid%3D%24UID",
		Type: SyncTypeRedirect,
	}, sync)
}

func TestBuildSyncersSkipsDisabledAndReportsErrors(t *testing.T) {
	hostConfig := &config.Configuration{UserSync: config.UserSync{ExternalURL: "http://localhost:8000", RedirectURL: hostRedirectURL}}
	infos := config.BidderInfos{
		"disabled": {Enabled: false, Syncer: &config.Syncer{Key: "disabled"}},
		"nosyncer": {Enabled: true},
		"broken":   {Enabled: true, Syncer: &config.Syncer{Key: "broken"}},
	}

	syncers, errs := BuildSyncers(hostConfig, infos)
	assert.Nil(t, syncers)
	assert.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "cannot create syncer for bidder broken with key broken: at least one iframe or redirect is required")
}
