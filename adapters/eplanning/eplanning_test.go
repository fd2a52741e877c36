package eplanning

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prebid/prebid-server-eplanning/adapters"
	"github.com/prebid/prebid-server-eplanning/adapters/adapterstest"
	"github.com/prebid/prebid-server-eplanning/config"
	"github.com/prebid/prebid-server-eplanning/errortypes"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
	"github.com/prebid/prebid-server-eplanning/util/ptrutil"
)

const testEndpoint = "http://rtb.e-planning.net/pbs/1"

func TestJsonSamples(t *testing.T) {
	bidder, buildErr := Builder(openrtb_ext.BidderEPlanning, config.Adapter{
		Endpoint: testEndpoint}, config.Server{ExternalUrl: "http://hosturl.com", GvlID: 1, DataCenter: "2"})

	if buildErr != nil {
		t.Fatalf("Builder returned unexpected error %v", buildErr)
	}

	adapterstest.RunJSONBidderTest(t, "eplanningtest", bidder)
}

func TestBuilderInvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "not a url", "/relative/path", "http://"} {
		_, err := Builder(openrtb_ext.BidderEPlanning, config.Adapter{Endpoint: endpoint}, config.Server{})
		assert.Error(t, err, endpoint)
	}
}

func TestBuilderTrimsTrailingSlash(t *testing.T) {
	bidder, err := Builder(openrtb_ext.BidderEPlanning, config.Adapter{Endpoint: testEndpoint + "/"}, config.Server{})
	require.NoError(t, err)
	assert.Equal(t, testEndpoint, bidder.(*adapter).URI)
}

func TestCleanName(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "removes-separators", input: "Ad_Unit-1/Test(foo):bar", expected: "AdUnit1Test_foo__bar"},
		{name: "size-token", input: "300x250", expected: "300x250"},
		{name: "dots-and-slashes", input: "/home/top.banner", expected: "hometopbanner"},
		{name: "joined-parens-are-one-match", input: "a)(b", expected: "a_b"},
		{name: "wrapping-parens-trimmed", input: "(slot)", expected: "slot"},
		{name: "colons-trimmed", input: ":slot:", expected: "slot"},
		{name: "underscores-inside-separators", input: "_(_a_)_", expected: "a"},
		{name: "empty", input: "", expected: ""},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, cleanName(test.input))
		})
	}
}

// Cleaning is stable for names whose output has no inner underscore. Parentheses and colons
// become underscores, which a second pass strips again.
func TestCleanNameRepeated(t *testing.T) {
	inputs := []string{"", "300x250", "Ad_Unit-1/Test", "__top__", "a.b.c", "/-_./", "plain", "x_y-z/w", "(top)"}
	for _, input := range inputs {
		once := cleanName(input)
		assert.Equal(t, once, cleanName(once), input)
	}

	once := cleanName("a)(b")
	assert.Equal(t, "a_b", once)
	assert.Equal(t, "ab", cleanName(once))
}

func TestResolveSizeString(t *testing.T) {
	testCases := []struct {
		name         string
		banner       *openrtb2.Banner
		expectedSize string
		expectErr    bool
	}{
		{
			name:         "banner-size-is-fixed-size",
			banner:       &openrtb2.Banner{W: ptrutil.ToPtr[int64](300), H: ptrutil.ToPtr[int64](250), Format: []openrtb2.Format{{W: 728, H: 90}}},
			expectedSize: "300x250",
		},
		{
			name:         "fixed-size-in-formats",
			banner:       &openrtb2.Banner{W: ptrutil.ToPtr[int64](728), H: ptrutil.ToPtr[int64](90), Format: []openrtb2.Format{{W: 320, H: 50}, {W: 300, H: 250}}},
			expectedSize: "300x250",
		},
		{
			name:         "no-banner-size-fixed-size-in-formats",
			banner:       &openrtb2.Banner{Format: []openrtb2.Format{{W: 300, H: 250}}},
			expectedSize: "300x250",
		},
		{
			name:      "no-fixed-size",
			banner:    &openrtb2.Banner{W: ptrutil.ToPtr[int64](728), H: ptrutil.ToPtr[int64](90)},
			expectErr: true,
		},
		{
			name:      "formats-are-not-a-fallback",
			banner:    &openrtb2.Banner{Format: []openrtb2.Format{{W: 728, H: 90}}},
			expectErr: true,
		},
		{
			name:      "only-width-matches",
			banner:    &openrtb2.Banner{W: ptrutil.ToPtr[int64](300)},
			expectErr: true,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			size, err := resolveSizeString(&openrtb2.Imp{ID: "imp1", Banner: test.banner})
			if test.expectErr {
				require.Error(t, err)
				assert.IsType(t, &errortypes.BadInput{}, err)
				assert.Equal(t, "Ignoring imp id=imp1, Eplanning doesn't support requested size(s)", err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expectedSize, size)
		})
	}
}

func TestMakeRequestsFirstValidClientIDWins(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID: "req",
		Imp: []openrtb2.Imp{
			{ID: "no-banner", Ext: bidderExt(`{"ci":"skipped"}`)},
			{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1","adunit_code":"first"}`)},
			{ID: "imp2", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c2","adunit_code":"second"}`)},
		},
		Site: &openrtb2.Site{Domain: "example.com"},
	}

	reqs, errs := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Len(t, errs, 1)
	assert.Equal(t, "EPlanning only supports banner Imps. Ignoring Imp ID=no-banner", errs[0].Error())
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].Uri, testEndpoint+"/c1/1/example.com/ROS?"), reqs[0].Uri)
	assert.Equal(t, []string{"imp1", "imp2"}, reqs[0].ImpIDs)
	assert.Equal(t, "first:300x250+second:300x250", queryOf(t, reqs[0]).Get("e"))
}

func TestMakeRequestsClientIDFromImpWithRejectedSize(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID: "req",
		Imp: []openrtb2.Imp{
			{ID: "imp1", Banner: &openrtb2.Banner{W: ptrutil.ToPtr[int64](728), H: ptrutil.ToPtr[int64](90)}, Ext: bidderExt(`{"ci":"first"}`)},
			{ID: "imp2", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"second"}`)},
		},
		Site: &openrtb2.Site{Domain: "example.com"},
	}

	reqs, errs := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Len(t, errs, 1)
	assert.Equal(t, "Ignoring imp id=imp1, Eplanning doesn't support requested size(s)", errs[0].Error())
	require.Len(t, reqs, 1)
	assert.Equal(t, testEndpoint+"/first/1/example.com/ROS?r=pbs&ncb=1&ur=FILE&e=300x250%3A300x250", reqs[0].Uri)
	assert.Equal(t, []string{"imp2"}, reqs[0].ImpIDs)
}

func TestMakeRequestsNoValidImps(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID: "req",
		Imp: []openrtb2.Imp{
			{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"  "}`)},
			{ID: "imp2", Banner: fixedBanner(), Ext: json.RawMessage(`{"prebid":{}}`)},
			{ID: "imp3", Banner: &openrtb2.Banner{W: ptrutil.ToPtr[int64](728), H: ptrutil.ToPtr[int64](90)}, Ext: bidderExt(`{"ci":"c1"}`)},
		},
	}

	reqs, errs := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	assert.Nil(t, reqs)
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.IsType(t, &errortypes.BadInput{}, err)
	}
	assert.Equal(t, "Ignoring imp id=imp1, no ClientID present", errs[0].Error())
	assert.Equal(t, "Ignoring imp id=imp2, error while decoding extImpBidder, err: bidder property is not present", errs[1].Error())
	assert.Equal(t, "Ignoring imp id=imp3, Eplanning doesn't support requested size(s)", errs[2].Error())
}

func TestMakeRequestsSiteQuery(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:     "req",
		Imp:    []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
		Site:   &openrtb2.Site{Page: "https://www.example.com/news/today"},
		User:   &openrtb2.User{BuyerUID: "buyer-1"},
		Device: &openrtb2.Device{IP: "123.123.123.123", IFA: "ignored-without-app"},
	}

	reqs, errs := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Empty(t, errs)
	require.Len(t, reqs, 1)
	assert.Equal(t, testEndpoint+"/c1/1/www.example.com/ROS?r=pbs&ncb=1&ur=https%3A%2F%2Fwww.example.com%2Fnews%2Ftoday&e=300x250%3A300x250&uid=buyer-1&ip=123.123.123.123", reqs[0].Uri)
	query := queryOf(t, reqs[0])
	for _, appParam := range []string{"appn", "appid", "ifa", "app"} {
		assert.NotContains(t, query, appParam)
	}
}

func TestMakeRequestsAppQuery(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:     "req",
		Imp:    []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1","adunit_code":"app.slot"}`)}},
		Site:   &openrtb2.Site{Page: "https://www.example.com/", Domain: "example.com"},
		App:    &openrtb2.App{ID: "app-id", Name: "My App", Bundle: "com.example.app"},
		Device: &openrtb2.Device{IFA: "ifa-1", IP: " "},
	}

	reqs, errs := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Empty(t, errs)
	require.Len(t, reqs, 1)
	assert.Equal(t, testEndpoint+"/c1/1/com.example.app/ROS?r=pbs&ncb=1&e=appslot%3A300x250&appn=My+App&appid=app-id&ifa=ifa-1&app=1", reqs[0].Uri)
	assert.NotContains(t, queryOf(t, reqs[0]), "ur")
}

func TestMakeRequestsRequestTarget(t *testing.T) {
	testCases := []struct {
		name           string
		site           *openrtb2.Site
		app            *openrtb2.App
		expectedTarget string
	}{
		{name: "no-site-no-app", expectedTarget: "FILE"},
		{name: "site-domain", site: &openrtb2.Site{Domain: "example.com", Page: "http://other.com"}, expectedTarget: "example.com"},
		{name: "site-page-host", site: &openrtb2.Site{Page: "http://page.example.com/path?q=1"}, expectedTarget: "page.example.com"},
		{name: "site-page-host-with-port", site: &openrtb2.Site{Page: "http://example.com:8080/x"}, expectedTarget: "example.com"},
		{name: "site-page-without-host", site: &openrtb2.Site{Page: "not-a-url"}, expectedTarget: "FILE"},
		{name: "app-bundle", app: &openrtb2.App{Bundle: "com.bundle"}, site: &openrtb2.Site{Domain: "example.com"}, expectedTarget: "com.bundle"},
		{name: "app-blank-bundle-uses-site", app: &openrtb2.App{Bundle: " "}, site: &openrtb2.Site{Domain: "example.com"}, expectedTarget: "example.com"},
		{name: "app-blank-bundle-no-site", app: &openrtb2.App{}, expectedTarget: "FILE"},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			request := &openrtb2.BidRequest{
				ID:   "req",
				Imp:  []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
				Site: test.site,
				App:  test.app,
			}

			reqs, errs := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

			require.Empty(t, errs)
			require.Len(t, reqs, 1)
			assert.True(t, strings.HasPrefix(reqs[0].Uri, testEndpoint+"/c1/1/"+test.expectedTarget+"/ROS?"), reqs[0].Uri)
		})
	}
}

func TestMakeRequestsPageURLDefault(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:   "req",
		Imp:  []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
		Site: &openrtb2.Site{Domain: "example.com", Page: "   "},
	}

	reqs, _ := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Len(t, reqs, 1)
	assert.Equal(t, "FILE", queryOf(t, reqs[0]).Get("ur"))
}

func TestMakeRequestsHeaders(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
		Device: &openrtb2.Device{
			UA:       "Mozilla/5.0",
			Language: "es",
			IP:       "10.0.0.1",
			DNT:      ptrutil.ToPtr[int8](1),
		},
	}

	reqs, _ := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Nil(t, reqs[0].Body)
	assert.Equal(t, http.Header{
		"Content-Type":    []string{"application/json;charset=utf-8"},
		"Accept":          []string{"application/json"},
		"User-Agent":      []string{"Mozilla/5.0"},
		"Accept-Language": []string{"es"},
		"X-Forwarded-For": []string{"10.0.0.1"},
		"Dnt":             []string{"1"},
	}, reqs[0].Headers)
}

func TestMakeRequestsHeadersSkipBlankDeviceFields(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:     "req",
		Imp:    []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
		Device: &openrtb2.Device{UA: " ", Language: ""},
	}

	reqs, _ := newTestAdapter(t).MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Len(t, reqs, 1)
	assert.Equal(t, http.Header{
		"Content-Type": []string{"application/json;charset=utf-8"},
		"Accept":       []string{"application/json"},
	}, reqs[0].Headers)
}

func TestMakeBidsEndToEnd(t *testing.T) {
	bidder := newTestAdapter(t)
	request := &openrtb2.BidRequest{
		ID:   "req",
		Imp:  []openrtb2.Imp{{ID: "i1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
		Site: &openrtb2.Site{Domain: "example.com"},
	}

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})
	require.Empty(t, errs)
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Uri, "e=300x250%3A300x250")

	bidResponse, errs := bidder.MakeBids(request, reqs[0], &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"sp":[{"k":"300x250","a":[{"i":"i1","pr":"1.50","w":300,"h":250}]}]}`),
	})

	require.Empty(t, errs)
	require.NotNil(t, bidResponse)
	assert.Equal(t, "USD", bidResponse.Currency)
	require.Len(t, bidResponse.Bids, 1)
	assert.Equal(t, openrtb_ext.BidTypeBanner, bidResponse.Bids[0].BidType)
	assert.Equal(t, &openrtb2.Bid{ID: "i1", ImpID: "i1", Price: 1.5, W: 300, H: 250}, bidResponse.Bids[0].Bid)
}

func TestMakeBidsUnmatchedSpaceKeepsBid(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1","adunit_code":"top"}`)}},
	}

	bidResponse, errs := newTestAdapter(t).MakeBids(request, nil, &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"sp":[{"k":"unknown","a":[{"i":"ad1","pr":"0.5"}]},{"k":"top","a":[{"i":"ad2","pr":"0.7"}]}]}`),
	})

	require.Empty(t, errs)
	require.Len(t, bidResponse.Bids, 2)
	assert.Equal(t, "", bidResponse.Bids[0].Bid.ImpID)
	assert.Equal(t, "ad1", bidResponse.Bids[0].Bid.ID)
	assert.Equal(t, "imp1", bidResponse.Bids[1].Bid.ImpID)
}

func TestMakeBidsMalformedPriceKeepsSiblings(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
	}

	bidResponse, errs := newTestAdapter(t).MakeBids(request, nil, &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"sp":[{"k":"300x250","a":[{"i":"ad1","pr":"abc"},{"i":"ad2","pr":"NaN"},{"i":"ad3","pr":"2"}]}]}`),
	})

	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.IsType(t, &errortypes.BadServerResponse{}, err)
	}
	assert.Equal(t, `Ignoring ad id=ad1 in space 300x250, invalid price "abc"`, errs[0].Error())
	require.Len(t, bidResponse.Bids, 1)
	assert.Equal(t, "ad3", bidResponse.Bids[0].Bid.ID)
	assert.Equal(t, 2.0, bidResponse.Bids[0].Bid.Price)
}

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name          string
		price         string
		expected      float64
		expectedError bool
	}{
		{name: "integer", price: "2", expected: 2},
		{name: "decimal", price: "1.25", expected: 1.25},
		{name: "leading-dot", price: ".5", expected: 0.5},
		{name: "trailing-dot", price: "3.", expected: 3},
		{name: "signed", price: "-0.1", expected: -0.1},
		{name: "exponent", price: "1.5E2", expected: 150},
		{name: "hex-float", price: "0x1p4", expectedError: true},
		{name: "surrounding-whitespace", price: " 1.5 ", expectedError: true},
		{name: "nan", price: "NaN", expectedError: true},
		{name: "infinity", price: "Inf", expectedError: true},
		{name: "overflow", price: "1e999", expectedError: true},
		{name: "underscores", price: "1_000", expectedError: true},
		{name: "empty", price: "", expectedError: true},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			price, err := parsePrice(test.price)
			if test.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, price)
		})
	}
}

func TestMakeBidsRejectsNonDecimalPrices(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}},
	}

	bidResponse, errs := newTestAdapter(t).MakeBids(request, nil, &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"sp":[{"k":"300x250","a":[{"i":"ad1","pr":"0x1p4"},{"i":"ad2","pr":" 1.5"},{"i":"ad3","pr":"1.5"}]}]}`),
	})

	require.Len(t, errs, 2)
	assert.Equal(t, `Ignoring ad id=ad1 in space 300x250, invalid price "0x1p4"`, errs[0].Error())
	assert.Equal(t, `Ignoring ad id=ad2 in space 300x250, invalid price " 1.5"`, errs[1].Error())
	require.Len(t, bidResponse.Bids, 1)
	assert.Equal(t, "ad3", bidResponse.Bids[0].Bid.ID)
}

func TestMakeBidsLastSlotNameWins(t *testing.T) {
	request := &openrtb2.BidRequest{
		ID: "req",
		Imp: []openrtb2.Imp{
			{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)},
			{ID: "imp2", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)},
			{ID: "invalid", Banner: fixedBanner(), Ext: bidderExt(`{"ci":""}`)},
		},
	}

	bidResponse, errs := newTestAdapter(t).MakeBids(request, nil, &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"sp":[{"k":"300x250","a":[{"i":"ad1","pr":"1"}]}]}`),
	})

	require.Empty(t, errs, "impressions rejected by MakeRequests are not reported twice")
	require.Len(t, bidResponse.Bids, 1)
	assert.Equal(t, "imp2", bidResponse.Bids[0].Bid.ImpID)
}

func TestMakeBidsEmptyPayloads(t *testing.T) {
	request := &openrtb2.BidRequest{ID: "req", Imp: []openrtb2.Imp{{ID: "imp1", Banner: fixedBanner(), Ext: bidderExt(`{"ci":"c1"}`)}}}

	for _, body := range []string{`{}`, `{"sp":null}`, `{"sp":[]}`, `{"sp":[{"k":"300x250"}]}`, `{"sp":[{"k":"300x250","a":[]}]}`} {
		bidResponse, errs := newTestAdapter(t).MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusOK, Body: []byte(body)})
		assert.Empty(t, errs, body)
		require.NotNil(t, bidResponse, body)
		assert.Empty(t, bidResponse.Bids, body)
	}
}

func TestMakeBidsStatusCodes(t *testing.T) {
	request := &openrtb2.BidRequest{ID: "req"}
	bidder := newTestAdapter(t)

	bidResponse, errs := bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusNoContent})
	assert.Nil(t, bidResponse)
	assert.Nil(t, errs)

	_, errs = bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusBadRequest})
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadInput{}, errs[0])

	_, errs = bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusInternalServerError})
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])

	bidResponse, errs = bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusOK, Body: []byte(`{"sp":"invalid"}`)})
	assert.Nil(t, bidResponse)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
}

func newTestAdapter(t *testing.T) adapters.Bidder {
	bidder, err := Builder(openrtb_ext.BidderEPlanning, config.Adapter{Endpoint: testEndpoint}, config.Server{})
	require.NoError(t, err)
	return bidder
}

func queryOf(t *testing.T, req *adapters.RequestData) url.Values {
	parsed, err := url.Parse(req.Uri)
	require.NoError(t, err)
	return parsed.Query()
}

func bidderExt(bidder string) json.RawMessage {
	return json.RawMessage(`{"bidder":` + bidder + `}`)
}

func fixedBanner() *openrtb2.Banner {
	return &openrtb2.Banner{W: ptrutil.ToPtr[int64](300), H: ptrutil.ToPtr[int64](250)}
}
