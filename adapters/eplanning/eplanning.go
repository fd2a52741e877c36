package eplanning

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-server-eplanning/adapters"
	"github.com/prebid/prebid-server-eplanning/config"
	"github.com/prebid/prebid-server-eplanning/errortypes"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
	"github.com/prebid/prebid-server-eplanning/util/jsonutil"
	"github.com/prebid/prebid-server-eplanning/util/ptrutil"
)

const (
	defaultPageURL         = "FILE"
	sec                    = "ROS"
	dfpClientID            = "1"
	requestTargetInventory = "1"

	fixedWidth  = 300
	fixedHeight = 250
)

type cleanNameStep struct {
	expression        *regexp.Regexp
	replacementString string
}

// decimalPrice matches plain decimal notation with an optional exponent.
var decimalPrice = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

var cleanNameSteps = []cleanNameStep{
	{regexp.MustCompile(`_|\.|-|\/`), ""},
	{regexp.MustCompile(`\)\(|\(|\)|:`), "_"},
	{regexp.MustCompile(`^_+|_+$`), ""},
}

type adapter struct {
	URI string
}

type hbResponse struct {
	Spaces []hbResponseSpace `json:"sp"`
}

type hbResponseSpace struct {
	Name string         `json:"k"`
	Ads  []hbResponseAd `json:"a"`
}

type hbResponseAd struct {
	ImpressionID string `json:"i"`
	AdID         string `json:"id,omitempty"`
	Price        string `json:"pr"`
	AdM          string `json:"adm"`
	CrID         string `json:"crid"`
	Width        int64  `json:"w,omitempty"`
	Height       int64  `json:"h,omitempty"`
}

// slot is an impression accepted for the outbound request.
type slot struct {
	impID string
	name  string
	size  string
}

// Builder builds a new instance of the EPlanning adapter for the given bidder with the given config.
func Builder(bidderName openrtb_ext.BidderName, config config.Adapter, server config.Server) (adapters.Bidder, error) {
	endpoint, err := url.Parse(config.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q for bidder %s", config.Endpoint, bidderName)
	}

	bidder := &adapter{
		URI: strings.TrimSuffix(config.Endpoint, "/"),
	}
	return bidder, nil
}

func (adapter *adapter) MakeRequests(request *openrtb2.BidRequest, reqInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	errs := make([]error, 0, len(request.Imp))
	slots := make([]slot, 0, len(request.Imp))
	var clientID string

	for i := range request.Imp {
		imp := &request.Imp[i]
		impExt, err := validateImp(imp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// The first impression with usable params decides the client id, even if its size is rejected.
		if clientID == "" {
			clientID = impExt.ClientID
		}

		s, err := newSlot(imp, impExt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slots = append(slots, s)
	}

	if len(slots) == 0 {
		return nil, errs
	}

	spacesStrings := make([]string, 0, len(slots))
	impIDs := make([]string, 0, len(slots))
	for _, s := range slots {
		spacesStrings = append(spacesStrings, s.name+":"+s.size)
		impIDs = append(impIDs, s.impID)
	}

	return []*adapters.RequestData{{
		Method:  http.MethodGet,
		Uri:     adapter.buildURI(request, clientID, spacesStrings),
		Headers: buildHeaders(request.Device),
		ImpIDs:  impIDs,
	}}, errs
}

// resolveSlot validates an impression and derives the name it is known by in the e-planning protocol.
func resolveSlot(imp *openrtb2.Imp) (slot, error) {
	impExt, err := validateImp(imp)
	if err != nil {
		return slot{}, err
	}
	return newSlot(imp, impExt)
}

func validateImp(imp *openrtb2.Imp) (*openrtb_ext.ExtImpEPlanning, error) {
	if imp.Banner == nil {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("EPlanning only supports banner Imps. Ignoring Imp ID=%s", imp.ID),
		}
	}
	return verifyImpExt(imp)
}

func newSlot(imp *openrtb2.Imp, impExt *openrtb_ext.ExtImpEPlanning) (slot, error) {
	size, err := resolveSizeString(imp)
	if err != nil {
		return slot{}, err
	}

	name := size
	if !isBlank(impExt.AdUnitCode) {
		name = impExt.AdUnitCode
	}

	return slot{
		impID: imp.ID,
		name:  cleanName(name),
		size:  size,
	}, nil
}

func verifyImpExt(imp *openrtb2.Imp) (*openrtb_ext.ExtImpEPlanning, error) {
	var bidderExt adapters.ExtImpBidder
	if err := jsonutil.Unmarshal(imp.Ext, &bidderExt); err != nil {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Ignoring imp id=%s, error while decoding extImpBidder, err: %s", imp.ID, err),
		}
	}

	if len(bidderExt.Bidder) == 0 || bytes.Equal(bidderExt.Bidder, []byte("null")) {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Ignoring imp id=%s, error while decoding extImpBidder, err: bidder property is not present", imp.ID),
		}
	}

	impExt := openrtb_ext.ExtImpEPlanning{}
	if err := jsonutil.Unmarshal(bidderExt.Bidder, &impExt); err != nil {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Ignoring imp id=%s, error while decoding extImpBidder, err: %s", imp.ID, err),
		}
	}

	if isBlank(impExt.ClientID) {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Ignoring imp id=%s, no ClientID present", imp.ID),
		}
	}

	return &impExt, nil
}

// resolveSizeString only accepts 300x250, either as the banner size or anywhere in its formats.
func resolveSizeString(imp *openrtb2.Imp) (string, error) {
	banner := imp.Banner
	if isFixedSize(ptrutil.ValueOrDefault(banner.W), ptrutil.ValueOrDefault(banner.H)) {
		return fixedSizeString(), nil
	}

	for _, format := range banner.Format {
		if isFixedSize(format.W, format.H) {
			return fixedSizeString(), nil
		}
	}

	return "", &errortypes.BadInput{
		Message: fmt.Sprintf("Ignoring imp id=%s, Eplanning doesn't support requested size(s)", imp.ID),
	}
}

func isFixedSize(width, height int64) bool {
	return width == fixedWidth && height == fixedHeight
}

func fixedSizeString() string {
	return fmt.Sprintf("%dx%d", fixedWidth, fixedHeight)
}

func cleanName(name string) string {
	for _, step := range cleanNameSteps {
		name = step.expression.ReplaceAllString(name, step.replacementString)
	}
	return name
}

func buildHeaders(device *openrtb2.Device) http.Header {
	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")

	if device != nil {
		addHeaderIfNotBlank(headers, "User-Agent", device.UA)
		addHeaderIfNotBlank(headers, "Accept-Language", device.Language)
		addHeaderIfNotBlank(headers, "X-Forwarded-For", device.IP)
		if device.DNT != nil {
			headers.Add("DNT", strconv.Itoa(int(*device.DNT)))
		}
	}

	return headers
}

func addHeaderIfNotBlank(headers http.Header, name, value string) {
	if !isBlank(value) {
		headers.Add(name, value)
	}
}

func (adapter *adapter) buildURI(request *openrtb2.BidRequest, clientID string, spacesStrings []string) string {
	pageURL := defaultPageURL
	pageDomain := defaultPageURL
	if site := request.Site; site != nil {
		if !isBlank(site.Page) {
			pageURL = site.Page
		}
		if !isBlank(site.Domain) {
			pageDomain = site.Domain
		} else if !isBlank(site.Page) {
			if parsed, err := url.Parse(site.Page); err == nil && parsed.Hostname() != "" {
				pageDomain = parsed.Hostname()
			}
		}
	}

	requestTarget := pageDomain
	if request.App != nil && !isBlank(request.App.Bundle) {
		requestTarget = request.App.Bundle
	}

	uri := fmt.Sprintf("%s/%s/%s/%s/%s", adapter.URI, url.PathEscape(clientID), dfpClientID, url.PathEscape(requestTarget), sec)

	query := queryBuilder{}
	query.add("r", "pbs")
	query.add("ncb", "1")
	if request.App == nil {
		query.add("ur", pageURL)
	}
	query.add("e", strings.Join(spacesStrings, "+"))

	if request.User != nil {
		query.addIfNotBlank("uid", request.User.BuyerUID)
	}

	if request.Device != nil {
		query.addIfNotBlank("ip", request.Device.IP)
	}

	if app := request.App; app != nil {
		query.addIfNotBlank("appn", app.Name)
		query.addIfNotBlank("appid", app.ID)
		if request.Device != nil {
			query.addIfNotBlank("ifa", request.Device.IFA)
		}
		query.add("app", requestTargetInventory)
	}

	return uri + "?" + query.String()
}

// queryBuilder encodes parameters in the order they were added.
type queryBuilder struct {
	buf strings.Builder
}

func (q *queryBuilder) add(key, value string) {
	if q.buf.Len() > 0 {
		q.buf.WriteByte('&')
	}
	q.buf.WriteString(url.QueryEscape(key))
	q.buf.WriteByte('=')
	q.buf.WriteString(url.QueryEscape(value))
}

func (q *queryBuilder) addIfNotBlank(key, value string) {
	if !isBlank(value) {
		q.add(key, value)
	}
}

func (q *queryBuilder) String() string {
	return q.buf.String()
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

func (adapter *adapter) MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	if adapters.IsResponseStatusCodeNoContent(response) {
		return nil, nil
	}

	if err := adapters.CheckResponseStatusCodeForErrors(response); err != nil {
		return nil, []error{err}
	}

	var parsedResponse hbResponse
	if err := jsonutil.Unmarshal(response.Body, &parsedResponse); err != nil {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("Error unmarshaling HB response: %s", err.Error()),
		}}
	}

	return extractBids(&parsedResponse, internalRequest)
}

func extractBids(parsedResponse *hbResponse, request *openrtb2.BidRequest) (*adapters.BidderResponse, []error) {
	// Impressions which failed validation were reported by MakeRequests.
	spaceNameToImpID := make(map[string]string, len(request.Imp))
	for i := range request.Imp {
		s, err := resolveSlot(&request.Imp[i])
		if err != nil {
			continue
		}
		spaceNameToImpID[s.name] = s.impID
	}

	var errs []error
	bidResponse := adapters.NewBidderResponseWithBidsCapacity(countAds(parsedResponse))
	for _, space := range parsedResponse.Spaces {
		for _, ad := range space.Ads {
			price, err := parsePrice(ad.Price)
			if err != nil {
				errs = append(errs, &errortypes.BadServerResponse{
					Message: fmt.Sprintf("Ignoring ad id=%s in space %s, invalid price %q", ad.ImpressionID, space.Name, ad.Price),
				})
				continue
			}

			bidResponse.Bids = append(bidResponse.Bids, &adapters.TypedBid{
				Bid: &openrtb2.Bid{
					ID:    ad.ImpressionID,
					AdID:  ad.AdID,
					ImpID: spaceNameToImpID[space.Name],
					Price: price,
					AdM:   ad.AdM,
					CrID:  ad.CrID,
					W:     ad.Width,
					H:     ad.Height,
				},
				BidType: openrtb_ext.BidTypeBanner,
			})
		}
	}

	return bidResponse, errs
}

func countAds(parsedResponse *hbResponse) int {
	count := 0
	for _, space := range parsedResponse.Spaces {
		count += len(space.Ads)
	}
	return count
}

func parsePrice(price string) (float64, error) {
	if !decimalPrice.MatchString(price) {
		return 0, fmt.Errorf("price %q is not a decimal number", price)
	}
	value, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(value, 0) {
		return 0, fmt.Errorf("price %q is out of range", price)
	}
	return value, nil
}
