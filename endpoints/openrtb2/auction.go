package openrtb2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-server-eplanning/adapters"
	"github.com/prebid/prebid-server-eplanning/config"
	"github.com/prebid/prebid-server-eplanning/errortypes"
	"github.com/prebid/prebid-server-eplanning/metrics"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
	"github.com/prebid/prebid-server-eplanning/util/httputil"
	"github.com/prebid/prebid-server-eplanning/util/iputil"
	"github.com/prebid/prebid-server-eplanning/util/jsonutil"
)

// BidRequester runs one bidder's part of an auction.
type BidRequester interface {
	RequestBid(ctx context.Context, request *openrtb2.BidRequest) (*adapters.SeatBid, []error)
}

// NewEndpoint builds the /openrtb2/auction handler, which runs the e-planning bidder for an OpenRTB request.
func NewEndpoint(bidder BidRequester, validator openrtb_ext.BidderParamValidator, cfg *config.Configuration, me metrics.MetricsEngine, bidderInfos config.BidderInfos) (httprouter.Handle, error) {
	if bidder == nil || validator == nil || cfg == nil || me == nil {
		return nil, errors.New("NewEndpoint requires non-nil arguments.")
	}

	ipValidator, err := cfg.RequestValidation.IPValidator()
	if err != nil {
		return nil, err
	}

	return httprouter.Handle((&endpointDeps{
		bidder:          bidder,
		bidderName:      openrtb_ext.BidderEPlanning,
		paramsValidator: validator,
		ipValidator:     ipValidator,
		cfg:             cfg,
		metricsEngine:   me,
		bidderInfos:     bidderInfos,
	}).Auction), nil
}

type endpointDeps struct {
	bidder          BidRequester
	bidderName      openrtb_ext.BidderName
	paramsValidator openrtb_ext.BidderParamValidator
	ipValidator     iputil.IPValidator
	cfg             *config.Configuration
	metricsEngine   metrics.MetricsEngine
	bidderInfos     config.BidderInfos
}

func (deps *endpointDeps) Auction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	labels := metrics.Labels{
		Source:        metrics.DemandUnknown,
		RType:         metrics.ReqTypeORTB2Web,
		RequestStatus: metrics.RequestStatusOK,
	}
	defer func() {
		deps.metricsEngine.RecordRequest(labels)
		deps.metricsEngine.RecordRequestTime(labels, time.Since(start))
	}()

	req, errL := deps.parseRequest(r)
	if len(errL) > 0 {
		labels.RequestStatus = metrics.RequestStatusBadInput
		w.WriteHeader(http.StatusBadRequest)
		for _, err := range errL {
			fmt.Fprintf(w, "Invalid request format: %s\n", err.Error())
		}
		return
	}

	deps.setFieldsImplicitly(r, req)

	if req.App != nil {
		labels.Source = metrics.DemandApp
		labels.RType = metrics.ReqTypeORTB2App
	} else {
		labels.Source = metrics.DemandWeb
	}
	for _, imp := range req.Imp {
		deps.metricsEngine.RecordImps(metrics.ImpLabels{
			BannerImps: imp.Banner != nil,
			VideoImps:  imp.Video != nil,
			AudioImps:  imp.Audio != nil,
			NativeImps: imp.Native != nil,
		})
	}

	timeout := deps.cfg.AuctionTimeouts.LimitAuctionTimeout(time.Duration(req.TMax) * time.Millisecond)
	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	response := deps.holdAuction(ctx, req, timeout)

	responseBytes, err := jsonutil.Marshal(response)
	if err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
		glog.Errorf("/openrtb2/auction failed to marshal the response for request %s: %v", req.ID, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Failed to marshal auction response: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(responseBytes)
}

// holdAuction calls the bidder and turns its seat into an OpenRTB response. Bids which can't be
// linked to an impression of the request are dropped with a warning.
func (deps *endpointDeps) holdAuction(ctx context.Context, req *openrtb2.BidRequest, timeout time.Duration) *openrtb2.BidResponse {
	start := time.Now()
	ext := &openrtb_ext.ExtBidResponse{
		ResponseTimeMillis:   map[openrtb_ext.BidderName]int{},
		RequestTimeoutMillis: timeout.Milliseconds(),
	}

	var seatBid *adapters.SeatBid
	var errs []error
	if err := deps.checkPlatformSupport(req); err != nil {
		seatBid = &adapters.SeatBid{}
		errs = []error{err}
	} else {
		seatBid, errs = deps.bidder.RequestBid(ctx, req)
	}
	ext.ResponseTimeMillis[deps.bidderName] = int(time.Since(start) / time.Millisecond)

	impIDs := make(map[string]struct{}, len(req.Imp))
	for _, imp := range req.Imp {
		impIDs[imp.ID] = struct{}{}
	}

	bids := make([]openrtb2.Bid, 0, len(seatBid.Bids))
	for _, typedBid := range seatBid.Bids {
		if _, ok := impIDs[typedBid.Bid.ImpID]; !ok {
			deps.metricsEngine.RecordUnlinkableBid(deps.bidderName)
			errs = append(errs, &errortypes.Warning{
				WarningCode: errortypes.UnlinkableBidWarningCode,
				Message:     fmt.Sprintf("bid id=%s does not match any imp of the request", typedBid.Bid.ID),
			})
			continue
		}

		bid := *typedBid.Bid
		bidExt, err := jsonutil.Marshal(openrtb_ext.ExtBid{Prebid: &openrtb_ext.ExtBidPrebid{Type: typedBid.BidType}})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		bid.Ext = bidExt
		bids = append(bids, bid)
	}

	if fatal := errortypes.FatalOnly(errs); len(fatal) > 0 {
		ext.Errors = map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage{deps.bidderName: toMessages(fatal)}
	}
	if warnings := errortypes.WarningOnly(errs); len(warnings) > 0 {
		ext.Warnings = map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage{deps.bidderName: toMessages(warnings)}
	}
	if req.Test == 1 && len(seatBid.HttpCalls) > 0 {
		ext.Debug = &openrtb_ext.ExtResponseDebug{
			HttpCalls: map[openrtb_ext.BidderName][]*openrtb_ext.ExtHttpCall{deps.bidderName: seatBid.HttpCalls},
		}
	}

	response := &openrtb2.BidResponse{
		ID: req.ID,
	}
	if len(bids) > 0 {
		response.Cur = seatBid.Currency
		response.SeatBid = []openrtb2.SeatBid{{Seat: string(deps.bidderName), Bid: bids}}
	} else if fatal := errortypes.FatalOnly(errs); len(fatal) > 0 {
		response.NBR = errortypes.GetNBRCodeFromError(fatal[0]).Ptr()
	}

	if extBytes, err := jsonutil.Marshal(ext); err == nil {
		response.Ext = extBytes
	} else {
		glog.Errorf("failed to marshal the response ext for request %s: %v", req.ID, err)
	}

	return response
}

// setFieldsImplicitly fills the client details the OpenRTB request leaves out from the HTTP
// request itself: the user agent, the first public client address and, for sites, the referrer.
func (deps *endpointDeps) setFieldsImplicitly(httpReq *http.Request, req *openrtb2.BidRequest) {
	device := openrtb2.Device{}
	if req.Device != nil {
		device = *req.Device
	}

	if device.UA == "" {
		device.UA = httpReq.UserAgent()
	}
	if device.IP == "" && device.IPv6 == "" {
		ip, ver := httputil.FindIP(httpReq, deps.ipValidator)
		switch ver {
		case iputil.IPv4:
			device.IP = ip.String()
		case iputil.IPv6:
			device.IPv6 = ip.String()
		}
	}
	if req.Device != nil || device.UA != "" || device.IP != "" || device.IPv6 != "" {
		req.Device = &device
	}

	if req.Site != nil && req.Site.Page == "" {
		if referrer := httpReq.Referer(); referrer != "" {
			site := *req.Site
			site.Page = referrer
			if parsed, err := url.Parse(referrer); err == nil && site.Domain == "" {
				site.Domain = parsed.Hostname()
			}
			req.Site = &site
		}
	}
}

func (deps *endpointDeps) checkPlatformSupport(req *openrtb2.BidRequest) error {
	if deps.bidderInfos == nil {
		return nil
	}
	if req.App != nil && !deps.bidderInfos.HasAppSupport(deps.bidderName) {
		return &errortypes.BadInput{Message: fmt.Sprintf("%s does not support app requests", deps.bidderName)}
	}
	if req.Site != nil && !deps.bidderInfos.HasSiteSupport(deps.bidderName) {
		return &errortypes.BadInput{Message: fmt.Sprintf("%s does not support site requests", deps.bidderName)}
	}
	return nil
}

func toMessages(errs []error) []openrtb_ext.ExtBidderMessage {
	messages := make([]openrtb_ext.ExtBidderMessage, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		})
	}
	return messages
}

// parseRequest turns the HTTP request into an OpenRTB request whose impressions carry the
// bidder params under imp.ext.bidder.
//
// If the errors list is empty, then the returned request is valid. If it has at least one
// element, then no guarantees are made about the returned request.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (*openrtb2.BidRequest, []error) {
	reader := io.Reader(httpRequest.Body)
	if deps.cfg.MaxRequestSize > 0 {
		reader = io.LimitReader(httpRequest.Body, deps.cfg.MaxRequestSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, []error{err}
	}
	if deps.cfg.MaxRequestSize > 0 && int64(len(body)) > deps.cfg.MaxRequestSize {
		return nil, []error{fmt.Errorf("request size exceeded max size of %d bytes.", deps.cfg.MaxRequestSize)}
	}

	req := &openrtb2.BidRequest{}
	if err := jsonutil.Unmarshal(body, req); err != nil {
		return nil, []error{err}
	}

	if err := deps.validateRequest(req); err != nil {
		return nil, []error{err}
	}

	return req, nil
}

func (deps *endpointDeps) validateRequest(req *openrtb2.BidRequest) error {
	if req.ID == "" {
		return errors.New("request missing required field: \"id\"")
	}

	if req.TMax < 0 {
		return fmt.Errorf("request.tmax must be nonnegative. Got %d", req.TMax)
	}

	if len(req.Imp) < 1 {
		return errors.New("request.imp must contain at least one element.")
	}

	if (req.Site == nil && req.App == nil) || (req.Site != nil && req.App != nil) {
		return errors.New("request.site or request.app must be defined, but not both.")
	}

	seenImpIDs := make(map[string]struct{}, len(req.Imp))
	for index := range req.Imp {
		imp := &req.Imp[index]
		if _, ok := seenImpIDs[imp.ID]; ok {
			return fmt.Errorf("request.imp[%d].id and request.imp[%d].id are both \"%s\". Imp IDs must be unique.", index, indexOfImp(req.Imp, imp.ID), imp.ID)
		}
		seenImpIDs[imp.ID] = struct{}{}

		if err := deps.validateImp(imp, index); err != nil {
			return err
		}
	}
	return nil
}

func indexOfImp(imps []openrtb2.Imp, id string) int {
	for i, imp := range imps {
		if imp.ID == id {
			return i
		}
	}
	return -1
}

func (deps *endpointDeps) validateImp(imp *openrtb2.Imp, index int) error {
	if imp.ID == "" {
		return fmt.Errorf("request.imp[%d] missing required field: \"id\"", index)
	}

	if imp.Banner == nil && imp.Video == nil && imp.Audio == nil && imp.Native == nil {
		return fmt.Errorf("request.imp[%d] must contain at least one of \"banner\", \"video\", \"audio\", or \"native\"", index)
	}

	if err := validateBanner(imp.Banner, index); err != nil {
		return err
	}

	return deps.prepareImpExt(imp, index)
}

func validateBanner(banner *openrtb2.Banner, impIndex int) error {
	if banner == nil {
		return nil
	}

	for fmtIndex, format := range banner.Format {
		if format.W == 0 || format.H == 0 {
			if format.WMin == 0 || format.WRatio == 0 || format.HRatio == 0 {
				return fmt.Errorf("Request imp[%d].banner.format[%d] must define non-zero \"h\" and \"w\" properties.", impIndex, fmtIndex)
			}
		}
	}
	return nil
}

// bidderParamPaths lists where the bidder params may be found in imp.ext, in order of preference.
var bidderParamPaths = [][]string{
	{"prebid", "bidder", string(openrtb_ext.BidderEPlanning)},
	{string(openrtb_ext.BidderEPlanning)},
	{"bidder"},
}

// prepareImpExt validates the bidder params of an impression and rewrites imp.ext into the
// {"bidder": params} shape the adapter reads.
func (deps *endpointDeps) prepareImpExt(imp *openrtb2.Imp, impIndex int) error {
	if len(imp.Ext) == 0 {
		return fmt.Errorf("request.imp[%d].ext is required", impIndex)
	}

	var params []byte
	for _, path := range bidderParamPaths {
		value, dataType, _, err := jsonparser.Get(imp.Ext, path...)
		if err == nil && dataType == jsonparser.Object {
			params = value
			break
		}
	}
	if params == nil {
		return fmt.Errorf("request.imp[%d].ext must contain %s params", impIndex, deps.bidderName)
	}

	if err := deps.paramsValidator.Validate(deps.bidderName, params); err != nil {
		return fmt.Errorf("request.imp[%d].ext.%s failed validation.\n%v", impIndex, deps.bidderName, err)
	}

	ext, err := jsonparser.Set([]byte(`{}`), params, "bidder")
	if err != nil {
		return fmt.Errorf("request.imp[%d].ext could not be prepared: %v", impIndex, err)
	}
	if prebid, dataType, _, err := jsonparser.Get(imp.Ext, "prebid"); err == nil && dataType == jsonparser.Object {
		if ext, err = jsonparser.Set(ext, prebid, "prebid"); err != nil {
			return fmt.Errorf("request.imp[%d].ext could not be prepared: %v", impIndex, err)
		}
	}
	imp.Ext = ext

	return nil
}
