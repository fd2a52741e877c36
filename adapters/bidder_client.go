package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"
	"golang.org/x/net/context/ctxhttp"

	"github.com/prebid/prebid-server-eplanning/errortypes"
	"github.com/prebid/prebid-server-eplanning/metrics"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
)

// BidderClient bridges a Bidder and the network. It executes the requests built by the Bidder
// and hands every response back to it.
type BidderClient struct {
	BidderName openrtb_ext.BidderName
	Bidder     Bidder
	Client     *http.Client
	me         metrics.MetricsEngine
}

// SeatBid is everything a single bidder contributed to an auction.
type SeatBid struct {
	// Bids is the list of bids returned by the bidder, in the order the bidder produced them.
	Bids     []*TypedBid
	Currency string
	// HttpCalls is only populated when the request is a test request.
	HttpCalls []*openrtb_ext.ExtHttpCall
}

// NewBidderClient creates a BidderClient which records its outcome in the given metrics engine.
func NewBidderClient(bidderName openrtb_ext.BidderName, bidder Bidder, client *http.Client, me metrics.MetricsEngine) *BidderClient {
	return &BidderClient{
		BidderName: bidderName,
		Bidder:     bidder,
		Client:     client,
		me:         me,
	}
}

// RequestBid runs one auction against the bidder. The returned SeatBid is never nil.
//
// Requests are made in parallel. If the context expires before every response arrives, the
// outstanding calls fail with an errortypes.Timeout and any bids already received are kept.
func (bc *BidderClient) RequestBid(ctx context.Context, request *openrtb2.BidRequest) (seatBid *SeatBid, errs []error) {
	start := time.Now()
	seatBid = &SeatBid{Currency: "USD"}

	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("OpenRTB auction recovered panic from Bidder %s: %v", bc.BidderName, r)
			bc.me.RecordAdapterPanic(metrics.AdapterLabels{Adapter: bc.BidderName})
			seatBid = &SeatBid{Currency: "USD"}
			errs = append(errs, &errortypes.FailedToRequestBids{
				Message: fmt.Sprintf("bidder %s failed unexpectedly", bc.BidderName),
			})
		}
	}()

	reqInfo := NewExtraRequestInfo(bc.BidderName)
	reqData, errs := bc.Bidder.MakeRequests(request, &reqInfo)

	if len(reqData) == 0 {
		// If the adapter failed to generate both requests and errors, this is an error.
		if len(errs) == 0 {
			errs = append(errs, &errortypes.FailedToRequestBids{Message: "The adapter failed to generate any bid requests, but also failed to generate an error explaining why"})
		}
		bc.recordMetrics(request, seatBid, errs, start)
		return seatBid, errs
	}

	// Make any HTTP requests in parallel.
	// If the bidder only needs to make one, save some cycles by just using the current one.
	responseChannel := make(chan *httpCallInfo, len(reqData))
	if len(reqData) == 1 {
		responseChannel <- bc.doRequest(ctx, reqData[0])
	} else {
		for _, oneReqData := range reqData {
			go func(data *RequestData) {
				responseChannel <- bc.doRequest(ctx, data)
			}(oneReqData) // Method arg avoids a race condition on oneReqData
		}
	}

	seatBid.Bids = make([]*TypedBid, 0, len(reqData))

	// If the bidder made multiple requests, we still want them to enter as many bids as possible...
	// even if the timeout occurs sometime halfway through.
	for i := 0; i < len(reqData); i++ {
		httpInfo := <-responseChannel
		// If this is a test bid, capture debugging info from the requests.
		if request.Test == 1 {
			seatBid.HttpCalls = append(seatBid.HttpCalls, makeExt(httpInfo))
		}

		if httpInfo.err != nil {
			errs = append(errs, httpInfo.err)
			continue
		}

		bidResponse, moreErrs := bc.Bidder.MakeBids(request, httpInfo.request, httpInfo.response)
		errs = append(errs, moreErrs...)
		if bidResponse == nil {
			continue
		}
		if bidResponse.Currency != "" {
			seatBid.Currency = bidResponse.Currency
		}
		for _, bid := range bidResponse.Bids {
			if bid != nil && bid.Bid != nil {
				seatBid.Bids = append(seatBid.Bids, bid)
			}
		}
	}

	bc.recordMetrics(request, seatBid, errs, start)
	return seatBid, errs
}

func (bc *BidderClient) recordMetrics(request *openrtb2.BidRequest, seatBid *SeatBid, errs []error, start time.Time) {
	labels := metrics.AdapterLabels{
		Source:        metrics.DemandWeb,
		RType:         metrics.ReqTypeORTB2Web,
		Adapter:       bc.BidderName,
		AdapterBids:   metrics.AdapterBidNone,
		AdapterErrors: make(map[metrics.AdapterError]struct{}),
	}
	if request.App != nil {
		labels.Source = metrics.DemandApp
		labels.RType = metrics.ReqTypeORTB2App
	}
	if len(seatBid.Bids) > 0 {
		labels.AdapterBids = metrics.AdapterBidPresent
	}
	for _, err := range errs {
		labels.AdapterErrors[metrics.AdapterErrorFromError(err)] = struct{}{}
	}

	bc.me.RecordAdapterRequest(labels)
	bc.me.RecordAdapterTime(labels, time.Since(start))
	for _, bid := range seatBid.Bids {
		bc.me.RecordAdapterBidReceived(labels, bid.BidType, bid.Bid.AdM != "")
		bc.me.RecordAdapterPrice(labels, bid.Bid.Price)
	}
}

// makeExt transforms information about the HTTP call into the contract class for the response.
func makeExt(httpInfo *httpCallInfo) *openrtb_ext.ExtHttpCall {
	ext := &openrtb_ext.ExtHttpCall{}

	if httpInfo != nil && httpInfo.request != nil {
		ext.Uri = httpInfo.request.Uri
		ext.RequestBody = string(httpInfo.request.Body)
		ext.RequestHeaders = httpInfo.request.Headers

		if httpInfo.err == nil && httpInfo.response != nil {
			ext.ResponseBody = string(httpInfo.response.Body)
			ext.Status = httpInfo.response.StatusCode
		}
	}

	return ext
}

// doRequest makes a request, handles the response, and returns the data needed by the
// Bidder interface.
func (bc *BidderClient) doRequest(ctx context.Context, req *RequestData) *httpCallInfo {
	httpReq, err := http.NewRequest(req.Method, req.Uri, bytes.NewBuffer(req.Body))
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq.Header = req.Headers

	httpResp, err := ctxhttp.Do(ctx, bc.Client, httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}

	glog.V(2).Infof("%s responded to %s with status %d", bc.BidderName, req.Uri, httpResp.StatusCode)

	return &httpCallInfo{
		request: req,
		response: &ResponseData{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Headers:    httpResp.Header,
		},
	}
}

type httpCallInfo struct {
	request  *RequestData
	response *ResponseData
	err      error
}
