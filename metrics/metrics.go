package metrics

import (
	"time"

	"github.com/prebid/prebid-server-eplanning/errortypes"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
)

// Labels defines the labels that can be attached to the metrics.
type Labels struct {
	Source        DemandSource
	RType         RequestType
	RequestStatus RequestStatus
}

// AdapterLabels defines the labels that can be attached to the adapter metrics.
type AdapterLabels struct {
	Source        DemandSource
	RType         RequestType
	Adapter       openrtb_ext.BidderName
	AdapterBids   AdapterBid
	AdapterErrors map[AdapterError]struct{}
}

// ImpLabels defines metric labels describing the impression type.
type ImpLabels struct {
	BannerImps bool
	VideoImps  bool
	AudioImps  bool
	NativeImps bool
}

// Label typecasting. Se below the type definitions for possible values

// DemandSource : Demand source enumeration
type DemandSource string

// RequestType : Request type enumeration
type RequestType string

// RequestStatus : The request return status
type RequestStatus string

// AdapterBid : Whether or not the adapter returned bids
type AdapterBid string

// AdapterError : Errors which may have occurred during the adapter's execution
type AdapterError string

// UserSyncStatus : The result of a call to the /usersync endpoint
type UserSyncStatus string

// The demand sources
const (
	DemandWeb     DemandSource = "web"
	DemandApp     DemandSource = "app"
	DemandUnknown DemandSource = "unknown"
)

// The request types (endpoints)
const (
	ReqTypeORTB2Web RequestType = "openrtb2-web"
	ReqTypeORTB2App RequestType = "openrtb2-app"
)

func RequestTypes() []RequestType {
	return []RequestType{
		ReqTypeORTB2Web,
		ReqTypeORTB2App,
	}
}

// Request/return status
const (
	RequestStatusOK       RequestStatus = "ok"
	RequestStatusBadInput RequestStatus = "badinput"
	RequestStatusErr      RequestStatus = "err"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
	}
}

// Adapter bid response status.
const (
	AdapterBidPresent AdapterBid = "bid"
	AdapterBidNone    AdapterBid = "nobid"
)

func AdapterBids() []AdapterBid {
	return []AdapterBid{
		AdapterBidPresent,
		AdapterBidNone,
	}
}

// Adapter execution status
const (
	AdapterErrorBadInput            AdapterError = "badinput"
	AdapterErrorBadServerResponse   AdapterError = "badserverresponse"
	AdapterErrorTimeout             AdapterError = "timeout"
	AdapterErrorFailedToRequestBids AdapterError = "failedtorequestbid"
	AdapterErrorUnknown             AdapterError = "unknown_error"
)

func AdapterErrors() []AdapterError {
	return []AdapterError{
		AdapterErrorBadInput,
		AdapterErrorBadServerResponse,
		AdapterErrorTimeout,
		AdapterErrorFailedToRequestBids,
		AdapterErrorUnknown,
	}
}

// /usersync outcomes
const (
	UserSyncOK            UserSyncStatus = "ok"
	UserSyncBadRequest    UserSyncStatus = "bad_request"
	UserSyncUnknownBidder UserSyncStatus = "unknown_bidder"
)

func UserSyncStatuses() []UserSyncStatus {
	return []UserSyncStatus{
		UserSyncOK,
		UserSyncBadRequest,
		UserSyncUnknownBidder,
	}
}

// AdapterErrorFromError maps an adapter error onto its metric label.
func AdapterErrorFromError(err error) AdapterError {
	switch errortypes.ReadCode(err) {
	case errortypes.BadInputErrorCode:
		return AdapterErrorBadInput
	case errortypes.BadServerResponseErrorCode, errortypes.FailedToUnmarshalErrorCode:
		return AdapterErrorBadServerResponse
	case errortypes.TimeoutErrorCode:
		return AdapterErrorTimeout
	case errortypes.FailedToRequestBidsErrorCode:
		return AdapterErrorFailedToRequestBids
	default:
		return AdapterErrorUnknown
	}
}

// MetricsEngine is a generic interface to record metrics into the desired backend.
// RecordRequest, RecordImps and RecordRequestTime fire once per incoming request. The adapter
// functions fire once per call to the bidder, so the two groups are not comparable.
type MetricsEngine interface {
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
	RecordRequest(labels Labels)
	RecordImps(labels ImpLabels)
	RecordRequestTime(labels Labels, length time.Duration)
	RecordAdapterRequest(labels AdapterLabels)
	RecordAdapterPanic(labels AdapterLabels)
	// This records whether or not a bid uses `adm` or `nurl`.
	RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool)
	RecordAdapterPrice(labels AdapterLabels, cpm float64)
	RecordAdapterTime(labels AdapterLabels, length time.Duration)
	RecordUnlinkableBid(adapterName openrtb_ext.BidderName)
	RecordUserSync(adapterName openrtb_ext.BidderName, status UserSyncStatus)
}
