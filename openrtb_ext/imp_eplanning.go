package openrtb_ext

// ExtImpEPlanning defines the contract for bidrequest.imp[i].ext.prebid.bidder.eplanning
type ExtImpEPlanning struct {
	// ClientID identifies the e-planning account. Required.
	ClientID string `json:"ci"`
	// AdUnitCode names the slot; when empty the slot is named after its size.
	AdUnitCode string `json:"adunit_code,omitempty"`
}
