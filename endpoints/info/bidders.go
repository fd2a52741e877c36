package info

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/prebid/prebid-server-eplanning/config"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
	"github.com/prebid/prebid-server-eplanning/util/jsonutil"
)

const (
	statusActive   = "ACTIVE"
	statusDisabled = "DISABLED"
)

// NewBiddersEndpoint implements /info/bidders. Only enabled bidders are listed unless the request
// carries enabledonly=false.
func NewBiddersEndpoint(bidders config.BidderInfos) httprouter.Handle {
	all := marshalBidderNames(bidders, false)
	enabled := marshalBidderNames(bidders, true)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		response := enabled
		if r.URL.Query().Get("enabledonly") == "false" {
			response = all
		}
		writeResponse(w, response, "/info/bidders")
	}
}

func marshalBidderNames(bidders config.BidderInfos, enabledOnly bool) json.RawMessage {
	names := make([]string, 0, len(bidders))
	for name, info := range bidders {
		if enabledOnly && !info.Enabled {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	response, err := jsonutil.Marshal(names)
	if err != nil {
		glog.Fatalf("error creating /info/bidders endpoint response: %v", err)
	}
	return response
}

// NewBidderDetailsEndpoint implements /info/bidders/:bidderName
func NewBidderDetailsEndpoint(bidders config.BidderInfos) httprouter.Handle {
	// Build all the responses up front, since there are a finite number and it won't use much memory.
	responses := make(map[string]json.RawMessage, len(bidders))
	for name, info := range bidders {
		response, err := jsonutil.Marshal(mapDetails(info))
		if err != nil {
			glog.Fatalf("error creating /info/bidders/%s endpoint response: %v", name, err)
		}
		responses[name] = response
	}

	return func(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		bidderName, ok := openrtb_ext.NormalizeBidderName(ps.ByName("bidderName"))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		response, ok := responses[string(bidderName)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeResponse(w, response, "/info/bidders/"+string(bidderName))
	}
}

type bidderDetail struct {
	Status       string        `json:"status"`
	Maintainer   *maintainer   `json:"maintainer,omitempty"`
	Capabilities *capabilities `json:"capabilities,omitempty"`
	GVLVendorID  uint16        `json:"gvlVendorID,omitempty"`
}

type maintainer struct {
	Email string `json:"email"`
}

type capabilities struct {
	App  *platform `json:"app,omitempty"`
	Site *platform `json:"site,omitempty"`
}

type platform struct {
	MediaTypes []openrtb_ext.BidType `json:"mediaTypes"`
}

func mapDetails(info config.BidderInfo) bidderDetail {
	detail := bidderDetail{
		Status:      statusDisabled,
		GVLVendorID: info.GVLVendorID,
	}
	if info.Enabled {
		detail.Status = statusActive
	}

	if info.Maintainer != nil {
		detail.Maintainer = &maintainer{Email: info.Maintainer.Email}
	}

	if info.Capabilities != nil {
		detail.Capabilities = &capabilities{}
		if info.Capabilities.App != nil {
			detail.Capabilities.App = &platform{MediaTypes: info.Capabilities.App.MediaTypes}
		}
		if info.Capabilities.Site != nil {
			detail.Capabilities.Site = &platform{MediaTypes: info.Capabilities.Site.MediaTypes}
		}
	}

	return detail
}

func writeResponse(w http.ResponseWriter, response json.RawMessage, path string) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(response); err != nil {
		glog.Errorf("error writing response to %s: %v", path, err)
	}
}
