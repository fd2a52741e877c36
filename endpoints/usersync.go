package endpoints

import (
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/prebid/prebid-server-eplanning/metrics"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
	"github.com/prebid/prebid-server-eplanning/usersync"
	"github.com/prebid/prebid-server-eplanning/util/jsonutil"
)

// NewUserSyncEndpoint implements /usersync/:bidderName.
//
// The optional "f" query parameter is a comma separated list of accepted sync types. The bidder's
// default type is used when it is absent. The gdpr, gdpr_consent and us_privacy parameters are
// substituted into the sync url.
func NewUserSyncEndpoint(syncers map[string]usersync.Syncer, me metrics.MetricsEngine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rawBidder := ps.ByName("bidderName")
		bidder, ok := openrtb_ext.NormalizeBidderName(rawBidder)
		if !ok {
			me.RecordUserSync(openrtb_ext.BidderName(rawBidder), metrics.UserSyncUnknownBidder)
			http.Error(w, "Unknown bidder: "+rawBidder, http.StatusNotFound)
			return
		}

		syncer, ok := syncers[string(bidder)]
		if !ok {
			me.RecordUserSync(bidder, metrics.UserSyncUnknownBidder)
			http.Error(w, "No user sync configured for bidder: "+string(bidder), http.StatusNotFound)
			return
		}

		query := r.URL.Query()
		syncTypes, err := parseSyncTypes(query.Get("f"), syncer.DefaultSyncType())
		if err != nil {
			me.RecordUserSync(bidder, metrics.UserSyncBadRequest)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sync, err := syncer.GetSync(syncTypes, usersync.Privacy{
			GDPR:        query.Get("gdpr"),
			GDPRConsent: query.Get("gdpr_consent"),
			USPrivacy:   query.Get("us_privacy"),
		})
		if err != nil {
			me.RecordUserSync(bidder, metrics.UserSyncBadRequest)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, err := jsonutil.Marshal(sync)
		if err != nil {
			glog.Errorf("/usersync/%s failed to marshal the sync: %v", bidder, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		me.RecordUserSync(bidder, metrics.UserSyncOK)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func parseSyncTypes(raw string, defaultSyncType usersync.SyncType) ([]usersync.SyncType, error) {
	if strings.TrimSpace(raw) == "" {
		return []usersync.SyncType{defaultSyncType}, nil
	}

	values := strings.Split(raw, ",")
	syncTypes := make([]usersync.SyncType, 0, len(values))
	for _, value := range values {
		syncType, err := usersync.ParseSyncType(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		syncTypes = append(syncTypes, syncType)
	}
	return syncTypes, nil
}
