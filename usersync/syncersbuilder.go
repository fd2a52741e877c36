package usersync

import (
	"fmt"
	"sort"

	"github.com/prebid/prebid-server-eplanning/config"
)

// BuildSyncers creates the syncer of every enabled bidder which declares one, keyed by bidder name.
func BuildSyncers(hostConfig *config.Configuration, bidderInfos config.BidderInfos) (map[string]Syncer, []error) {
	var errs []error
	syncers := make(map[string]Syncer)

	bidders := make([]string, 0, len(bidderInfos))
	for bidder := range bidderInfos {
		bidders = append(bidders, bidder)
	}
	sort.Strings(bidders)

	for _, bidder := range bidders {
		info := bidderInfos[bidder]
		if !info.Enabled || info.Syncer == nil {
			continue
		}

		syncer, err := NewSyncer(hostConfig.UserSync, *info.Syncer)
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot create syncer for bidder %s with key %s: %v", bidder, info.Syncer.Key, err))
			continue
		}
		syncers[bidder] = syncer
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return syncers, nil
}
