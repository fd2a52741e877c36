package endpoints

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/prebid/prebid-server-eplanning/util/jsonutil"
)

const versionNotSet = "not-set"

type versionResponse struct {
	Revision string `json:"revision"`
	Version  string `json:"version"`
}

// NewVersionEndpoint reports the release tag and the commit the binary was built from.
func NewVersionEndpoint(version, revision string) httprouter.Handle {
	if version == "" {
		version = versionNotSet
	}
	if revision == "" {
		revision = versionNotSet
	}

	body, err := jsonutil.Marshal(versionResponse{Revision: revision, Version: version})
	if err != nil {
		glog.Fatalf("error creating /version endpoint response: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}
