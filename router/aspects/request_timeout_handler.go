package aspects

import (
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/prebid/prebid-server-eplanning/config"
)

// QueuedRequestTimeout rejects auction requests which already spent their queue budget before
// reaching the server. Requests without both headers are served as usual.
func QueuedRequestTimeout(f httprouter.Handle, reqTimeoutHeaders config.RequestTimeoutHeaders) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		reqTimeInQueue := r.Header.Get(reqTimeoutHeaders.RequestTimeInQueue)
		reqTimeout := r.Header.Get(reqTimeoutHeaders.RequestTimeoutInQueue)

		if reqTimeInQueue == "" || reqTimeout == "" {
			f(w, r, params)
			return
		}

		timeInQueue, timeInQueueErr := strconv.ParseFloat(reqTimeInQueue, 64)
		timeout, timeoutErr := strconv.ParseFloat(reqTimeout, 64)
		if timeInQueueErr != nil || timeoutErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Request timeout headers are incorrect (wrong format)"))
			return
		}

		if timeInQueue >= timeout {
			glog.V(2).Infof("Dropping %s after %.3fs in queue, limit is %.3fs", r.URL.Path, timeInQueue, timeout)
			w.WriteHeader(http.StatusRequestTimeout)
			w.Write([]byte("Queued request processing time exceeded maximum"))
			return
		}

		f(w, r, params)
	}
}
