package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/cors"

	"github.com/prebid/prebid-server-eplanning/adapters"
	"github.com/prebid/prebid-server-eplanning/adapters/eplanning"
	"github.com/prebid/prebid-server-eplanning/config"
	"github.com/prebid/prebid-server-eplanning/endpoints"
	infoEndpoints "github.com/prebid/prebid-server-eplanning/endpoints/info"
	"github.com/prebid/prebid-server-eplanning/endpoints/openrtb2"
	"github.com/prebid/prebid-server-eplanning/errortypes"
	metricsConf "github.com/prebid/prebid-server-eplanning/metrics/config"
	"github.com/prebid/prebid-server-eplanning/openrtb_ext"
	"github.com/prebid/prebid-server-eplanning/router/aspects"
	"github.com/prebid/prebid-server-eplanning/usersync"
	"github.com/prebid/prebid-server-eplanning/util/jsonutil"
)

// NewJsonDirectoryServer is used to serve .json files from a directory as a single blob. For example,
// given a directory containing the files "a.json" and "b.json", this returns a Handle which serves JSON like:
//
//	{
//	  "a": { ... content from the file a.json ... },
//	  "b": { ... content from the file b.json ... }
//	}
//
// This function stores the file contents in memory, and should not be used on large directories.
// If the root directory, or any of the files in it, cannot be read, then the program will exit.
func NewJsonDirectoryServer(schemaDirectory string, validator openrtb_ext.BidderParamValidator) httprouter.Handle {
	files, err := os.ReadDir(schemaDirectory)
	if err != nil {
		glog.Fatalf("Failed to read directory %s: %v", schemaDirectory, err)
	}

	data := make(map[string]json.RawMessage, len(files))
	for _, file := range files {
		bidder := strings.TrimSuffix(file.Name(), ".json")
		bidderName, isValid := openrtb_ext.NormalizeBidderName(bidder)
		if !isValid {
			glog.Fatalf("Schema exists for an unknown bidder: %s", bidder)
		}
		data[bidder] = json.RawMessage(validator.Schema(bidderName))
	}

	response, err := jsonutil.Marshal(data)
	if err != nil {
		glog.Fatalf("Failed to marshal bidder param JSON-schema: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Add("Content-Type", "application/json")
		w.Write(response)
	}
}

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

type Router struct {
	*httprouter.Router
	MetricsEngine   *metricsConf.DetailedMetricsEngine
	ParamsValidator openrtb_ext.BidderParamValidator
	Shutdown        func()
}

func getTransport(cfg *config.Configuration) *http.Transport {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxConnsPerHost: cfg.Client.MaxConnsPerHost,
		IdleConnTimeout: time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
	}

	if cfg.Client.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Client.MaxIdleConns
	}

	if cfg.Client.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Client.MaxIdleConnsPerHost
	}

	return transport
}

// New builds the main router: every endpoint is wired to the e-planning bidder and the
// metrics engine selected by the configuration.
func New(cfg *config.Configuration, version, revision string) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	transport := getTransport(cfg)
	bidderClient := &http.Client{
		Transport: transport,
	}
	r.Shutdown = transport.CloseIdleConnections

	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, openrtb_ext.CoreBidderNames())

	r.ParamsValidator, err = openrtb_ext.NewBidderParamsValidator(cfg.BidderParamsDir)
	if err != nil {
		return nil, fmt.Errorf("Failed to create the bidder params validator. %v", err)
	}

	infoPath, _ := filepath.Abs(cfg.BidderInfoDir)
	bidderInfos, err := config.LoadBidderInfoFromDisk(infoPath, cfg.Adapters, bidderNameStrings())
	if err != nil {
		return nil, err
	}

	syncers, syncerErrs := usersync.BuildSyncers(cfg, bidderInfos)
	if len(syncerErrs) > 0 {
		return nil, errortypes.NewAggregateErrors("user sync", syncerErrs)
	}

	adapterCfg := cfg.Adapters[string(openrtb_ext.BidderEPlanning)]
	bidder, err := eplanning.Builder(openrtb_ext.BidderEPlanning, adapterCfg, config.Server{
		ExternalUrl: cfg.ExternalURL,
		DataCenter:  cfg.DataCenter,
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to build the %s adapter: %v", openrtb_ext.BidderEPlanning, err)
	}

	if bidderInfos[string(openrtb_ext.BidderEPlanning)].Enabled {
		client := adapters.NewBidderClient(openrtb_ext.BidderEPlanning, bidder, bidderClient, r.MetricsEngine)
		auctionEndpoint, err := openrtb2.NewEndpoint(client, r.ParamsValidator, cfg, r.MetricsEngine, bidderInfos)
		if err != nil {
			return nil, fmt.Errorf("Failed to create the openrtb2 endpoint handler. %v", err)
		}

		if cfg.RequestTimeoutHeaders != (config.RequestTimeoutHeaders{}) {
			auctionEndpoint = aspects.QueuedRequestTimeout(auctionEndpoint, cfg.RequestTimeoutHeaders)
		}
		r.POST("/openrtb2/auction", auctionEndpoint)
	} else {
		glog.Warningf("Adapter %s is disabled, /openrtb2/auction is not served", openrtb_ext.BidderEPlanning)
	}

	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	r.GET("/version", endpoints.NewVersionEndpoint(version, revision))
	r.GET("/info/bidders", infoEndpoints.NewBiddersEndpoint(bidderInfos))
	r.GET("/info/bidders/:bidderName", infoEndpoints.NewBidderDetailsEndpoint(bidderInfos))
	r.GET("/bidders/params", NewJsonDirectoryServer(cfg.BidderParamsDir, r.ParamsValidator))
	r.GET("/usersync/:bidderName", endpoints.NewUserSyncEndpoint(syncers, r.MetricsEngine))

	return r, nil
}

// Admin returns the handler of the admin port: a JSON dump of the go-metrics registry and the
// runtime profiles.
func Admin(me *metricsConf.DetailedMetricsEngine) *http.ServeMux {
	mux := http.NewServeMux()
	if me != nil && me.GoMetrics != nil {
		registry := me.GoMetrics.MetricsRegistry
		mux.HandleFunc("/metrics/gometrics", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			gometrics.WriteJSONOnce(registry, w)
		})
	}
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func bidderNameStrings() []string {
	names := openrtb_ext.CoreBidderNames()
	bidders := make([]string, 0, len(names))
	for _, name := range names {
		bidders = append(bidders, string(name))
	}
	return bidders
}

// SupportCORS allows every origin, with credentials. Publisher pages on any domain call the
// auction and user sync endpoints, and the server never uses cookies for authorization.
//
// See https://github.com/rs/cors/issues/55
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
