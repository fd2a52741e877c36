package adapterstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/prebid/prebid-server-eplanning/adapters"
	"github.com/prebid/prebid-server-eplanning/util/jsonutil"
)

// RunJSONBidderTest is a helper method intended to unit test Bidders' adapters.
// It requires that:
//
//   - Bidders communicate with external servers over HTTP.
//   - The HTTP request bodies are legal JSON, or empty.
//
// Although not required, it is also assumed that requests are idempotent. Any bidder which
// relies on per-request state should write its own unit tests.
//
// This method will look for files in the following directories:
//
//	adapters/{bidder}/{bidder}test/exemplary/*.json
//	adapters/{bidder}/{bidder}test/supplemental/*.json
//
// Exemplary files are meant to illustrate the traffic which would be seen in production.
// Supplemental files cover edge cases and error paths. Every file in either directory must
// parse into a testSpec.
func RunJSONBidderTest(t *testing.T, rootDir string, bidder adapters.Bidder) {
	t.Helper()
	runTests(t, fmt.Sprintf("%s/exemplary", rootDir), bidder, false)
	runTests(t, fmt.Sprintf("%s/supplemental", rootDir), bidder, true)
}

func runTests(t *testing.T, directory string, bidder adapters.Bidder, allowErrors bool) {
	t.Helper()
	if specFiles, err := os.ReadDir(directory); err == nil {
		for _, specFile := range specFiles {
			if specFile.IsDir() || filepath.Ext(specFile.Name()) != ".json" {
				continue
			}
			fileName := filepath.Join(directory, specFile.Name())
			specData, err := loadFile(fileName)
			if err != nil {
				t.Fatalf("Failed to load contents of file %s: %v", fileName, err)
			}

			if !allowErrors && specData.expectsErrors() {
				t.Fatalf("Exemplary spec %s must not expect errors.", fileName)
			}
			t.Run(specFile.Name(), func(t *testing.T) {
				runSpec(t, fileName, specData, bidder)
			})
		}
	}
}

// loadFile reads and parses a file as a test case. If something goes wrong, it returns an error.
func loadFile(filename string) (*testSpec, error) {
	specData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to read file %s: %v", filename, err)
	}

	var spec testSpec
	if err := jsonutil.Unmarshal(specData, &spec); err != nil {
		return nil, fmt.Errorf("Failed to unmarshal JSON from file: %v", err)
	}

	return &spec, nil
}

// runSpec runs a single test case. It will make sure:
//
//   - That the Bidder does not return nil HTTP requests, bids, or errors inside their lists
//   - That the Bidder's HTTP calls match the spec's expectations.
//   - That the Bidder's Bids match the spec's expectations
//   - That the Bidder's errors match the spec's expectations
func runSpec(t *testing.T, filename string, spec *testSpec, bidder adapters.Bidder) {
	reqInfo := adapters.ExtraRequestInfo{}
	requests := testMakeRequestsImpl(t, filename, spec, bidder, &reqInfo)

	bidResponses := make([]*adapters.BidderResponse, 0)
	var bidsErrs = make([]error, 0, len(spec.MakeBidsErrors))
	for i := 0; i < len(spec.HttpCalls); i++ {
		bidResponse, theseErrs := bidder.MakeBids(&spec.BidRequest, requests[i], &adapters.ResponseData{
			StatusCode: spec.HttpCalls[i].Response.Status,
			Body:       spec.HttpCalls[i].Response.Body,
			Headers:    spec.HttpCalls[i].Response.Headers,
		})
		bidsErrs = append(bidsErrs, theseErrs...)
		if bidResponse != nil {
			bidResponses = append(bidResponses, bidResponse)
		}
	}

	assertErrorList(t, fmt.Sprintf("%s: MakeBids", filename), bidsErrs, spec.MakeBidsErrors)
	assertBidResponses(t, filename, bidResponses, spec.BidResponses)
}

type testSpec struct {
	BidRequest        openrtb2.BidRequest     `json:"mockBidRequest"`
	HttpCalls         []httpCall              `json:"httpCalls"`
	BidResponses      []expectedBidResponse   `json:"expectedBidResponses"`
	MakeRequestErrors []testSpecExpectedError `json:"expectedMakeRequestsErrors"`
	MakeBidsErrors    []testSpecExpectedError `json:"expectedMakeBidsErrors"`
}

type testSpecExpectedError struct {
	Value      string `json:"value"`
	Comparison string `json:"comparison"`
}

func (spec *testSpec) expectsErrors() bool {
	return len(spec.MakeRequestErrors) > 0 || len(spec.MakeBidsErrors) > 0
}

type httpCall struct {
	Request  httpRequest  `json:"expectedRequest"`
	Response httpResponse `json:"mockResponse"`
}

type httpRequest struct {
	Body    json.RawMessage `json:"body"`
	Uri     string          `json:"uri"`
	Headers http.Header     `json:"headers"`
	Method  string          `json:"method"`
	ImpIDs  []string        `json:"impIDs"`
}

type httpResponse struct {
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`
	Headers http.Header     `json:"headers"`
}

type expectedBidResponse struct {
	Bids     []expectedBid `json:"bids"`
	Currency string        `json:"currency"`
}

type expectedBid struct {
	Bid  json.RawMessage `json:"bid"`
	Type string          `json:"type"`
}

// ---------------------------------------
// Lots of ugly, repetitive code below here.
//
// reflect.DeepEqual doesn't work because the data types are all different.
// ---------------------------------------

// assertErrorList makes sure that the actual errors match the expected ones.
func assertErrorList(t *testing.T, description string, actual []error, expected []testSpecExpectedError) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("%s had wrong error count. Expected %d, got %d (%v)", description, len(expected), len(actual), actual)
	}
	for i := 0; i < len(actual); i++ {
		if expected[i].Comparison == "literal" {
			if expected[i].Value != actual[i].Error() {
				t.Errorf(`%s error[%d] had wrong message. Expected "%s", got "%s"`, description, i, expected[i].Value, actual[i].Error())
			}
		} else if expected[i].Comparison == "regex" {
			if matched, _ := regexp.MatchString(expected[i].Value, actual[i].Error()); !matched {
				t.Errorf(`%s error[%d] had wrong message. Expected match with regex "%s", got "%s"`, description, i, expected[i].Value, actual[i].Error())
			}
		} else {
			t.Fatalf(`invalid comparison type "%s"`, expected[i].Comparison)
		}
	}
}

func assertBidResponses(t *testing.T, filename string, bidderResponses []*adapters.BidderResponse, expectedBidResponses []expectedBidResponse) {
	t.Helper()

	if len(bidderResponses) != len(expectedBidResponses) {
		t.Fatalf("%s: MakeBids returned wrong bid response count. Expected %d, got %d", filename, len(expectedBidResponses), len(bidderResponses))
	}
	for i := 0; i < len(bidderResponses); i++ {
		assertBids(t, fmt.Sprintf("%s:  [%d]", filename, i), bidderResponses[i].Bids, expectedBidResponses[i].Bids)
		assert.Equal(t, expectedBidResponses[i].Currency, bidderResponses[i].Currency, "%s: bidResponse[%d] currency", filename, i)
	}
}

func assertBids(t *testing.T, description string, actuals []*adapters.TypedBid, expected []expectedBid) {
	t.Helper()

	if len(actuals) != len(expected) {
		t.Fatalf("%s: MakeBids returned wrong bid count. Expected %d, got %d", description, len(expected), len(actuals))
	}
	for i := 0; i < len(actuals); i++ {
		bidDescription := fmt.Sprintf("%s bid[%d]", description, i)
		if actuals[i] == nil {
			t.Fatalf("%s: MakeBids returned a nil bid", bidDescription)
		}
		if expected[i].Type != string(actuals[i].BidType) {
			t.Errorf("%s had wrong bid type. Expected %s, got %s", bidDescription, expected[i].Type, actuals[i].BidType)
		}
		actualJSON, err := json.Marshal(actuals[i].Bid)
		if err != nil {
			t.Fatalf("%s failed to marshal actual bid: %v", bidDescription, err)
		}
		diffJson(t, bidDescription, actualJSON, expected[i].Bid)
	}
}

// testMakeRequestsImpl asserts the resulting values of the bidder MakeRequests implementation
// against the expected JSON-defined results and returns the generated request data.
func testMakeRequestsImpl(t *testing.T, filename string, spec *testSpec, bidder adapters.Bidder, reqInfo *adapters.ExtraRequestInfo) []*adapters.RequestData {
	t.Helper()

	actualReqs, errs := bidder.MakeRequests(&spec.BidRequest, reqInfo)
	assertErrorList(t, fmt.Sprintf("%s: MakeRequests", filename), errs, spec.MakeRequestErrors)
	assertMakeRequestsOutput(t, filename, actualReqs, spec.HttpCalls)

	return actualReqs
}

func assertMakeRequestsOutput(t *testing.T, filename string, actual []*adapters.RequestData, expected []httpCall) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("%s: MakeRequests had wrong request count. Expected %d, got %d", filename, len(expected), len(actual))
	}
	for i := 0; i < len(expected); i++ {
		if actual[i] == nil {
			t.Fatalf("%s: MakeRequests returned a nil request at index %d", filename, i)
		}
		description := fmt.Sprintf("%s: httpRequest[%d]", filename, i)
		assert.Equal(t, expected[i].Request.Method, actual[i].Method, "%s method", description)
		assert.Equal(t, expected[i].Request.Uri, actual[i].Uri, "%s uri", description)
		assert.ElementsMatch(t, expected[i].Request.ImpIDs, actual[i].ImpIDs, "%s impIDs", description)
		if expected[i].Request.Headers != nil {
			assert.Equal(t, expected[i].Request.Headers, actual[i].Headers, "%s headers", description)
		}
		if len(expected[i].Request.Body) == 0 || string(expected[i].Request.Body) == "null" {
			assert.Empty(t, actual[i].Body, "%s body", description)
		} else {
			diffJson(t, description, actual[i].Body, expected[i].Request.Body)
		}
	}
}

// diffJson compares two JSON byte arrays for structural equality. It will produce an error if either
// byte array is not actually JSON.
func diffJson(t *testing.T, description string, actual []byte, expected []byte) {
	t.Helper()

	if len(actual) == 0 && len(expected) == 0 {
		return
	}
	if len(actual) == 0 || len(expected) == 0 {
		t.Fatalf("%s json diff failed. Expected %s, actual %s", description, string(expected), string(actual))
	}

	diff, err := gojsondiff.New().Compare(actual, expected)
	if err != nil {
		t.Fatalf("%s json diff failed. %v", description, err)
	}

	if diff.Modified() {
		var left interface{}
		if err := json.Unmarshal(actual, &left); err != nil {
			t.Fatalf("%s json did not match, but unmarshalling failed. %v", description, err)
		}
		printer := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
			ShowArrayIndex: true,
		})
		output, err := printer.Format(diff)
		if err != nil {
			t.Errorf("%s did not match, but diff formatting failed. %v", description, err)
		} else {
			t.Errorf("%s json did not match expected.\n\n%s", description, strings.TrimSpace(output))
		}
	}
}
