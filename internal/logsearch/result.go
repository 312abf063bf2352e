package logsearch

import "time"

// Match is one line of search output, with the original file line number
// when the pipeline asked grep for numbering.
type Match struct {
	// LineNumber is zero when the output carried no numbering (tail mode).
	LineNumber int    `json:"lineNumber,omitempty"`
	Text       string `json:"text"`
	// Context marks lines grep emitted as surrounding context rather
	// than as matches.
	Context bool `json:"context,omitempty"`
}

// HostResult is the outcome of one host's search.
type HostResult struct {
	Host      string `json:"host"`
	HostIndex int    `json:"hostIndex"`
	FilePath  string `json:"filePath"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`

	Matches   []Match `json:"matches,omitempty"`
	RawOutput string  `json:"-"`

	// OriginalCount is the line count before the MaxLines cap,
	// ResultCount after. Truncated is set when they differ.
	OriginalCount int  `json:"originalCount"`
	ResultCount   int  `json:"resultCount"`
	Truncated     bool `json:"truncated,omitempty"`

	DetectedEncoding string        `json:"detectedEncoding,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// SearchResult aggregates per-host outcomes for one search, ordered by
// host index regardless of completion order.
type SearchResult struct {
	Entry    string        `json:"entry"`
	Hosts    []HostResult  `json:"hosts"`
	Duration time.Duration `json:"duration"`
}

// TotalResults sums result lines across hosts, failed ones contributing
// nothing.
func (r *SearchResult) TotalResults() int {
	total := 0
	for i := range r.Hosts {
		total += r.Hosts[i].ResultCount
	}
	return total
}

// FailedHosts lists the addresses of hosts whose search did not succeed.
func (r *SearchResult) FailedHosts() []string {
	var failed []string
	for i := range r.Hosts {
		if !r.Hosts[i].Success {
			failed = append(failed, r.Hosts[i].Host)
		}
	}
	return failed
}

// AnyTruncated reports whether any host hit the MaxLines cap.
func (r *SearchResult) AnyTruncated() bool {
	for i := range r.Hosts {
		if r.Hosts[i].Truncated {
			return true
		}
	}
	return false
}
