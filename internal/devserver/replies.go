package devserver

import (
	"fmt"
	"path/filepath"
	"strings"

	"argus/internal/stream"
)

// replyChunkRunes is the size of canned reply chunks. Small enough that
// markup regularly spans chunk boundaries.
const replyChunkRunes = 12

// FailTrigger in a message makes the canned reply fail mid-stream.
const FailTrigger = "fail"

var injectionKeywords = []string{
	"ignore previous instructions",
	"system override",
	"ignore all instructions",
	"new instructions",
	"forget your rules",
	"jailbreak",
	"you are now",
	"disregard",
}

var defaultSimulation = []string{
	"\n>>> Starting Fraud Detection Demo...\n",
	"[*] Scoring 10000 transactions\n",
	">>> Fraud Detection Demo completed.\n",
	"\n>>> Starting Real-Time Inference...\n",
	"  Latency P99: 7.5519 ms\n",
	">>> Real-Time Inference completed.\n",
	"\n>>> Starting ML Platform Pipeline...\n",
	"  psi=0.0412 (threshold=0.2)\n",
	">>> ML Platform Pipeline completed.\n",
	"\n[SUCCESS] All systems verified. Metrics updated.\n",
}

// CannedReply is the default ReplyFunc.
func CannedReply(t Turn) []string {
	lower := strings.ToLower(t.Message)
	for _, kw := range injectionKeywords {
		if strings.Contains(lower, kw) {
			return []string{stream.ErrorPrefix + "Safety Protocol: direct instruction overrides detected. I am fixed to my core analytical protocol."}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis of **%s**\n", strings.TrimSpace(t.Message))
	if t.FilePath != "" {
		fmt.Fprintf(&b, "Using data from `%s`.\n", filepath.Base(t.FilePath))
	}

	if strings.Contains(lower, FailTrigger) {
		return []string{b.String(), stream.ErrorPrefix + "analysis engine failed mid-stream"}
	}

	b.WriteString("No anomalies above the `psi=0.2` drift threshold.\n")
	fmt.Fprintf(&b, "This is turn **%d** of the session.", t.Number)
	return SplitRunes(b.String(), replyChunkRunes)
}

// SplitRunes cuts s into pieces of at most n runes.
func SplitRunes(s string, n int) []string {
	if n <= 0 || s == "" {
		return []string{s}
	}
	var out []string
	r := []rune(s)
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return append(out, string(r))
}
