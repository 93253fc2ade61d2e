package llmoracle

import "strings"

type indexPair struct {
	origIdx int
	corrIdx int
}

// changeSpan is a contiguous region that differs between the original and
// corrected token sequences.
type changeSpan struct {
	origTokens []string
	corrTokens []string
}

// tokenLCS computes the longest common subsequence of two token slices and
// returns the anchor pairs in order. O(m×n); sentences are short.
func tokenLCS(a, b []string) []indexPair {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	k := dp[m][n]
	if k == 0 {
		return nil
	}
	anchors := make([]indexPair, k)
	i, j := m, n
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			k--
			anchors[k] = indexPair{origIdx: i - 1, corrIdx: j - 1}
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return anchors
}

// extractChangeSpans collects the gaps between anchored tokens.
func extractChangeSpans(orig, corr []string, anchors []indexPair) []changeSpan {
	var spans []changeSpan
	oi, ci := 0, 0
	for _, a := range anchors {
		if oi < a.origIdx || ci < a.corrIdx {
			spans = append(spans, changeSpan{
				origTokens: orig[oi:a.origIdx],
				corrTokens: corr[ci:a.corrIdx],
			})
		}
		oi = a.origIdx + 1
		ci = a.corrIdx + 1
	}
	if oi < len(orig) || ci < len(corr) {
		spans = append(spans, changeSpan{
			origTokens: orig[oi:],
			corrTokens: corr[ci:],
		})
	}
	return spans
}

// plausible reports whether corrected keeps at least minOverlap of the
// original words in order and does not grow past twice the original length.
func plausible(original, corrected string, minOverlap float64) bool {
	ow, cw := strings.Fields(original), strings.Fields(corrected)
	if len(ow) == 0 || len(cw) == 0 {
		return false
	}
	if len(cw) > 2*len(ow)+1 {
		return false
	}
	if len(ow) <= 2 {
		// Every word of a two-word sentence may legitimately change.
		return true
	}
	kept := len(tokenLCS(ow, cw))
	return float64(kept) >= minOverlap*float64(len(ow))
}

func normalizeForLookup(s string) string {
	return strings.ToLower(strings.TrimRight(s, ".,;:!?\"')"))
}

// verifyCorrectedText reverts every change span of corrected that does not
// match a reported edit. It returns the verified sentence and the edits that
// were confirmed.
func verifyCorrectedText(original, corrected string, edits []Edit) (string, []Edit) {
	if original == corrected {
		return original, nil
	}

	origTokens := strings.Fields(original)
	corrTokens := strings.Fields(corrected)
	anchors := tokenLCS(origTokens, corrTokens)
	spans := extractChangeSpans(origTokens, corrTokens, anchors)

	type key struct{ orig, corr string }
	lookup := make(map[key]Edit, len(edits))
	for _, e := range edits {
		lookup[key{normalizeForLookup(e.Original), normalizeForLookup(e.Corrected)}] = e
	}

	// Rebuild by walking both sequences; each span replaces its original
	// tokens only when it was reported.
	var (
		out      []string
		verified []Edit
	)
	oi, ci, si := 0, 0, 0
	emit := func() {
		span := spans[si]
		si++
		k := key{
			normalizeForLookup(strings.Join(span.origTokens, " ")),
			normalizeForLookup(strings.Join(span.corrTokens, " ")),
		}
		if e, ok := lookup[k]; ok {
			out = append(out, span.corrTokens...)
			verified = append(verified, e)
		} else {
			out = append(out, span.origTokens...)
		}
	}
	for _, a := range anchors {
		if oi < a.origIdx || ci < a.corrIdx {
			emit()
		}
		out = append(out, origTokens[a.origIdx])
		oi = a.origIdx + 1
		ci = a.corrIdx + 1
	}
	if oi < len(origTokens) || ci < len(corrTokens) {
		emit()
	}

	if len(verified) == 0 {
		return original, nil
	}
	return strings.Join(out, " "), verified
}
