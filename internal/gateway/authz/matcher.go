// Package authz implements the IPC gateway's access-control policy lookup
// and resource-pattern matching described in spec §4.7.
//
// Grounded on
// _examples/original_source/modules/ggipcd/src/ipc_authz.c
// (policy_match, ggl_ipc_auth, ggl_ipc_default_policy_matcher). The source
// rewrites the pattern buffer in place (splitting it into null-terminated
// segments around '*') because it has no dynamic allocator to spare; this
// port does the equivalent split with strings.Split since Go string slicing
// is cheap and the input patterns are short, componentconfiguration-sized
// strings, not a hot path.
package authz

import "strings"

// ResourceMatcher decides whether requestResource is permitted by
// policyResource, one configured resource pattern. Two matchers are
// provided: DefaultMatcher (glob-with-escape, used by most IPC services)
// and MQTTMatcher (adds +/# wildcards, used by the MQTT proxy service).
type ResourceMatcher func(requestResource, policyResource string) bool

// DefaultMatcher implements ggl_ipc_default_policy_matcher: "*" matches any
// byte sequence (including empty), and "${...}" escape brackets are
// stripped with their contents treated as a literal segment. The first
// segment is matched as a prefix, the last as a suffix, and any segments in
// between must occur (in order) somewhere in what's left — identical to the
// source's single left-to-right pass over the pattern, split at each '*'.
func DefaultMatcher(requestResource, policyResource string) bool {
	segments := splitPattern(policyResource)
	if len(segments) == 1 {
		return requestResource == segments[0]
	}

	remaining := requestResource
	for i, seg := range segments {
		switch {
		case i == 0:
			if !strings.HasPrefix(remaining, seg) {
				return false
			}
			remaining = remaining[len(seg):]
		case i == len(segments)-1:
			return strings.HasSuffix(remaining, seg)
		default:
			idx := strings.Index(remaining, seg)
			if idx < 0 {
				return false
			}
			remaining = remaining[idx+len(seg):]
		}
	}
	return true
}

// splitPattern strips "${...}" escapes (keeping their literal contents) and
// splits the result on literal '*' wildcards.
func splitPattern(pattern string) []string {
	var literal strings.Builder
	var parts []string
	inEscape := false

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if inEscape {
			if c == '}' {
				inEscape = false
			} else {
				literal.WriteRune(c)
			}
			continue
		}
		if c == '*' {
			parts = append(parts, literal.String())
			literal.Reset()
			continue
		}
		if c == '$' && i < len(runes)-1 && runes[i+1] == '{' {
			inEscape = true
			i++
			continue
		}
		literal.WriteRune(c)
	}
	parts = append(parts, literal.String())
	return parts
}

// MQTTMatcher adds MQTT topic-filter semantics on top of DefaultMatcher:
// a request DefaultMatcher accepts ('*' globs, "${...}" escapes) is
// accepted, and otherwise '+' matches exactly one topic level and '#'
// matches the remainder of the topic and must be the last level. Selected
// per spec §4.7 for IPC operations whose resource is an MQTT topic
// (PublishToIoTCore, SubscribeToIoTCore).
func MQTTMatcher(requestResource, policyResource string) bool {
	if DefaultMatcher(requestResource, policyResource) {
		return true
	}
	filterLevels := strings.Split(policyResource, "/")
	topicLevels := strings.Split(requestResource, "/")

	for i, level := range filterLevels {
		if level == "#" {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level == "+" {
			continue
		}
		if level != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
