// Package netpolicy implements C1, the network policy generator: it
// produces the isolation preamble that the worker evaluates before user
// code, and exposes the hostname-classification helpers that preamble
// calls back into (spec §4.1).
package netpolicy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dev-console/agentsandbox/internal/model"
)

// ClassifyHost reports whether hostname must be rejected in allow-list mode
// regardless of domain membership (loopback/link-local/RFC1918/IPv6 ULA).
// Exported so the worker can bind it as a native function the preamble
// calls; the preamble itself never reimplements this classification in JS.
func ClassifyHost(hostname string) (blocked bool, reason string) {
	return classifyHost(hostname)
}

// IsDomainAllowed reports whether hostname equals a domain in allowed or is
// a proper subdomain of one (suffix match on "."+domain), per spec §4.1.
func IsDomainAllowed(hostname string, allowed []string) bool {
	hostname = strings.ToLower(hostname)
	for _, d := range allowed {
		d = strings.ToLower(d)
		if hostname == d || strings.HasSuffix(hostname, "."+d) {
			return true
		}
	}
	return false
}

// IsURLAllowed implements the round-trip law from spec §8:
// isUrlAllowed(u, allow-list(D)) ⇒ scheme ∈ {http,https} and hostname is not
// loopback/private/link-local and ∃d∈D: hostname=d ∨ hostname ends with "."+d.
func IsURLAllowed(rawURL string, allowed []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if blocked, _ := classifyHost(host); blocked {
		return false
	}
	return IsDomainAllowed(host, allowed)
}

// blockedNetworkMessage is the fixed diagnostic every neutralized primitive
// throws, matching the wire error kind NetworkBlocked (spec §7, §8 seed
// scenario 4: "Network access is blocked").
const blockedNetworkMessage = "Network access is blocked"

// Generate produces the isolation preamble for policy as self-contained
// JavaScript source text, installed by the worker before user code (spec
// §4.1). For blocked and allow-list mode the source is a single function
// expression of the form `(function(__netClassifyHost, __netDomainAllowed,
// __hostFetch) { ... })`: the worker evaluates it to a function value and
// calls that function directly, passing the three Go-native closures in as
// arguments rather than installing them as named globals. This keeps the
// real classification/fetch handles unreachable from user scope entirely
// — there is no global identifier a sandboxed snippet could read them
// from — rather than merely non-writable.
func Generate(policy model.NetworkPolicy) string {
	switch policy.Mode {
	case model.NetworkUnrestricted:
		return "// network policy: unrestricted (no-op preamble)\n"
	case model.NetworkAllowList:
		return generateAllowList(policy.Domains)
	default:
		return generateBlocked()
	}
}

// generateBlocked replaces every outbound primitive with a throwing stub,
// installed non-writable/non-configurable so user code cannot reassign or
// delete them. It still accepts the three native-closure parameters (even
// though blocked mode never calls them) so the worker can invoke every
// mode's preamble function the same way.
func generateBlocked() string {
	return fmt.Sprintf(`
(function(__netClassifyHost, __netDomainAllowed, __hostFetch) {
  'use strict';
  var BLOCKED_MSG = %q;

  function blockedCtor(name) {
    return function() {
      throw new Error(name + ': ' + BLOCKED_MSG);
    };
  }

  var bindings = {
    fetch: blockedCtor('fetch'),
    XMLHttpRequest: blockedCtor('XMLHttpRequest'),
    WebSocket: blockedCtor('WebSocket'),
    EventSource: blockedCtor('EventSource'),
  };

  for (var name in bindings) {
    Object.defineProperty(globalThis, name, {
      value: bindings[name],
      writable: false,
      configurable: false,
      enumerable: true,
    });
  }
})
`, blockedNetworkMessage)
}

// generateAllowList installs a fetch wrapper that validates scheme and
// hostname via the host-bound classification helpers before delegating,
// and leaves WebSocket/XHR/SSE blocked with the same opaque message as
// blocked mode (never leaking the allow-list through a differentiated
// error), per spec §4.1. __netClassifyHost, __netDomainAllowed, and
// __hostFetch are the worker's native closures, passed in as this
// function's parameters rather than read off the global object.
func generateAllowList(domains []string) string {
	domainsJSON := jsStringArray(domains)
	return fmt.Sprintf(`
(function(__netClassifyHost, __netDomainAllowed, __hostFetch) {
  'use strict';
  var BLOCKED_MSG = %q;
  var ALLOWED_DOMAINS = %s;

  function blockedCtor(name) {
    return function() {
      throw new Error(name + ': ' + BLOCKED_MSG);
    };
  }

  function allowListFetch(input) {
    var raw = String(input);
    var parsed;
    try {
      parsed = new URL(raw);
    } catch (e) {
      throw new Error('fetch: invalid URL');
    }
    if (parsed.protocol !== 'http:' && parsed.protocol !== 'https:') {
      throw new Error('fetch: ' + BLOCKED_MSG);
    }
    if (__netClassifyHost(parsed.hostname)) {
      throw new Error('fetch: ' + BLOCKED_MSG);
    }
    if (!__netDomainAllowed(parsed.hostname, ALLOWED_DOMAINS)) {
      throw new Error('fetch: ' + BLOCKED_MSG);
    }
    return __hostFetch(raw);
  }

  var bindings = {
    fetch: allowListFetch,
    XMLHttpRequest: blockedCtor('XMLHttpRequest'),
    WebSocket: blockedCtor('WebSocket'),
    EventSource: blockedCtor('EventSource'),
  };

  for (var name in bindings) {
    Object.defineProperty(globalThis, name, {
      value: bindings[name],
      writable: false,
      configurable: false,
      enumerable: true,
    });
  }
})
`, blockedNetworkMessage, domainsJSON)
}

func jsStringArray(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%q", s))
	}
	b.WriteByte(']')
	return b.String()
}
