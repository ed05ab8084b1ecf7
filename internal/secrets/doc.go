// Package secrets redacts credentials from signal text before it leaves the
// process for a third-party model.
//
// Detection uses the Gitleaks default rule set. Known false positives can be
// suppressed with a TOML allowlist:
//
//	[allowlist]
//	regexes = ['''EXAMPLE_[A-Z]+''']
package secrets
